package models

import (
	"fmt"
	"time"
)

// EscalationLevel is one ordered step of an alert configuration: how long an
// unresolved alert may sit at this level, and who is paged at the next one.
type EscalationLevel struct {
	Level           int      `json:"level"`
	TimeoutMinutes  int      `json:"timeout_minutes"`
	RecipientIDs    []string `json:"recipient_ids"`
	MessageOverride string   `json:"message_override,omitempty"`
}

// AlertConfig bundles the escalation ladder, attempt ceiling, and optional
// quiet-hours window for one sensor. Read-only to the scheduler.
type AlertConfig struct {
	SensorID    int               `json:"sensor_id"`
	CompanyID   int               `json:"company_id"`
	MaxAttempts int               `json:"max_attempts"`
	Levels      []EscalationLevel `json:"levels"`
	Schedule    *ScheduleWindow   `json:"schedule,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Validate checks the escalation ladder is a dense, ordered sequence with
// positive timeouts.
func (c AlertConfig) Validate() error {
	if c.SensorID <= 0 {
		return fmt.Errorf("%w: sensor_id must be positive", ErrConfigurationInvalid)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts cannot be negative", ErrConfigurationInvalid)
	}
	for i, lvl := range c.Levels {
		if lvl.Level != i {
			return fmt.Errorf("%w: escalation levels must be numbered 0..n without gaps", ErrConfigurationInvalid)
		}
		if lvl.TimeoutMinutes <= 0 {
			return fmt.Errorf("%w: level %d timeout must be positive", ErrConfigurationInvalid, lvl.Level)
		}
	}
	if c.Schedule != nil {
		if err := c.Schedule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LevelAt returns the configuration for a level. Levels beyond the ladder
// reuse the last configured step so an alert at max level keeps a timeout
// and recipient set.
func (c AlertConfig) LevelAt(level int) (EscalationLevel, bool) {
	if len(c.Levels) == 0 {
		return EscalationLevel{}, false
	}
	if level >= len(c.Levels) {
		return c.Levels[len(c.Levels)-1], true
	}
	return c.Levels[level], true
}

// MaxLevel is the highest configured escalation level.
func (c AlertConfig) MaxLevel() int {
	if len(c.Levels) == 0 {
		return 0
	}
	return c.Levels[len(c.Levels)-1].Level
}

// Recipient is an addressable notification target. Owned by the company's
// alert configuration, never by an individual alert.
type Recipient struct {
	ID        string    `json:"id"`
	CompanyID int       `json:"company_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`

	// TelegramChatID is set once the recipient has registered with the bot.
	TelegramChatID int64 `json:"telegram_chat_id,omitempty"`

	Priority  int       `json:"priority"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
