package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	base := time.Second

	assert.Zero(t, Backoff(base, 0, time.Minute))
	assert.Zero(t, Backoff(base, -3, time.Minute))
	assert.Zero(t, Backoff(0, 5, time.Minute), "zero base disables waiting")

	assert.Equal(t, time.Second, Backoff(base, 1, time.Minute))
	assert.Equal(t, 2*time.Second, Backoff(base, 2, time.Minute))
	assert.Equal(t, 4*time.Second, Backoff(base, 3, time.Minute))
	assert.Equal(t, 32*time.Second, Backoff(base, 6, time.Minute))

	assert.Equal(t, 10*time.Second, Backoff(base, 6, 10*time.Second), "capped at maxDelay")
	assert.Equal(t, 10*time.Second, Backoff(base, 60, 10*time.Second), "deep attempts do not overflow")
}
