package ratecontrol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayForLimit(t *testing.T) {
	// No limits configured: no pacing
	assert.Equal(t, time.Duration(0), delayForLimit(RateLimit{}, 100))

	// RPM only: 60 rpm -> 1s between requests
	assert.Equal(t, time.Second, delayForLimit(RateLimit{RPM: 60}, 0))

	// TPM dominates when the request is token-heavy
	d := delayForLimit(RateLimit{RPM: 60, TPM: 6000}, 1000)
	assert.Equal(t, 10*time.Second, d)

	// Delay is capped at one minute
	d = delayForLimit(RateLimit{TPM: 10}, 1000000)
	assert.Equal(t, time.Minute, d)

	// Negative token estimate is ignored
	assert.Equal(t, time.Duration(0), delayForLimit(RateLimit{RPM: 60}, -1))
}
