package tfutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIntervalDuration(t *testing.T) {
	assert.Equal(t, time.Minute, GetIntervalDuration("1m"))
	assert.Equal(t, 4*time.Hour, GetIntervalDuration("4h"))
	assert.Equal(t, 24*time.Hour, GetIntervalDuration("1d"))
	assert.Equal(t, time.Duration(0), GetIntervalDuration("7m"))
}

func TestParseInterval(t *testing.T) {
	d, err := ParseInterval("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	_, err = ParseInterval("2w")
	assert.Error(t, err)
}

func TestIsValidInterval(t *testing.T) {
	for _, interval := range GetSupportedIntervals() {
		assert.True(t, IsValidInterval(interval), interval)
	}
	assert.False(t, IsValidInterval(""))
	assert.False(t, IsValidInterval("3m"))
}
