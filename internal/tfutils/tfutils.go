package tfutils

import (
	"errors"
	"time"
)

// ParseInterval parses an interval string (e.g., "5m", "1h") to time.Duration
func ParseInterval(interval string) (time.Duration, error) {
	d := GetIntervalDuration(interval)
	if d == 0 {
		return 0, errors.New("unsupported interval")
	}
	return d, nil
}

// GetIntervalDuration returns the duration for a given candle interval
func GetIntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 0
	}
}

// GetSupportedIntervals returns all supported candle intervals
func GetSupportedIntervals() []string {
	return []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}
}

// IsValidInterval checks if an interval is supported
func IsValidInterval(interval string) bool {
	return GetIntervalDuration(interval) > 0
}
