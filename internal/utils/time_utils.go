package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
)

var units = []struct {
	suffix string
	unit   time.Duration
}{
	{"ms", time.Millisecond},
	{"s", time.Second},
	{"m", time.Minute},
	{"h", time.Hour},
	{"d", 24 * time.Hour},
}

// ParseStringTime parses durations such as "100ms", "10s", "5m", "48h" or "2d".
// An unparseable value is logged and yields 0.
func ParseStringTime(timeString string) time.Duration {
	timeString = strings.ToLower(strings.TrimSpace(timeString))
	for _, u := range units {
		cutString, found := strings.CutSuffix(timeString, u.suffix)
		if !found {
			continue
		}
		number, err := strconv.Atoi(cutString)
		if err != nil {
			logger.ErrorF("Error parsing time string: %s", err.Error())
			return 0
		}
		return time.Duration(number) * u.unit
	}
	logger.ErrorF("invalid time format: %s", timeString)
	return 0
}

// ParseStringTimeOr is ParseStringTime with a fallback for empty or invalid values.
func ParseStringTimeOr(timeString string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(timeString) == "" {
		return fallback
	}
	if d := ParseStringTime(timeString); d > 0 {
		return d
	}
	return fallback
}

// TimeStamp formats t as HH:mm:ss, the form used on forwarded messages.
func TimeStamp(t time.Time) string {
	return t.Format("15:04:05")
}

// DateTimeStamp formats t as yyyy-MM-dd HH:mm:ss for console output.
func DateTimeStamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
