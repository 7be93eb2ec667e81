package attributes

import (
	"fmt"
	"time"

	"github.com/diwise/ngsild-client/pkg/ngsild/errors"
)

const (
	TemporalTypeDateTime string = "DateTime"
	TemporalTypeDate     string = "Date"
	TemporalTypeTime     string = "Time"
)

// FormatDateTime renders a timestamp the way NGSI-LD brokers expect it,
// as UTC with second precision.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func FormatTime(t time.Time) string {
	return t.UTC().Format("15:04:05")
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// TemporalTypeOf classifies an ISO-8601 string as a DateTime, Date or Time.
func TemporalTypeOf(value string) (string, error) {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return TemporalTypeDateTime, nil
		}
	}

	if _, err := time.Parse("2006-01-02", value); err == nil {
		return TemporalTypeDate, nil
	}

	if _, err := time.Parse("15:04:05", value); err == nil {
		return TemporalTypeTime, nil
	}

	return "", errors.NewDateFormatError(
		fmt.Sprintf("\"%s\" is not an ISO 8601 datetime, date or time", value),
	)
}
