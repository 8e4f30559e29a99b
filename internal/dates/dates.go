// Package dates parses the localized dates shown in the admin UI and decides
// which dated download folder an order belongs to.
package dates

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FolderLayout is the layout of dated download subfolders
const FolderLayout = "2006-01-02"

// FallbackOffset is used when the timezone database is unavailable. It does not observe DST.
const FallbackOffset = 1 * 60 * 60

var months = map[string]string{
	"jan": "01", "jän": "01",
	"feb": "02",
	"mär": "03", "mar": "03",
	"apr": "04",
	"mai": "05", "may": "05",
	"jun": "06",
	"jul": "07",
	"aug": "08",
	"sep": "09",
	"okt": "10", "oct": "10",
	"nov": "11",
	"dez": "12", "dec": "12",
}

// "21. Jan. 2026", "1. Mai 2026", "5. Mär 2026"
var localizedDate = regexp.MustCompile(`(?i)(\d{1,2})\.\s*(Jan|Jän|Feb|Mär|Mar|Apr|Mai|May|Jun|Jul|Aug|Sep|Okt|Oct|Nov|Dez|Dec)\.?\s*(\d{4})`)

// ParseLocalized finds the first German/English "day. Mon. year" date anywhere in
// text and returns it as YYYY-MM-DD.
func ParseLocalized(text string) (string, bool) {
	m := localizedDate.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	month, ok := months[strings.ToLower(m[2])]
	if !ok {
		return "", false
	}
	day := m[1]
	if len(day) == 1 {
		day = "0" + day
	}
	return fmt.Sprintf("%s-%s-%s", m[3], month, day), true
}

// ResolveTimezone loads the named zone, falling back to a fixed UTC+1 offset when
// the runtime has no timezone database.
func ResolveTimezone(name string, logger *zap.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc
	}
	if logger != nil {
		logger.Warn("timezone database unavailable, using fixed UTC+1 fallback without DST",
			zap.String("timezone", name), zap.Error(err))
	}
	return time.FixedZone("UTC+01:00", FallbackOffset)
}

var orderDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseOrderDate accepts ISO timestamps with or without offset; a trailing "Z"
// means UTC and a timestamp without offset is read as UTC.
func ParseOrderDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range orderDateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unrecognised order date %q: %w", s, lastErr)
}

// OrderDateFolder returns the calendar date of orderDate in loc, or today in loc
// when orderDate is empty or unparseable.
func OrderDateFolder(orderDate string, loc *time.Location) string {
	return orderDateFolderAt(orderDate, loc, time.Now())
}

func orderDateFolderAt(orderDate string, loc *time.Location, now time.Time) string {
	if orderDate != "" {
		if t, err := ParseOrderDate(orderDate); err == nil {
			return t.In(loc).Format(FolderLayout)
		}
	}
	return now.In(loc).Format(FolderLayout)
}
