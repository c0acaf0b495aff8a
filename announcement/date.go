package announcement

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// Discord timestamp markup: <t:1741996800> or <t:1741996800:F>.
	timestampPattern = regexp.MustCompile(`<t:(\d+)(?::[tTdDfFR])?>`)
	// "15 de março de 2025"; \p{L} so accented month names match.
	longDatePattern = regexp.MustCompile(`(\d{1,2})\s*de\s*(\p{L}+)\s*de\s*(\d{4})`)
)

// ExtractDate returns the ISO calendar date (YYYY-MM-DD) announced in body,
// or "" when none can be resolved. A timestamp tag wins over a long date.
func (c *Classifier) ExtractDate(body string) string {
	if m := timestampPattern.FindStringSubmatch(body); m != nil {
		if secs, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return time.Unix(secs, 0).UTC().Format(time.DateOnly)
		}
	}

	if m := longDatePattern.FindStringSubmatch(strings.ToLower(body)); m != nil {
		day, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%s-%s-%02d", m[3], c.locale.month(m[2]), day)
	}

	return ""
}

// ParseDate converts an ISO date into a UTC midnight time, nil for "" or garbage.
func ParseDate(iso string) *time.Time {
	if iso == "" {
		return nil
	}
	t, err := time.ParseInLocation(time.DateOnly, iso, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}
