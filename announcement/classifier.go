package announcement

import (
	"regexp"
	"strings"
)

type Kind string

const (
	Ignore          Kind = "ignore"
	AvailableNow    Kind = "available_now"
	AvailableFuture Kind = "available_future"
)

type Classification struct {
	Kind     Kind
	Username string
	Body     string
}

// "- **username** | free text", the body may span lines.
var announcementPattern = regexp.MustCompile(`(?s)^\s*-\s*\*\*(\S+?)\*\*\s*\|\s*(.+)$`)

type Classifier struct {
	locale Locale
}

func NewClassifier(locale Locale) *Classifier {
	return &Classifier{locale: locale}
}

// Classify is a pure function of text.
func (c *Classifier) Classify(text string) Classification {
	match := announcementPattern.FindStringSubmatch(text)
	if match == nil {
		return Classification{Kind: Ignore}
	}

	username := strings.TrimSpace(match[1])
	body := strings.TrimSpace(match[2])
	lower := strings.ToLower(body)

	if !strings.Contains(lower, c.locale.Keyword) {
		return Classification{Kind: Ignore, Username: username, Body: body}
	}

	if containsAny(lower, c.locale.NowPhrases) {
		return Classification{Kind: AvailableNow, Username: username, Body: body}
	}

	if timestampPattern.MatchString(body) || longDatePattern.MatchString(lower) || containsAny(lower, c.locale.FuturePhrases) {
		return Classification{Kind: AvailableFuture, Username: username, Body: body}
	}

	return Classification{Kind: Ignore, Username: username, Body: body}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
