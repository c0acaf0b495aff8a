package announcement

// Locale holds the phrases a monitoring bot uses to announce availability.
// All phrases are matched against the lower-cased body.
type Locale struct {
	Keyword       string
	NowPhrases    []string
	FuturePhrases []string
	Months        map[string]string
}

var PortugueseBR = Locale{
	Keyword:       "disponível",
	NowPhrases:    []string{"a partir deste momento", "agora"},
	FuturePhrases: []string{"estará disponível"},
	Months: map[string]string{
		"janeiro":   "01",
		"fevereiro": "02",
		"março":     "03",
		"abril":     "04",
		"maio":      "05",
		"junho":     "06",
		"julho":     "07",
		"agosto":    "08",
		"setembro":  "09",
		"outubro":   "10",
		"novembro":  "11",
		"dezembro":  "12",
	},
}

// month maps a month name to its two-digit number, "01" when unknown.
func (l Locale) month(name string) string {
	if m, ok := l.Months[name]; ok {
		return m
	}
	return "01"
}
