package dashboard

import (
	"time"

	"golang.org/x/text/language"
)

// Locale decides how dates on the dashboard are written.
type Locale struct {
	Tag        language.Tag
	DateLayout string
}

// Numeric layouts as browsers print them for each supported language.
var locales = []Locale{
	{Tag: language.AmericanEnglish, DateLayout: "1/2/2006"},
	{Tag: language.BritishEnglish, DateLayout: "02/01/2006"},
	{Tag: language.German, DateLayout: "2.1.2006"},
	{Tag: language.French, DateLayout: "02/01/2006"},
	{Tag: language.Spanish, DateLayout: "2/1/2006"},
	{Tag: language.Japanese, DateLayout: "2006/1/2"},
	{Tag: language.Russian, DateLayout: "02.01.2006"},
}

var matcher = language.NewMatcher(func() []language.Tag {
	tags := make([]language.Tag, len(locales))
	for i, l := range locales {
		tags[i] = l.Tag
	}
	return tags
}())

func DefaultLocale() Locale {
	return locales[0]
}

// MatchLocale picks the best supported locale for an Accept-Language header.
func MatchLocale(acceptLanguage string) Locale {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLocale()
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLocale()
	}
	return locales[idx]
}

func (l Locale) FormatDate(t time.Time) string {
	if l.DateLayout == "" {
		l = DefaultLocale()
	}
	return t.Format(l.DateLayout)
}
