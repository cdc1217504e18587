package links

import (
	"context"
	"time"

	"golang.org/x/text/language"
)

// Layouts per supported language. The first entry is the fallback.
var (
	supported = []language.Tag{
		language.AmericanEnglish,
		language.BritishEnglish,
		language.German,
		language.French,
		language.Spanish,
		language.Italian,
		language.Dutch,
		language.Japanese,
		language.Chinese,
	}
	layouts = []string{
		"January 2, 2006 at 3:04 PM MST",
		"2 January 2006 at 15:04 MST",
		"02.01.2006, 15:04 MST",
		"02/01/2006 15:04 MST",
		"02/01/2006, 15:04 MST",
		"02/01/2006, 15:04 MST",
		"02-01-2006 15:04 MST",
		"2006/01/02 15:04 MST",
		"2006-01-02 15:04 MST",
	}
	matcher = language.NewMatcher(supported)
)

// Labeler formats expiration instants for a locale and time zone.
type Labeler struct {
	tag    language.Tag
	layout string
	loc    *time.Location
}

// NewLabeler picks the closest supported layout for locale, which may be a
// single tag ("de-AT") or an Accept-Language header value. A nil loc means UTC.
func NewLabeler(locale string, loc *time.Location) *Labeler {
	if loc == nil {
		loc = time.UTC
	}
	tag, idx := match(locale)
	return &Labeler{tag: tag, layout: layouts[idx], loc: loc}
}

// ForLocale returns a Labeler for another locale in the same time zone.
func (l *Labeler) ForLocale(locale string) *Labeler {
	return NewLabeler(locale, l.loc)
}

// Tag is the matched language.
func (l *Labeler) Tag() language.Tag {
	return l.tag
}

// Format renders t in the labeler's layout and zone.
func (l *Labeler) Format(t time.Time) string {
	return t.In(l.loc).Format(l.layout)
}

func match(locale string) (language.Tag, int) {
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return supported[0], 0
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return supported[0], 0
	}
	return supported[idx], idx
}

type localeKey struct{}

// WithLocale attaches the caller's preferred locale to ctx. It overrides the
// service's configured locale for expiration labels.
func WithLocale(ctx context.Context, locale string) context.Context {
	if locale == "" {
		return ctx
	}
	return context.WithValue(ctx, localeKey{}, locale)
}

func localeFrom(ctx context.Context) string {
	s, _ := ctx.Value(localeKey{}).(string)
	return s
}
