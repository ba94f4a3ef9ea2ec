// Package dateparse extracts an optional embedded date from free text.
//
// Two token forms are recognised, in priority order:
//
//	2025/12/25, 2025-1-5   full date
//	12/25, 1-5             month and day, combined with the current year
//
// The short form is matched greedily: "12/25公里" is read as December 25th
// even when the user meant a distance. There is no disambiguation rule, so
// the behaviour is kept as is.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	fullPattern  = regexp.MustCompile(`(\d{4})[/-](\d{1,2})[/-](\d{1,2})`)
	shortPattern = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})`)
)

// Result is the outcome of parsing one piece of text.
type Result struct {
	// Date is the resolved date at 12:00 in the parser's location. When no
	// token was found it is today at 12:00.
	Date time.Time
	// CleanedText is the input with the recognised token removed. The
	// whitespace around the token collapses to one space.
	CleanedText string
	// Found reports whether a date token was recognised.
	Found bool
}

// Parser resolves date tokens relative to a clock and a location.
// The zero value is not usable; use New.
type Parser struct {
	now func() time.Time
	loc *time.Location
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock sets the function used to read the current time.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		p.now = now
	}
}

// WithLocation sets the location dates are resolved in.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// New creates a Parser. Defaults are time.Now and time.Local.
func New(opts ...Option) *Parser {
	p := &Parser{
		now: time.Now,
		loc: time.Local,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the first date token from text.
func (p *Parser) Parse(text string) Result {
	now := p.now().In(p.loc)

	if m := fullPattern.FindStringSubmatchIndex(text); m != nil {
		year, _ := strconv.Atoi(text[m[2]:m[3]])
		month, _ := strconv.Atoi(text[m[4]:m[5]])
		day, _ := strconv.Atoi(text[m[6]:m[7]])
		return p.resolve(text, m[0], m[1], year, month, day, now)
	}

	if m := shortPattern.FindStringSubmatchIndex(text); m != nil {
		month, _ := strconv.Atoi(text[m[2]:m[3]])
		day, _ := strconv.Atoi(text[m[4]:m[5]])
		return p.resolve(text, m[0], m[1], now.Year(), month, day, now)
	}

	return p.notFound(text, now)
}

func (p *Parser) resolve(text string, start, end, year, month, day int, now time.Time) Result {
	date, ok := p.midday(year, month, day)
	if !ok {
		return p.notFound(text, now)
	}
	return Result{
		Date:        date,
		CleanedText: splice(text[:start], text[end:]),
		Found:       true,
	}
}

// splice joins the text around a removed token, leaving a single space
// where the token was separated from its neighbours.
func splice(before, after string) string {
	left := strings.TrimRightFunc(before, unicode.IsSpace)
	right := strings.TrimLeftFunc(after, unicode.IsSpace)
	if left != "" && right != "" && (len(left) < len(before) || len(right) < len(after)) {
		return strings.TrimSpace(left + " " + right)
	}
	return strings.TrimSpace(left + right)
}

func (p *Parser) notFound(text string, now time.Time) Result {
	date, _ := p.midday(now.Year(), int(now.Month()), now.Day())
	return Result{
		Date:        date,
		CleanedText: text,
		Found:       false,
	}
}

// midday builds year-month-day 12:00 and rejects components time.Date
// would normalise (month 13, February 30).
func (p *Parser) midday(year, month, day int) (time.Time, bool) {
	t := time.Date(year, time.Month(month), day, 12, 0, 0, 0, p.loc)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// Notes is the outcome of ResolveNotes.
type Notes struct {
	// Date comes from the last note that carried a date token, or today.
	Date time.Time
	// Found reports whether any note carried a date token.
	Found bool
	// Cleaned holds the non-empty cleaned notes in their original order.
	Cleaned []string
}

// ResolveNotes parses every note. The last note with a date token decides
// the date; cleaned texts that end up empty are dropped.
func (p *Parser) ResolveNotes(notes []string) Notes {
	out := Notes{Date: p.Parse("").Date}
	for _, note := range notes {
		r := p.Parse(note)
		if r.Found {
			out.Date = r.Date
			out.Found = true
		}
		if cleaned := strings.TrimSpace(r.CleanedText); cleaned != "" {
			out.Cleaned = append(out.Cleaned, cleaned)
		}
	}
	return out
}
