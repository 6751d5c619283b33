// Package dateparse turns the date text found on Swiss municipal pages into
// timestamps. It understands ISO dates, the Swiss DD.MM.YYYY convention,
// long-form dates with German, French or Italian month names and a handful
// of relative terms. Wall-clock times are interpreted in Europe/Zurich.
package dateparse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/goodsign/monday"
)

// Format is a hint about which date convention a site uses.
type Format string

const (
	FormatAuto  Format = ""
	FormatSwiss Format = "swiss"
	FormatISO   Format = "iso"
	FormatLong  Format = "long"
)

// ParseFormat maps a stored date-format hint to a Format. Unknown hints
// become FormatAuto.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "swiss", "dd.mm.yyyy", "dd.mm.yy":
		return FormatSwiss
	case "iso", "yyyy-mm-dd", "iso8601":
		return FormatISO
	case "long", "d. month yyyy":
		return FormatLong
	default:
		return FormatAuto
	}
}

var (
	isoRe        = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})(?:[T ](\d{1,2}):(\d{2})(?::\d{2})?)?`)
	swissRe      = regexp.MustCompile(`\b(\d{1,2})\.\s?(\d{1,2})\.\s?(\d{4}|\d{2})\b`)
	swissRangeRe = regexp.MustCompile(`\b(\d{1,2})\.?\s*[-–]\s*(\d{1,2})\.\s?(\d{1,2})\.\s?(\d{4}|\d{2})\b`)
	monthRangeRe = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.\s*[-–]\s*(\d{1,2})\.(\d{1,2})\.(\d{4}|\d{2})\b`)
	longRe       = regexp.MustCompile(`\b(\d{1,2})\.?\s+(\p{L}{3,}\.?)\s+(\d{4})\b`)
	timeAfterRe  = regexp.MustCompile(`^[\s,;|/()\-–]*(?:(?i:um|ab|von|dès|à|alle|ore|at|,)\s*)?(\d{1,2})(?:[:.hH](\d{2}))?\s*(?i:(uhr|h))?`)

	monthLocales = []monday.Locale{monday.LocaleDeDE, monday.LocaleFrFR, monday.LocaleItIT, monday.LocaleEnUS}
	longLayouts  = []string{"2 January 2006", "2 Jan 2006"}

	nativeLayouts = []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"January 2, 2006 15:04",
		"January 2, 2006",
		"Jan 2, 2006",
		"2 January 2006",
		"02/01/2006",
	}

	relativeTerms = map[string]int{
		"heute":        0,
		"today":        0,
		"aujourd'hui":  0,
		"oggi":         0,
		"hüt":          0,
		"morgen":       1,
		"tomorrow":     1,
		"demain":       1,
		"domani":       1,
		"übermorgen":   2,
		"après-demain": 2,
		"dopodomani":   2,
	}

	// morningContext are words after which German "Morgen" means morning
	// rather than tomorrow, as in "Samstag Morgen" or "heute Morgen".
	morningContext = map[string]bool{
		"montag": true, "dienstag": true, "mittwoch": true, "donnerstag": true,
		"freitag": true, "samstag": true, "sonntag": true,
		"heute": true, "gestern": true, "hüt": true,
	}
)

// Parser converts date text to timestamps.
type Parser struct {
	// Location is the zone for wall-clock dates without an explicit offset.
	Location *time.Location
	// Now supplies the reference time for relative terms.
	Now func() time.Time
}

// New returns a Parser for Europe/Zurich.
func New() *Parser {
	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		loc = time.UTC
	}
	return &Parser{Location: loc, Now: time.Now}
}

var defaultParser = New()

// Parse parses text with the default parser.
func Parse(text string) (time.Time, bool) {
	return defaultParser.Parse(text)
}

// FindDates finds every date in text with the default parser.
func FindDates(text string) []time.Time {
	return defaultParser.FindDates(text)
}

// Parse returns the first date found in text. The second return value is
// false when nothing parsable was found; callers must skip the record rather
// than substitute the current time.
func (p *Parser) Parse(text string) (time.Time, bool) {
	return p.ParseWithHint(text, FormatAuto)
}

// ParseWithHint is Parse with the site's preferred convention tried first.
func (p *Parser) ParseWithHint(text string, hint Format) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, true
	}

	order := []Format{FormatISO, FormatSwiss, FormatLong}
	if hint != FormatAuto {
		order = append([]Format{hint}, order...)
	}

	for _, f := range order {
		if t, ok := p.parseFormat(text, f); ok {
			return t, true
		}
	}

	if t, ok := p.parseRelative(text); ok {
		return t, true
	}

	return p.parseNative(text)
}

func (p *Parser) parseFormat(text string, f Format) (time.Time, bool) {
	var re *regexp.Regexp
	switch f {
	case FormatISO:
		re = isoRe
	case FormatSwiss:
		re = swissRe
	case FormatLong:
		re = longRe
	default:
		return time.Time{}, false
	}

	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		if t, ok := p.fromMatch(text, f, loc); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// fromMatch builds a date from a regexp submatch index slice.
func (p *Parser) fromMatch(text string, f Format, loc []int) (time.Time, bool) {
	group := func(i int) string {
		if loc[2*i] < 0 {
			return ""
		}
		return text[loc[2*i]:loc[2*i+1]]
	}

	var (
		year, month, day int
		hour, minute     int
		hasTime          bool
	)

	switch f {
	case FormatISO:
		year, _ = strconv.Atoi(group(1))
		month, _ = strconv.Atoi(group(2))
		day, _ = strconv.Atoi(group(3))
		if group(4) != "" {
			hour, _ = strconv.Atoi(group(4))
			minute, _ = strconv.Atoi(group(5))
			hasTime = true
		}
	case FormatSwiss:
		day, _ = strconv.Atoi(group(1))
		month, _ = strconv.Atoi(group(2))
		year = expandYear(group(3))
	case FormatLong:
		day, _ = strconv.Atoi(group(1))
		year, _ = strconv.Atoi(group(3))
		m, ok := monthNumber(group(2))
		if !ok {
			return time.Time{}, false
		}
		month = m
	}

	if !hasTime {
		hour, minute, _ = timeAfter(text[loc[1]:])
	}

	return p.build(year, month, day, hour, minute)
}

// build constructs a date and rejects components that do not survive the
// round trip (day 32, 31 February, month 13).
func (p *Parser) build(year, month, day, hour, minute int) (time.Time, bool) {
	if year < 1900 || year > 2100 || month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, p.Location)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// expandYear turns a two-digit year into 20YY.
func expandYear(s string) int {
	y, _ := strconv.Atoi(s)
	if len(s) == 2 {
		return 2000 + y
	}
	return y
}

// timeAfter looks for a time of day immediately following a date.
func timeAfter(rest string) (hour, minute int, ok bool) {
	m := timeAfterRe.FindStringSubmatch(rest)
	if m == nil {
		return 0, 0, false
	}
	// A bare number is only a time when followed by "Uhr" or "h".
	if m[2] == "" && m[3] == "" {
		return 0, 0, false
	}
	// "14.05" followed by ".2026" is the next date, not a time.
	if end := len(m[0]); end+1 < len(rest) && (rest[end] == '.' || rest[end] == '-') && isDigit(rest[end+1]) {
		return 0, 0, false
	}

	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// monthNumber resolves a month name in any supported locale.
func monthNumber(word string) (int, bool) {
	word = strings.TrimSuffix(word, ".")
	variants := []string{word, strings.ToLower(word), titleCase(word)}

	for _, locale := range monthLocales {
		for _, layout := range longLayouts {
			for _, v := range variants {
				t, err := monday.ParseInLocation(layout, "1 "+v+" 2000", time.UTC, locale)
				if err == nil {
					return int(t.Month()), true
				}
			}
		}
	}
	return 0, false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}

func (p *Parser) parseRelative(text string) (time.Time, bool) {
	fields := strings.Fields(strings.ToLower(text))
	for i, field := range fields {
		field = strings.Trim(field, ",.:;!()")
		offset, ok := relativeTerms[field]
		if !ok {
			continue
		}
		if field == "morgen" && i > 0 && morningContext[strings.Trim(fields[i-1], ",.:;!()")] {
			continue
		}

		now := p.Now().In(p.Location)
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.Location).AddDate(0, 0, offset)
		lower := strings.ToLower(text)
		idx := strings.Index(lower, field) + len(field)
		if h, m, ok := timeAfter(lower[idx:]); ok {
			day = day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
		}
		return day, true
	}
	return time.Time{}, false
}

func (p *Parser) parseNative(text string) (time.Time, bool) {
	for _, layout := range nativeLayouts {
		if t, err := time.ParseInLocation(layout, text, p.Location); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FindDates returns every date mentioned in text, sorted ascending with
// duplicates removed.
func (p *Parser) FindDates(text string) []time.Time {
	var hits []time.Time
	covered := make([]bool, len(text)+1)

	// 12.05.-14.05.2026
	for _, loc := range monthRangeRe.FindAllStringSubmatchIndex(text, -1) {
		g := func(i int) int { n, _ := strconv.Atoi(text[loc[2*i]:loc[2*i+1]]); return n }
		y := expandYear(text[loc[10]:loc[11]])
		first, ok1 := p.build(y, g(2), g(1), 0, 0)
		second, ok2 := p.build(y, g(4), g(3), 0, 0)
		if ok1 && ok2 {
			hits = append(hits, first, second)
			markCovered(covered, loc[0], loc[1])
		}
	}

	// 12.-14.05.2026
	for _, loc := range swissRangeRe.FindAllStringSubmatchIndex(text, -1) {
		if isCovered(covered, loc[0], loc[1]) {
			continue
		}
		g := func(i int) int { n, _ := strconv.Atoi(text[loc[2*i]:loc[2*i+1]]); return n }
		y := expandYear(text[loc[8]:loc[9]])
		first, ok1 := p.build(y, g(3), g(1), 0, 0)
		second, ok2 := p.build(y, g(3), g(2), 0, 0)
		if ok1 && ok2 {
			hits = append(hits, first, second)
			markCovered(covered, loc[0], loc[1])
		}
	}

	for _, f := range []Format{FormatISO, FormatSwiss, FormatLong} {
		var re *regexp.Regexp
		switch f {
		case FormatISO:
			re = isoRe
		case FormatSwiss:
			re = swissRe
		case FormatLong:
			re = longRe
		}
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			if isCovered(covered, loc[0], loc[1]) {
				continue
			}
			if t, ok := p.fromMatch(text, f, loc); ok {
				hits = append(hits, t)
				markCovered(covered, loc[0], loc[1])
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Before(hits[j]) })

	out := make([]time.Time, 0, len(hits))
	for _, t := range hits {
		if len(out) > 0 && out[len(out)-1].Equal(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func isCovered(covered []bool, from, to int) bool {
	return covered[from] || covered[to-1]
}

func markCovered(covered []bool, from, to int) {
	for i := from; i < to && i < len(covered); i++ {
		covered[i] = true
	}
}

// Range extracts a start and optional end date from free text. Exactly two
// dates are treated as [start, end]; otherwise the earliest date is the
// start and there is no end.
func (p *Parser) Range(text string) (time.Time, *time.Time, bool) {
	dates := p.FindDates(text)
	switch len(dates) {
	case 0:
		return time.Time{}, nil, false
	case 2:
		end := dates[1]
		return dates[0], &end, true
	default:
		return dates[0], nil, true
	}
}

// ContainsDate reports whether text mentions at least one parsable date.
func (p *Parser) ContainsDate(text string) bool {
	return len(p.FindDates(text)) > 0
}
