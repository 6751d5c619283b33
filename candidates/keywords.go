package candidates

import (
	"strings"
	"unicode"

	"github.com/pevans/eventfed/normalize"
)

type keyword struct {
	term   string
	weight float64
}

// keywords are folded (lowercase, no diacritics) terms for events pages in
// German, French, Italian, Romansh and English.
var keywords = []keyword{
	// de
	{"veranstaltung", 5},
	{"anlass", 4},
	{"anlaesse", 5},
	{"anlasse", 5},
	{"agenda", 5},
	{"kalender", 4},
	{"termine", 3},
	{"event", 4},
	{"kultur", 2},
	{"freizeit", 2},
	{"ausstellung", 1},
	// fr
	{"evenement", 5},
	{"manifestation", 5},
	{"calendrier", 4},
	{"loisirs", 2},
	{"culture", 2},
	// it
	{"eventi", 5},
	{"manifestazion", 5},
	{"calendario", 4},
	{"cultura", 2},
	{"tempo libero", 2},
	// rm
	{"occurrenz", 5},
	{"arranschament", 5},
	{"chalender", 4},
	{"temp liber", 2},
}

// penalties push obviously wrong targets down the list.
var penalties = []keyword{
	{"archiv", 3},
	{"archive", 3},
	{"login", 5},
	{"anmelden", 2},
	{"newsletter", 2},
	{"rueckblick", 3},
	{"ruckblick", 3},
}

var skippedExtensions = []string{".pdf", ".jpg", ".jpeg", ".png", ".gif", ".doc", ".docx", ".xls", ".xlsx", ".zip", ".ics", ".svg"}

// Score rates how strongly text suggests an events page. Each keyword
// counts once. Short keywords must start a word; long ones may appear
// inside German compounds.
func Score(text string) float64 {
	folded := normalize.Fold(text)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	joined := " " + strings.Join(words, " ") + " "

	var score float64
	for _, kw := range keywords {
		if matches(words, joined, kw.term) {
			score += kw.weight
		}
	}
	for _, kw := range penalties {
		if matches(words, joined, kw.term) {
			score -= kw.weight
		}
	}
	return score
}

func matches(words []string, joined, term string) bool {
	if strings.Contains(term, " ") {
		return strings.Contains(joined, " "+term+" ")
	}
	for _, w := range words {
		if strings.HasPrefix(w, term) {
			return true
		}
		if len(term) >= 7 && strings.Contains(w, term) {
			return true
		}
	}
	return false
}

func skippable(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range skippedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
