// Package aliasdict provides a single Aho-Corasick automaton that serves
// both as an alias lookup table and as a full-text scanner, so entity
// linking's alias-dictionary pass can look up and scan surface forms with
// one compiled structure per build.
package aliasdict

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
)

// isJoiner reports punctuation that belongs inside a surface form rather
// than splitting it: "O'Brien", "Jean-Luc", "AT&T".
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘',
		'-', '–', '—',
		'·', '.', '_', '/', '#', '&':
		return true
	default:
		return false
	}
}

func isSeparator(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || isJoiner(r) {
		return false
	}
	return true
}

// Canonicalize lowercases, folds curly quotes/dashes, and collapses runs of
// separators to a single space. The same function is applied to both
// registered surface forms and scanned text so offsets line up.
func Canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}

		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}

	result := out.String()
	if len(result) > 0 && result[len(result)-1] == ' ' {
		result = result[:len(result)-1]
	}
	return result
}

// Entry is one surface form pointing at a concept ID, the unit the
// dictionary is compiled from.
type Entry struct {
	ConceptID string
	Surface   string
}

// Match is a located surface-form hit inside scanned text, with byte
// offsets in the ORIGINAL (uncanonicalized) string.
type Match struct {
	Start       int
	End         int
	MatchedText string
	ConceptIDs  []string
}

// Dictionary is a compiled Aho-Corasick automaton over Concept/Alias
// surface forms.
type Dictionary struct {
	ac           *ahocorasick.Automaton
	patterns     []string
	patternIndex map[string]int
	patternIDs   [][]string
}

// Compile builds a Dictionary from the current Alias table snapshot. Callers
// recompile after any alias-table mutation (new aliases from feedback, seed
// load) rather than mutating the automaton in place.
func Compile(entries []Entry) (*Dictionary, error) {
	d := &Dictionary{patternIndex: make(map[string]int)}

	for _, e := range entries {
		key := Canonicalize(e.Surface)
		if key == "" {
			continue
		}
		idx, exists := d.patternIndex[key]
		if !exists {
			idx = len(d.patterns)
			d.patterns = append(d.patterns, key)
			d.patternIndex[key] = idx
			d.patternIDs = append(d.patternIDs, nil)
		}
		d.patternIDs[idx] = appendUnique(d.patternIDs[idx], e.ConceptID)
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(d.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	d.ac = automaton
	return d, nil
}

// Lookup returns the concept IDs registered exactly under surface.
func (d *Dictionary) Lookup(surface string) []string {
	idx, ok := d.patternIndex[Canonicalize(surface)]
	if !ok {
		return nil
	}
	return d.patternIDs[idx]
}

// Scan finds every alias occurrence in text, with offsets mapped back onto
// the original (non-canonicalized) bytes so callers can anchor mentions and
// coreference spans precisely.
func (d *Dictionary) Scan(text string) []Match {
	if d.ac == nil {
		return nil
	}

	canonical := Canonicalize(text)
	offsetMap := buildOffsetMap(text)

	hits := d.ac.FindAllOverlapping([]byte(canonical))
	result := make([]Match, 0, len(hits))
	for _, h := range hits {
		start := mapOffset(h.Start, offsetMap, len(text))
		end := mapOffset(h.End, offsetMap, len(text))
		if start >= len(text) || end > len(text) || start >= end {
			continue
		}
		result = append(result, Match{
			Start:       start,
			End:         end,
			MatchedText: text[start:end],
			ConceptIDs:  d.patternIDs[h.PatternID],
		})
	}
	return result
}

func buildOffsetMap(original string) []int {
	mapping := make([]int, 0, len(original)+1)
	lastWasSpace := true
	pos := 0

	for _, ch := range original {
		width := utf8.RuneLen(ch)
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}

		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			for i := 0; i < utf8.RuneLen(c); i++ {
				mapping = append(mapping, pos)
			}
			lastWasSpace = false
		} else if !lastWasSpace {
			mapping = append(mapping, pos)
			lastWasSpace = true
		}
		pos += width
	}
	mapping = append(mapping, pos)
	return mapping
}

func mapOffset(canonOffset int, mapping []int, originalLen int) int {
	if canonOffset >= len(mapping) {
		return originalLen
	}
	if canonOffset < 0 {
		return 0
	}
	return mapping[canonOffset]
}

func appendUnique(slice []string, item string) []string {
	for _, s := range slice {
		if s == item {
			return slice
		}
	}
	return append(slice, item)
}
