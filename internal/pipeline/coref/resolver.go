// Package coref resolves parenthetical aliases and pronoun/short-nominal
// mentions within one Chunk into a surface-form -> canonical-form map,
// never introducing new concepts itself (§4.1). It runs entirely on the
// chunk's own text with a bounded-depth antecedent stack; any panic
// recovered mid-resolution downgrades the chunk to ModeSkip rather than
// failing the pipeline (§4.1 failure semantics).
package coref

import (
	"regexp"
	"strings"
	"unicode"

	domain "github.com/yungbote/neurobridge-backend/internal/domain/graphrag"
)

type Mode string

const (
	ModeRewrite  Mode = "rewrite"
	ModeLocal    Mode = "local"
	ModeAlias    Mode = "alias_only"
	ModeSkip     Mode = "skip"
)

// Match is one resolved (or ambiguous) mention within the chunk.
type Match struct {
	Surface    string
	Canonical  string
	Start      int
	End        int
	Confidence float64
	Ambiguous  bool
}

// Result is one chunk's coreference pass: the substituted text (only
// populated in ModeRewrite), the surface->canonical alias map Stage 2
// consumes, and the quality signals that decided the mode.
type Result struct {
	ResolvedText string
	AliasMap     map[string]string
	Mode         Mode
	Coverage     float64
	Conflict     float64
	Matches      []Match
}

// Thresholds mirrors config/thresholds.yaml's coreference namespace.
type Thresholds struct {
	RewriteMinCoverage float64
	RewriteMaxConflict float64
	LocalMinCoverage   float64
	LocalWindow        int
	MaxAntecedentDist  int
}

func DefaultThresholds() Thresholds {
	return Thresholds{RewriteMinCoverage: 0.8, RewriteMaxConflict: 0.15, LocalMinCoverage: 0.5, LocalWindow: 4, MaxAntecedentDist: 2}
}

// parenAliasRE matches both "surface（canonical）"/"surface(canonical)" and
// "canonical（surface）" shapes; disambiguation between the two orderings is
// left to the caller via the two capture groups, since both orderings
// appear in the corpus (Chinese technical writing commonly introduces the
// abbreviation second).
var parenAliasRE = regexp.MustCompile(`([\p{L}\p{N}][\p{L}\p{N}\s\-]{0,40}?)[（(]([\p{L}\p{N}][\p{L}\p{N}\s\-]{0,20})[）)]`)

var pronounClasses = map[string]string{
	"it": "thing", "its": "thing", "this": "thing", "that": "thing", "these": "thing", "those": "thing",
	"he": "person", "him": "person", "his": "person", "she": "person", "her": "person", "hers": "person",
	"they": "plural", "them": "plural", "their": "plural", "theirs": "plural",
	"它": "thing", "他": "person", "她": "person", "他们": "plural", "她们": "plural", "它们": "plural",
}

// roleNouns is a small closed set of common-noun antecedents that carry an
// implicit person referent (§4.1's "short nominal mention" case), since a
// bare heuristic can't tell "the researcher" is a person without some seed
// vocabulary. Anything outside this set still pushes onto the antecedent
// stack under the generic "thing" class.
var roleNouns = map[string]bool{
	"researcher": true, "author": true, "scientist": true, "professor": true,
	"engineer": true, "teacher": true, "doctor": true, "student": true,
	"writer": true, "founder": true, "director": true, "manager": true,
}

// antecedent is one candidate referent sitting on the resolver's bounded
// stack, most-recently-mentioned first.
type antecedent struct {
	canonical string
	class     string
}

// Resolve runs the full coreference pass over one chunk's text. It never
// returns an error: any internal failure is caught and reported as
// ModeSkip with an empty alias map, per §4.1's failure semantics.
func Resolve(chunk *domain.Chunk, th Thresholds) (result Result) {
	defer func() {
		if recover() != nil {
			result = Result{Mode: ModeSkip, AliasMap: map[string]string{}}
		}
	}()

	if chunk == nil || len(strings.TrimSpace(chunk.Text)) < 4 {
		return Result{Mode: ModeSkip, AliasMap: map[string]string{}}
	}

	text := chunk.Text
	aliasMap := map[string]string{}
	var matches []Match

	// Parenthesis aliases are resolved directly (never ambiguous) and also
	// seed the antecedent stack at the position they're introduced, so a
	// pronoun later in the chunk can pick them up.
	var pushes []pushEvent
	excluded := make([][2]int, 0)
	aliasSurfaceLower := map[string]string{}
	for _, m := range parenAliasRE.FindAllStringSubmatchIndex(text, -1) {
		left := strings.TrimSpace(text[m[2]:m[3]])
		right := strings.TrimSpace(text[m[4]:m[5]])
		if left == "" || right == "" {
			continue
		}
		surface, canonical := pickAliasOrdering(left, right)
		aliasMap[surface] = canonical
		aliasSurfaceLower[strings.ToLower(surface)] = canonical

		// The Match span covers only the surface occurrence itself (the
		// text inside the parens when the alias is the shorter side), so
		// rewriting it is a literal substring substitution rather than a
		// collapse of the whole "canonical（surface）" construct. That
		// keeps resolved_text consistent with mechanically applying
		// alias_map to chunk.text.
		surfaceStart, surfaceEnd := m[4], m[5]
		if surface == left {
			surfaceStart, surfaceEnd = m[2], m[3]
		}
		matches = append(matches, Match{Surface: surface, Canonical: canonical, Start: surfaceStart, End: surfaceEnd, Confidence: 0.95})
		pushes = append(pushes, pushEvent{canonical: canonical, class: classify(canonical), position: m[1]})
		excluded = append(excluded, [2]int{m[0], m[1]})
	}

	// Ordinary nominal mentions (role nouns, proper-noun-shaped words, Han
	// phrases) also seed the stack, walked in document order so "nearest"
	// is measured correctly against pronouns that follow.
	var items []walkItem
	for _, p := range pushes {
		pp := p
		items = append(items, walkItem{position: p.position, push: &pp})
	}
	var recurrences []Match
	for _, tok := range tokenize(text) {
		if withinAny(tok.start, tok.end, excluded) {
			continue
		}
		lower := strings.ToLower(tok.text)
		if canonical, known := aliasSurfaceLower[lower]; known {
			// A bare recurrence of an already-introduced alias surface
			// (e.g. the second standalone "AI" after "人工智能（AI）")
			// resolves directly, without consulting the antecedent stack.
			recurrences = append(recurrences, Match{Surface: tok.text, Canonical: canonical, Start: tok.start, End: tok.end, Confidence: 0.9})
			continue
		}
		if _, isPronoun := pronounClasses[lower]; isPronoun {
			t := tok
			items = append(items, walkItem{position: tok.start, pronoun: &t})
			continue
		}
		if class, ok := nominalClass(tok.text, lower); ok {
			items = append(items, walkItem{position: tok.start, push: &pushEvent{canonical: tok.text, class: class, position: tok.start}})
		}
	}
	sortItemsByPosition(items)
	matches = append(matches, recurrences...)

	// Single left-to-right walk: push nominal antecedents as they're
	// encountered, resolve each pronoun against whatever is on the stack
	// at that point in the text.
	var stack []antecedent
	totalMentions := len(matches)
	resolvedMentions := len(matches)
	ambiguousMentions := 0

	for _, it := range items {
		if it.push != nil {
			stack = append([]antecedent{{canonical: it.push.canonical, class: it.push.class}}, stack...)
			continue
		}
		tok := it.pronoun
		class := pronounClasses[strings.ToLower(tok.text)]
		totalMentions++

		candidates := compatibleAntecedents(stack, class, th.MaxAntecedentDist)
		switch len(candidates) {
		case 0:
			// no antecedent found; leave unresolved
		case 1:
			aliasMap[tok.text] = candidates[0].canonical
			matches = append(matches, Match{Surface: tok.text, Canonical: candidates[0].canonical, Start: tok.start, End: tok.end, Confidence: 0.7})
			resolvedMentions++
		default:
			ambiguousMentions++
			matches = append(matches, Match{Surface: tok.text, Start: tok.start, End: tok.end, Ambiguous: true})
		}
	}

	coverage := ratio(resolvedMentions, totalMentions)
	conflict := ratio(ambiguousMentions, totalMentions)

	mode := decideMode(chunk.Text, th, coverage, conflict, len(aliasMap) > 0)

	resolvedText := ""
	if mode == ModeRewrite {
		resolvedText = applyRewrite(text, matches)
	}

	return Result{
		ResolvedText: resolvedText,
		AliasMap:     aliasMap,
		Mode:         mode,
		Coverage:     coverage,
		Conflict:     conflict,
		Matches:      matches,
	}
}

func pickAliasOrdering(left, right string) (surface, canonical string) {
	// The shorter side is almost always the abbreviation introduced next
	// to its full form; ties keep the parenthesized side as the alias.
	if len([]rune(right)) <= len([]rune(left)) {
		return right, left
	}
	return left, right
}

func classify(s string) string {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.IsUpper(r) {
			return "thing"
		}
	}
	return "thing"
}

// pushEvent is a stack-push scheduled at a text offset, used to interleave
// parenthesis-alias pushes and ordinary nominal-mention pushes into one
// document-ordered walk.
type pushEvent struct {
	canonical string
	class     string
	position  int
}

func withinAny(start, end int, ranges [][2]int) bool {
	for _, r := range ranges {
		if start >= r[0] && end <= r[1] {
			return true
		}
	}
	return false
}

var nominalStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "was": true, "are": true, "were": true, "of": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "with": true,
}

var hanStopwords = map[string]bool{
	"的": true, "了": true, "是": true, "在": true, "和": true, "与": true, "或": true, "也": true, "还": true, "就": true,
}

// nominalClass decides whether a non-pronoun token is salient enough to
// seed the antecedent stack: a known role noun, a Han phrase, or a
// capitalized English word that isn't a common function word.
func nominalClass(original, lower string) (string, bool) {
	if roleNouns[lower] {
		return "person", true
	}
	if isHan(original) && len([]rune(original)) >= 2 && !hanStopwords[original] {
		return "thing", true
	}
	if len(original) >= 3 && unicode.IsUpper([]rune(original)[0]) && !nominalStopwords[lower] {
		return "thing", true
	}
	return "", false
}

func isHan(s string) bool {
	for _, r := range s {
		if !unicode.Is(unicode.Han, r) {
			return false
		}
	}
	return len(s) > 0
}

// walkItem is one document-ordered event in the resolution walk: either a
// stack push (parenthesis alias or nominal mention) or a pronoun to
// resolve against whatever is on the stack at that point.
type walkItem struct {
	position int
	push     *pushEvent
	pronoun  *token
}

func sortItemsByPosition(items []walkItem) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j-1].position > items[j].position; j-- {
			items[j-1], items[j] = items[j], items[j-1]
		}
	}
}

func compatibleAntecedents(stack []antecedent, class string, maxDist int) []antecedent {
	limit := len(stack)
	if maxDist > 0 && maxDist < limit {
		limit = maxDist
	}
	var out []antecedent
	for i := 0; i < limit; i++ {
		if stack[i].class == class || class == "" {
			out = append(out, stack[i])
		}
	}
	return out
}

type token struct {
	text  string
	start int
	end   int
}

var tokenRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(text string) []token {
	idx := tokenRE.FindAllStringIndex(text, -1)
	out := make([]token, 0, len(idx))
	for _, loc := range idx {
		out = append(out, token{text: text[loc[0]:loc[1]], start: loc[0], end: loc[1]})
	}
	return out
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func decideMode(text string, th Thresholds, coverage, conflict float64, hasAlias bool) Mode {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 8 || isLikelyTitle(trimmed) {
		return ModeSkip
	}
	switch {
	case coverage >= th.RewriteMinCoverage && conflict <= th.RewriteMaxConflict:
		return ModeRewrite
	case coverage >= th.LocalMinCoverage:
		return ModeLocal
	case hasAlias:
		return ModeAlias
	default:
		return ModeSkip
	}
}

// isLikelyTitle filters very short, punctuation-free, all-caps-or-heading
// shaped chunks out of coreference entirely, per §4.1's "skip for noise
// (titles, very short chunks)" edge case.
func isLikelyTitle(s string) bool {
	if len(strings.Fields(s)) > 6 {
		return false
	}
	for _, r := range s {
		if r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？' {
			return false
		}
	}
	return true
}

// applyRewrite substitutes every resolved match's span with its canonical
// form, rightmost first so earlier byte offsets stay valid.
func applyRewrite(text string, matches []Match) string {
	ordered := append([]Match(nil), matches...)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].Start > ordered[i].Start {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	out := text
	for _, m := range ordered {
		if m.Ambiguous || m.Canonical == "" || m.Start < 0 || m.End > len(out) || m.Start >= m.End {
			continue
		}
		out = out[:m.Start] + m.Canonical + out[m.End:]
	}
	return out
}
