// internal/erp/matcher/matcher.go
package matcher

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/erplogin/api/schemas"
)

// minSharedKeywords and minKeywordLength define the keyword overlap heuristic.
const (
	minSharedKeywords = 2
	minKeywordLength  = 2 // tokens must be strictly longer than this
)

// synonyms maps a keyword found in the live question to phrasings a stored question may use.
// Keys are checked in this order.
var synonyms = []struct {
	keyword    string
	variations []string
}{
	{"color", []string{"colour", "favorite color", "favourite color", "fav color"}},
	{"colour", []string{"color", "favorite colour", "favourite colour", "fav colour"}},
	{"game", []string{"favorite game", "favourite game", "fav game"}},
	{"pet", []string{"first pet", "pet name", "favorite pet"}},
	{"mother", []string{"mothers maiden name", "mother maiden name", "mom maiden"}},
	{"father", []string{"fathers middle name", "father middle name", "dad middle"}},
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)

// Normalize lowercases and strips every non-alphanumeric character.
func Normalize(text string) string {
	return nonAlphanumeric.ReplaceAllString(strings.ToLower(text), "")
}

type entry struct {
	question   string
	normalized string
	answer     string
}

// QuestionMap is the per-run mapping from stored question to answer. Entries keep their
// insertion order so that the first stored question wins whenever two normalize alike.
type QuestionMap struct {
	entries []entry
	seen    map[string]struct{}
}

// NewQuestionMap builds the map from credentials. Entries missing a question or an
// answer are skipped.
func NewQuestionMap(questions []schemas.SecurityQuestion) *QuestionMap {
	m := &QuestionMap{seen: make(map[string]struct{}, len(questions))}
	for _, q := range questions {
		m.Add(q.Question, q.Answer)
	}
	return m
}

// Add inserts a question unless a question with the same normalized text already exists.
func (m *QuestionMap) Add(question, answer string) {
	if question == "" || answer == "" {
		return
	}
	norm := Normalize(question)
	if _, dup := m.seen[norm]; dup {
		return
	}
	m.seen[norm] = struct{}{}
	m.entries = append(m.entries, entry{question: question, normalized: norm, answer: answer})
}

// Len returns the number of distinct stored questions.
func (m *QuestionMap) Len() int { return len(m.entries) }

// Questions returns the stored question texts in insertion order.
func (m *QuestionMap) Questions() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.question)
	}
	return out
}

// Match resolves the portal's question to a stored answer. Strategies are tried in order,
// each across every stored question, and the first hit wins:
//
//  1. exact match after normalization
//  2. containment in either direction
//  3. at least two shared keywords
//  4. the synonym table
//
// It never guesses: when nothing matches it fails with NoMatchingSecurityAnswer naming
// the question and every stored question.
func Match(question string, m *QuestionMap) (string, error) {
	if m == nil {
		m = NewQuestionMap(nil)
	}

	live := Normalize(question)
	for _, e := range m.entries {
		if e.question == question || e.normalized == live {
			return e.answer, nil
		}
	}

	// An empty side would contain trivially.
	if live != "" {
		for _, e := range m.entries {
			if e.normalized != "" && (strings.Contains(live, e.normalized) || strings.Contains(e.normalized, live)) {
				return e.answer, nil
			}
		}
	}

	liveWords := Keywords(question)
	for _, e := range m.entries {
		if sharedKeywords(liveWords, Keywords(e.question)) >= minSharedKeywords {
			return e.answer, nil
		}
	}

	if answer, ok := matchSynonym(live, m); ok {
		return answer, nil
	}

	return "", schemas.NewError(schemas.KindNoMatchingSecurityAnswer,
		"no answer found for security question %q; available questions: %s",
		question, strings.Join(m.Questions(), ", "))
}

// stopWords never count towards keyword overlap; nearly every question contains them.
var stopWords = map[string]struct{}{
	"what": {}, "which": {}, "who": {}, "whom": {}, "whose": {}, "where": {}, "when": {},
	"why": {}, "how": {}, "was": {}, "were": {}, "are": {}, "the": {}, "your": {},
	"you": {}, "did": {}, "does": {}, "for": {}, "and": {}, "with": {}, "from": {},
	"that": {}, "this": {}, "have": {}, "has": {},
}

// Keywords splits text on anything that is not a letter or digit and keeps the distinct
// lowercase tokens longer than two characters that are not stop words.
func Keywords(text string) []string {
	fields := strings.Fields(nonAlphanumeric.ReplaceAllString(strings.ToLower(text), " "))
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, w := range fields {
		if len(w) <= minKeywordLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func sharedKeywords(live, stored []string) int {
	set := make(map[string]struct{}, len(stored))
	for _, w := range stored {
		set[w] = struct{}{}
	}
	count := 0
	for _, w := range live {
		if _, ok := set[w]; ok {
			count++
		}
	}
	return count
}

func matchSynonym(live string, m *QuestionMap) (string, bool) {
	for _, syn := range synonyms {
		if !strings.Contains(live, syn.keyword) {
			continue
		}
		for _, e := range m.entries {
			for _, variant := range syn.variations {
				if strings.Contains(e.normalized, Normalize(variant)) {
					return e.answer, true
				}
			}
		}
	}
	return "", false
}
