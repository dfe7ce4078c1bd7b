// Package transcript fixes speech-to-text mishearings of known vocabulary:
// persona names and configured terms that general-purpose STT models
// reliably mangle ("vesper" → "vespa", "whisper" → "whisker").
//
// The corrector combines Double Metaphone phonetic encoding with
// Jaro-Winkler string similarity:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each transcript token and each vocabulary term. A term whose codes
//     overlap the token's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the term with the
//     highest Jaro-Winkler similarity (case-insensitive) wins, provided it
//     clears the phonetic threshold. Without a phonetic candidate, a pure
//     similarity pass applies with a stricter fuzzy threshold.
//
// Multi-word terms are matched against token bigrams of the transcript.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// Corrector replaces misheard vocabulary terms in transcripts. It is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	vocabulary        []string
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewCorrector creates a Corrector for the given vocabulary. Empty and
// duplicate terms are dropped; an empty vocabulary yields a corrector that
// returns every transcript unchanged.
func NewCorrector(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	seen := make(map[string]struct{}, len(vocabulary))
	for _, term := range vocabulary {
		term = strings.TrimSpace(term)
		key := strings.ToLower(term)
		if term == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		c.vocabulary = append(c.vocabulary, term)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct scans text token by token (and as token bigrams for multi-word
// terms) and replaces phonetic mishearings of vocabulary terms. It returns
// the corrected text and the number of replacements. Exact matches are left
// alone, so a correct transcript passes through byte-identical.
func (c *Corrector) Correct(text string) (string, int) {
	if len(c.vocabulary) == 0 || strings.TrimSpace(text) == "" {
		return text, 0
	}

	tokens := strings.Fields(text)
	replaced := 0

	// Bigram pass first so "vest per" can collapse into one term.
	for i := 0; i+1 < len(tokens); i++ {
		pair := tokens[i] + " " + tokens[i+1]
		term, ok := c.match(pair, true)
		if !ok {
			continue
		}
		tokens[i] = restoreCase(pair, term)
		copy(tokens[i+1:], tokens[i+2:])
		tokens = tokens[:len(tokens)-1]
		replaced++
	}

	for i, tok := range tokens {
		if strings.Contains(tok, " ") {
			continue // already replaced by the bigram pass
		}
		term, ok := c.match(tok, false)
		if !ok {
			continue
		}
		tokens[i] = restoreCase(tok, term)
		replaced++
	}

	if replaced == 0 {
		return text, 0
	}
	return strings.Join(tokens, " "), replaced
}

// match finds the best vocabulary term for word. multiWord restricts the
// candidate set to terms with more than one token, so single tokens never
// expand into phrases.
func (c *Corrector) match(word string, multiWord bool) (string, bool) {
	wordLower := strings.ToLower(strings.Trim(word, ".,!?;:\"'"))
	if wordLower == "" {
		return "", false
	}
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	var (
		bestTerm     string
		bestScore    float64
		bestPhonetic bool
	)
	for _, term := range c.vocabulary {
		termLower := strings.ToLower(term)
		termTokens := strings.Fields(termLower)
		if multiWord != (len(termTokens) > 1) {
			continue
		}
		if wordLower == termLower {
			// Already right; nothing to do.
			return "", false
		}

		phonetic := codesOverlap(inputCodes, codesForTokens(termTokens))
		score := bestJWScore(wordTokens, termTokens, wordLower, termLower)

		switch {
		case phonetic && score >= c.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				bestTerm, bestScore, bestPhonetic = term, score, true
			}
		case !phonetic && !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore:
			bestTerm, bestScore = term, score
		}
	}
	return bestTerm, bestTerm != ""
}

// restoreCase keeps a leading capital and trailing punctuation from the
// original token on the replacement term.
func restoreCase(original, term string) string {
	trimmed := strings.TrimRight(original, ".,!?;:\"'")
	suffix := original[len(trimmed):]
	if trimmed != "" && trimmed[0] >= 'A' && trimmed[0] <= 'Z' && term != "" {
		term = strings.ToUpper(term[:1]) + term[1:]
	}
	return term + suffix
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// input and the term: full strings, space-stripped strings, and the best
// pairwise token score.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(it, tt, false); s > score {
				score = s
			}
		}
	}
	return score
}
