// Package transcript post-processes raw STT output.
//
// The Corrector fixes phonetic mishearings of vocabulary terms: STT engines
// reliably garble proper nouns and technical jargon ("scree vo" for
// "Scrivo"), and when no LLM formatting pass runs, nothing else would repair
// them. Matching combines Double Metaphone phonetic encoding with edit
// distance so that only words that both sound like and look like a
// vocabulary term are replaced.
package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// minMatchLen is the shortest word considered for correction. Shorter words
// collide with too many vocabulary terms phonetically.
const minMatchLen = 3

type term struct {
	canonical string
	lower     string
	meta      string
	metaAlt   string
}

// Corrector replaces misrecognized words with canonical vocabulary terms.
// It is immutable after construction and safe for concurrent use.
type Corrector struct {
	terms []term
}

// NewCorrector builds a Corrector from the vocabulary list. Entries
// containing spaces or mapping syntax ("x = y") are skipped; those are prompt
// material for the LLM, not word-level substitutions.
func NewCorrector(vocabulary []string) *Corrector {
	c := &Corrector{}
	for _, v := range vocabulary {
		v = strings.TrimSpace(v)
		if v == "" || strings.ContainsAny(v, " =") {
			continue
		}
		meta, metaAlt := matchr.DoubleMetaphone(v)
		c.terms = append(c.terms, term{
			canonical: v,
			lower:     strings.ToLower(v),
			meta:      meta,
			metaAlt:   metaAlt,
		})
	}
	return c
}

// Correct returns text with misheard vocabulary terms replaced by their
// canonical spelling. Punctuation and the rest of the text are preserved.
func (c *Corrector) Correct(text string) string {
	if len(c.terms) == 0 || text == "" {
		return text
	}

	fields := strings.Split(text, " ")
	for i, f := range fields {
		core, prefix, suffix := trimPunct(f)
		if len(core) < minMatchLen {
			continue
		}
		if repl, ok := c.match(core); ok {
			fields[i] = prefix + repl + suffix
		}
	}
	return strings.Join(fields, " ")
}

func (c *Corrector) match(word string) (string, bool) {
	lower := strings.ToLower(word)
	meta, metaAlt := matchr.DoubleMetaphone(word)

	for _, t := range c.terms {
		if lower == t.lower {
			if word != t.canonical {
				return t.canonical, true
			}
			return "", false
		}

		if !phoneticMatch(meta, metaAlt, t) {
			continue
		}
		// The phonetic codes agree; require the spellings to be close too,
		// so "night" does not become "Knut".
		maxDist := len(t.lower) / 3
		if maxDist < 1 {
			maxDist = 1
		}
		if matchr.Levenshtein(lower, t.lower) <= maxDist {
			return t.canonical, true
		}
	}
	return "", false
}

func phoneticMatch(meta, metaAlt string, t term) bool {
	if meta == "" || t.meta == "" {
		return false
	}
	return meta == t.meta || meta == t.metaAlt || metaAlt == t.meta
}

// trimPunct splits leading and trailing punctuation off a token.
func trimPunct(s string) (core, prefix, suffix string) {
	start := 0
	for start < len(s) && !isWordByte(s[start]) {
		start++
	}
	end := len(s)
	for end > start && !isWordByte(s[end-1]) {
		end--
	}
	return s[start:end], s[:start], s[end:]
}

func isWordByte(b byte) bool {
	return b >= 0x80 || unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b))
}
