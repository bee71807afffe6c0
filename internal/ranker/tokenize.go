package ranker

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	minGram = 2
	maxGram = 4
)

var dashReplacer = strings.NewReplacer(
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "―", "-", "ー", "-",
)

// Normalize folds full/half width forms, unifies dashes, lower-cases and
// collapses whitespace.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = dashReplacer.Replace(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize returns unigrams followed by contiguous word n-grams (2..4).
// Punctuation other than '-' is treated as a separator.
func Tokenize(s string) []string {
	s = Normalize(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) || r == '-' {
			return r
		}
		return ' '
	}, s)
	toks := strings.Fields(s)
	if len(toks) == 0 {
		return nil
	}

	out := make([]string, 0, len(toks)*maxGram)
	out = append(out, toks...)
	for n := minGram; n <= maxGram; n++ {
		for i := 0; i+n <= len(toks); i++ {
			out = append(out, strings.Join(toks[i:i+n], " "))
		}
	}
	return out
}

// QueryTokens tokenizes keywords as one query string, dropping repeats.
func QueryTokens(keywords []string) []string {
	return dedupe(Tokenize(strings.Join(keywords, " ")))
}

func dedupe(toks []string) []string {
	seen := make(map[string]struct{}, len(toks))
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
