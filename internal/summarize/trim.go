package summarize

import (
	"strings"
	"unicode/utf8"

	"support-rag/internal/models"
)

// TrimOptions tunes SmartTrim. Lengths are in runes.
type TrimOptions struct {
	// Back is how far before the target a sentence end may fall.
	Back int
	// Flex is how far past the target the search window reaches.
	Flex int
	// Floor is the shortest acceptable cut when falling back to an earlier
	// sentence end.
	Floor int
	// Ceiling is the hard maximum output length. Zero means the target.
	Ceiling int
}

func DefaultTrimOptions() TrimOptions {
	return TrimOptions{Back: 80, Flex: 200, Floor: 520}
}

// HardTrim returns s trimmed of surrounding space, cut to maxChars-1 runes
// plus a truncation marker when longer than maxChars.
func HardTrim(s string, maxChars int) string {
	s = strings.TrimSpace(s)
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	r := []rune(s)
	return string(r[:maxChars-1]) + models.TruncationMarker
}

// sentenceEndAt reports whether r[i] ends a sentence. An ASCII period only
// counts before whitespace or the end of text so URLs and decimals stay whole.
func sentenceEndAt(r []rune, i int) bool {
	switch r[i] {
	case '。', '．', '！', '!', '？', '?', '\n':
		return true
	case '.':
		return i+1 == len(r) || isSpace(r[i+1])
	}
	return false
}

// SmartTrim shortens s to at most the ceiling, preferring to cut just after a
// sentence end. It takes the first sentence end in [target-Back, target+Flex]
// that fits under the ceiling, else the last one before the target that is
// not shorter than min(Floor, target-Back), else hard-trims to the ceiling.
func SmartTrim(s string, target int, opts TrimOptions) string {
	s = strings.TrimSpace(s)
	if s == "" || target <= 0 {
		return ""
	}
	ceiling := opts.Ceiling
	if ceiling <= 0 || ceiling > target+opts.Flex {
		ceiling = target
	}
	r := []rune(s)
	if len(r) <= ceiling {
		return s
	}

	start := max(0, target-opts.Back)
	end := min(len(r)-1, target+opts.Flex, ceiling-1)
	cut := -1
	for i := start; i <= end; i++ {
		if sentenceEndAt(r, i) {
			cut = i + 1
			break
		}
	}

	if cut < 0 {
		limit := min(target, ceiling)
		lowest := min(opts.Floor, target-opts.Back)
		for i := 0; i < limit && i < len(r); i++ {
			if sentenceEndAt(r, i) && i+1 >= lowest {
				cut = i + 1
			}
		}
	}

	if cut < 0 {
		return HardTrim(s, ceiling)
	}
	return strings.TrimRightFunc(string(r[:cut]), isSpace)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '　'
}
