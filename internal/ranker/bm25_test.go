package ranker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-rag/internal/models"
)

func chunks(bodies ...string) []models.Chunk {
	out := make([]models.Chunk, len(bodies))
	for i, b := range bodies {
		out[i] = models.Chunk{Label: "sheet: s", Body: b, Index: i}
	}
	return out
}

func TestNormalizeFoldsWidthAndCase(t *testing.T) {
	assert.Equal(t, "abc 123 vpn", Normalize("ＡＢＣ　１２３\n\tVPN "))
	assert.Equal(t, "a-b", Normalize("a—b"))
}

func TestTokenizeEmitsNGrams(t *testing.T) {
	toks := Tokenize("Reset, the password!")
	assert.Equal(t, []string{
		"reset", "the", "password",
		"reset the", "the password",
		"reset the password",
	}, toks)
	assert.Nil(t, Tokenize("  !!  "))
}

func TestQueryTokensDeduplicates(t *testing.T) {
	toks := QueryTokens([]string{"vpn", "VPN", "vpn"})
	assert.Equal(t, []string{"vpn", "vpn vpn", "vpn vpn vpn"}, toks)
}

func TestCorpusIDF(t *testing.T) {
	c := NewCorpus(chunks("alpha beta", "alpha gamma", "delta"))
	// alpha appears in 2 of 3 chunks
	want := math.Log((3-2+0.5)/(2+0.5) + 1)
	assert.InDelta(t, want, c.IDF("alpha"), 1e-9)
	assert.Greater(t, c.IDF("delta"), c.IDF("alpha"))
	assert.Zero(t, c.IDF("missing"))
}

func TestScoreIgnoresRepeatedQueryTokens(t *testing.T) {
	c := NewCorpus(chunks("vpn setup guide", "printer driver"))
	doc := Tokenize(c.chunks[0].Text())
	once := Score(doc, []string{"vpn"}, c, DefaultParams())
	twice := Score(doc, []string{"vpn", "vpn"}, c, DefaultParams())
	assert.Greater(t, once, 0.0)
	assert.Equal(t, once, twice)
}

func TestScoreMonotonicInTermFrequency(t *testing.T) {
	c := NewCorpus(chunks("vpn token reset", "vpn vpn reset", "printer paper jam", "calendar invite"))
	low := Tokenize(c.chunks[0].Text())
	high := Tokenize(c.chunks[1].Text())
	require.Equal(t, len(low), len(high))

	q := QueryTokens([]string{"vpn"})
	assert.GreaterOrEqual(t, Score(high, q, c, DefaultParams()), Score(low, q, c, DefaultParams()))
}

func TestRankDropsZeroAndKeepsOrderOnTies(t *testing.T) {
	c := NewCorpus(chunks("vpn guide", "printer", "vpn guide", "password reset steps"))
	got := Rank(c, QueryTokens([]string{"vpn"}), DefaultParams(), 0)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Chunk.Index)
	assert.Equal(t, 2, got[1].Chunk.Index)
	assert.Equal(t, got[0].Score, got[1].Score)
	for _, sc := range got {
		assert.Greater(t, sc.Score, 0.0)
	}
}

func TestRankOrdersByScoreAndLimits(t *testing.T) {
	c := NewCorpus(chunks(
		"password",
		"password reset password reset",
		"unrelated text here",
		"reset",
	))
	got := Rank(c, QueryTokens([]string{"password", "reset"}), DefaultParams(), 2)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Chunk.Index)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
}

func TestRankEmptyInputs(t *testing.T) {
	assert.Nil(t, Rank(NewCorpus(nil), []string{"x"}, DefaultParams(), 5))
	assert.Nil(t, Rank(NewCorpus(chunks("x")), nil, DefaultParams(), 5))
}
