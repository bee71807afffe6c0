package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	batches [][]string
	fail    bool
}

func (c *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if c.fail {
		return nil, errors.New("quota exceeded")
	}
	c.batches = append(c.batches, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func TestEmbedTextsBatches(t *testing.T) {
	e := &countingEmbedder{}
	vecs, err := EmbedTexts(context.Background(), e, []string{"a", "bb", "ccc", "dddd", "eeeee"}, 2)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Len(t, e.batches, 3)
	assert.Equal(t, float32(3), vecs[2][0])
}

func TestEmbedTextsEmptyAndError(t *testing.T) {
	vecs, err := EmbedTexts(context.Background(), &countingEmbedder{}, nil, 0)
	require.NoError(t, err)
	assert.Nil(t, vecs)

	_, err = EmbedTexts(context.Background(), &countingEmbedder{fail: true}, []string{"x"}, 0)
	assert.ErrorContains(t, err, "quota exceeded")
}
