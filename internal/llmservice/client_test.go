package llmservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	content  string
	err      error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

var rankingSchema = map[string]any{
	"type":     "object",
	"required": []any{"ranking"},
	"properties": map[string]any{
		"ranking": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"idx", "score"},
				"properties": map[string]any{
					"idx":   map[string]any{"type": "integer"},
					"score": map[string]any{"type": "number"},
				},
			},
		},
	},
}

func TestLangChainBuildsMessagesAndOptions(t *testing.T) {
	m := &fakeModel{content: "<think>hmm</think>\n{\"ok\": true}"}
	gen := NewLangChainWithModel(m, 0.7)

	out, err := gen.Generate(context.Background(), Request{
		System:      "be brief",
		Prompt:      "hello",
		Format:      FormatJSON,
		Temperature: Temp(0),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)

	require.Len(t, m.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.messages[1].Role)
	assert.True(t, m.opts.JSONMode)
	assert.Equal(t, 0.0, m.opts.Temperature)
}

func TestLangChainErrorIsTransient(t *testing.T) {
	gen := NewLangChainWithModel(&fakeModel{err: errors.New("502 bad gateway")}, 0)
	_, err := gen.Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestGenerateJSONDecodesFencedOutput(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		assert.Equal(t, FormatJSON, req.Format)
		return "Here you go:\n```json\n{\"ranking\":[{\"idx\":2,\"score\":0.9}]}\n```", nil
	})
	var out struct {
		Ranking []struct {
			Idx   int     `json:"idx"`
			Score float64 `json:"score"`
		} `json:"ranking"`
	}
	require.NoError(t, GenerateJSON(context.Background(), gen, Request{Prompt: "p", Schema: rankingSchema}, &out))
	require.Len(t, out.Ranking, 1)
	assert.Equal(t, 2, out.Ranking[0].Idx)
}

func TestDecodeJSONMalformed(t *testing.T) {
	var out map[string]any
	for _, raw := range []string{"", "not json at all", `{"ranking": "nope"}`, `{"ranking":[{"idx":"a","score":1}]}`, `{"ranking": [`} {
		err := DecodeJSON(raw, rankingSchema, &out)
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestGenerateJSONPassesThroughTransient(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		return "", ErrTransient
	})
	var out map[string]any
	err := GenerateJSON(context.Background(), gen, Request{}, &out)
	assert.ErrorIs(t, err, ErrTransient)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func TestLimitAppliesTimeoutAndWrapsErrors(t *testing.T) {
	slow := GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	gen := Limit(slow, 0, 0, 20*time.Millisecond)
	_, err := gen.Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimitKeepsMalformedKind(t *testing.T) {
	bad := GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		return "", ErrMalformed
	})
	_, err := Limit(bad, 10, 1, time.Second).Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.NotErrorIs(t, err, ErrTransient)
}

func TestLimitRespectsCancelledContext(t *testing.T) {
	ok := GeneratorFunc(func(ctx context.Context, req Request) (string, error) { return "x", nil })
	gen := Limit(ok, 0.001, 1, time.Second)
	_, err := gen.Generate(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gen.Generate(ctx, Request{})
	assert.ErrorIs(t, err, ErrTransient)
}
