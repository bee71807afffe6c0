package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"support-rag/internal/config"
	"support-rag/internal/models"
)

const braveBody = `{"web":{"results":[
 {"title":"Reset guide","url":"https://www.example.com/reset?utm=1","description":"Use the portal."},
 {"title":"Reset guide (dup)","url":"https://www.example.com/reset#top","description":"Same page."},
 {"title":"Forum","url":"https://forum.test/t/42","description":"Community answer."}
]}}`

func braveServer(t *testing.T, status int, body string) (*httptest.Server, *http.Request) {
	t.Helper()
	var seen http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = *r
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestBraveSearchDedupesCitations(t *testing.T) {
	srv, seen := braveServer(t, http.StatusOK, braveBody)
	b, err := NewBrave(&config.SearchConfig{Key: "k", BaseURL: srv.URL, Count: 5, Country: "JP", Language: "ja"})
	require.NoError(t, err)

	res, err := b.Search(context.Background(), Request{Query: "reset password"})
	require.NoError(t, err)
	assert.Equal(t, models.ResultCited, res.Kind)
	require.Len(t, res.Citations, 2)
	assert.Equal(t, "https://www.example.com/reset?utm=1", res.Citations[0].URL)
	assert.Equal(t, "https://forum.test/t/42", res.Citations[1].URL)
	assert.Contains(t, res.Text, "Use the portal.")
	assert.NotContains(t, res.Text, "Same page.")

	assert.Equal(t, "/res/v1/web/search", seen.URL.Path)
	assert.Equal(t, "reset password", seen.URL.Query().Get("q"))
	assert.Equal(t, "ja", seen.URL.Query().Get("search_lang"))
	assert.Equal(t, "k", seen.Header.Get("X-Subscription-Token"))
}

func TestBraveSearchAllowList(t *testing.T) {
	srv, _ := braveServer(t, http.StatusOK, braveBody)
	b, err := NewBrave(&config.SearchConfig{Key: "k", BaseURL: srv.URL, Count: 5})
	require.NoError(t, err)

	res, err := b.Search(context.Background(), Request{Query: "q", AllowedURLs: []string{"https://forum.test/"}})
	require.NoError(t, err)
	require.Len(t, res.Citations, 1)
	assert.Equal(t, "https://forum.test/t/42", res.Citations[0].URL)

	res, err = b.Search(context.Background(), Request{Query: "q", AllowedURLs: []string{"https://nowhere.test/"}})
	require.NoError(t, err)
	assert.Equal(t, models.PlainResult(NoResults), res)
}

func TestBraveSearchErrors(t *testing.T) {
	srv, _ := braveServer(t, http.StatusTooManyRequests, `{"error":"rate"}`)
	b, err := NewBrave(&config.SearchConfig{Key: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = b.Search(context.Background(), Request{Query: "q"})
	assert.ErrorContains(t, err, "429")

	_, err = b.Search(context.Background(), Request{Query: "  "})
	assert.ErrorIs(t, err, errEmptyQuery)

	_, err = NewBrave(&config.SearchConfig{})
	assert.Error(t, err)
}

func TestNormalizeAndDomain(t *testing.T) {
	assert.Equal(t, "https://a.test/x", NormalizeURL("https://a.test/x?y=1#z"))
	assert.Equal(t, "https://a.test/x", NormalizeURL("https://a.test/x#z"))
	assert.Equal(t, "example.com", DomainOf("https://www.Example.com/path"))
	assert.Equal(t, "", DomainOf("not a url"))

	got := DedupeCitations([]models.Citation{
		{URL: "https://a.test/x?1"}, {URL: ""}, {URL: "https://a.test/x?2", Title: "dup"}, {URL: "https://b.test"},
	})
	assert.Equal(t, []models.Citation{{URL: "https://a.test/x?1"}, {URL: "https://b.test"}}, got)
}

func TestGroundingCitations(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		GroundingMetadata: &genai.GroundingMetadata{GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{URI: "https://help.test/reset", Title: "help.test"}},
			nil,
			{Web: &genai.GroundingChunkWeb{}},
		}},
	}}}
	assert.Equal(t, []models.Citation{{URL: "https://help.test/reset", Title: "help.test"}}, groundingCitations(resp))
	assert.Nil(t, groundingCitations(&genai.GenerateContentResponse{}))
}

func TestLimitTimesOutSlowSearch(t *testing.T) {
	slow := SearcherFunc(func(ctx context.Context, req Request) (models.SearchResult, error) {
		<-ctx.Done()
		return models.SearchResult{}, ctx.Err()
	})
	_, err := Limit(slow, 0, 0, 10*time.Millisecond).Search(context.Background(), Request{Query: "q"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
