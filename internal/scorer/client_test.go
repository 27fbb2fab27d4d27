package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosswalk-io/crosswalk/internal/retry"
)

func newTestClient(baseURL string) *HTTPClient {
	c := NewHTTPClient(baseURL, 2*time.Second)
	c.policy = retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 1, Jitter: 0}
	return c
}

func TestEmbed_ValidResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AWS.EC2#1.0#PR.1", req["control_id"])
		assert.Equal(t, "instances must use IMDSv2", req["text"])

		json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{0.6, 0.8},
		})
	}))
	defer ts.Close()

	vec, err := newTestClient(ts.URL).Embed(context.Background(), "AWS.EC2#1.0#PR.1", "instances must use IMDSv2")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, vec)
}

func TestEmbed_EmptyEmbedding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{}})
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Embed(context.Background(), "k", "text")
	assert.Error(t, err)
}

func TestRetrieve_ValidResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/retrieve", r.URL.Path)

		var req struct {
			TopK int `json:"top_k"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 20, req.TopK)

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []Candidate{
				{ControlID: "NIST-SP-800-53#R5#AC-1", SimilarityScore: 0.91},
				{ControlID: "NIST-SP-800-53#R5#AC-2", SimilarityScore: 0.74},
			},
		})
	}))
	defer ts.Close()

	got, err := newTestClient(ts.URL).Retrieve(context.Background(),
		[]float32{1, 0}, [][]float32{{1, 0}, {0, 1}},
		[]string{"NIST-SP-800-53#R5#AC-1", "NIST-SP-800-53#R5#AC-2"}, 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "NIST-SP-800-53#R5#AC-1", got[0].ControlID)
	assert.Equal(t, 0.91, got[0].SimilarityScore)
}

func TestRerank_ValidResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rerank", r.URL.Path)

		var req struct {
			Threshold float64 `json:"threshold"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0.5, req.Threshold)

		json.NewEncoder(w).Encode(map[string]any{
			"rankings": []Ranking{{ControlID: "NIST-SP-800-53#R5#AC-1", RerankScore: 0.88}},
		})
	}))
	defer ts.Close()

	got, err := newTestClient(ts.URL).Rerank(context.Background(), "source text",
		[]RerankCandidate{{ControlKey: "NIST-SP-800-53#R5#AC-1", Text: "target text"}}, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.88, got[0].RerankScore)
}

func TestPost_ServerErrorIsTransientAndRetried(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1}})
	}))
	defer ts.Close()

	vec, err := newTestClient(ts.URL).Embed(context.Background(), "k", "text")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []float32{0.1}, vec)
}

func TestPost_ClientErrorIsPermanent(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Embed(context.Background(), "k", "text")
	require.ErrorIs(t, err, ErrBadStatus)
	assert.Equal(t, 1, attempts)
}

func TestPost_ConnectionRefusedIsUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // immediately, so the port refuses connections

	_, err := newTestClient(ts.URL).Embed(context.Background(), "k", "text")
	require.ErrorIs(t, err, ErrUnreachable)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestMock_EmbedDeterministicAndNormalized(t *testing.T) {
	m := &MockClient{Dim: 64}

	a, err := m.Embed(context.Background(), "k", "some control text")
	require.NoError(t, err)
	b, err := m.Embed(context.Background(), "other-key", "some control text")
	require.NoError(t, err)
	assert.Equal(t, a, b, "embedding depends only on text")

	var sum float64
	for _, f := range a {
		sum += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, sum, 1e-3)
}

func TestMock_RetrieveSortsAndTruncates(t *testing.T) {
	m := &MockClient{Dim: 2}
	got, err := m.Retrieve(context.Background(), []float32{1, 0},
		[][]float32{{0, 1}, {1, 0}, {0.7, 0.7}},
		[]string{"far", "exact", "close"}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].ControlID)
	assert.Equal(t, "close", got[1].ControlID)
}

func TestMock_RerankFiltersByThreshold(t *testing.T) {
	m := &MockClient{Dim: 2}
	candidates := []RerankCandidate{
		{ControlKey: "a", Text: "alpha"},
		{ControlKey: "b", Text: "beta"},
		{ControlKey: "c", Text: "gamma"},
	}
	got, err := m.Rerank(context.Background(), "source", candidates, 0.0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	strict, err := m.Rerank(context.Background(), "source", candidates, 1.0)
	require.NoError(t, err)
	assert.Empty(t, strict)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].RerankScore, got[i].RerankScore)
	}
}
