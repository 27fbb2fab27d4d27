// Package scorer talks to the external model-serving service that exposes
// embedding, vector-similarity retrieval and cross-encoder reranking. The
// models themselves are a black box behind this contract.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/crosswalk-io/crosswalk/internal/retry"
)

// Sentinel errors for scorer failures. Unreachable and timeout are transient:
// the dispatch layer redelivers the message rather than failing the job.
var (
	ErrUnreachable = errors.New("scorer unreachable")
	ErrTimeout     = errors.New("scorer request timeout")
	ErrBadStatus   = errors.New("scorer returned error status")
)

// Candidate is one retrieval result: a target control and its cosine
// similarity to the source embedding.
type Candidate struct {
	ControlID       string  `json:"control_id"`
	SimilarityScore float64 `json:"similarity_score"`
}

// RerankCandidate is one input to the cross-encoder.
type RerankCandidate struct {
	ControlKey string `json:"control_key"`
	Text       string `json:"text"`
}

// Ranking is one cross-encoder result at or above the threshold.
type Ranking struct {
	ControlID   string  `json:"control_id"`
	RerankScore float64 `json:"rerank_score"`
}

// Client is the interface to the scoring service.
type Client interface {
	// Embed returns the L2-normalized embedding of text.
	Embed(ctx context.Context, controlKey, text string) ([]float32, error)
	// Retrieve returns the top-k targets by cosine similarity, sorted
	// descending, ties broken by input order.
	Retrieve(ctx context.Context, source []float32, targetEmbeddings [][]float32, targetControlKeys []string, topK int) ([]Candidate, error)
	// Rerank scores candidates against sourceText, filtered to
	// score >= threshold and sorted descending by score.
	Rerank(ctx context.Context, sourceText string, candidates []RerankCandidate, threshold float64) ([]Ranking, error)
	Name() string
}

// HTTPClient implements Client against the scorer's HTTP API. ML inference is
// slow relative to metadata calls, so this client carries its own, longer
// timeout and a retry budget for transient failures.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	policy  retry.Policy
}

// NewHTTPClient creates a scorer client for the given base URL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		policy:  retry.DefaultPolicy,
	}
}

func (c *HTTPClient) Name() string { return "http" }

func (c *HTTPClient) Embed(ctx context.Context, controlKey, text string) ([]float32, error) {
	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	err := c.post(ctx, "/api/v1/embed", map[string]any{
		"control_id": controlKey,
		"text":       text,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("scorer returned empty embedding for %s", controlKey)
	}
	return resp.Embedding, nil
}

func (c *HTTPClient) Retrieve(ctx context.Context, source []float32, targetEmbeddings [][]float32, targetControlKeys []string, topK int) ([]Candidate, error) {
	var resp struct {
		Candidates []Candidate `json:"candidates"`
	}
	err := c.post(ctx, "/api/v1/retrieve", map[string]any{
		"source_embedding":   source,
		"target_embeddings":  targetEmbeddings,
		"target_control_ids": targetControlKeys,
		"top_k":              topK,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

func (c *HTTPClient) Rerank(ctx context.Context, sourceText string, candidates []RerankCandidate, threshold float64) ([]Ranking, error) {
	var resp struct {
		Rankings []Ranking `json:"rankings"`
	}
	err := c.post(ctx, "/api/v1/rerank", map[string]any{
		"source_text": sourceText,
		"candidates":  candidates,
		"threshold":   threshold,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Rankings, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal scorer request: %w", err)
	}

	return retry.Do(ctx, c.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("building request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return classifyError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %s status %d", ErrBadStatus, path, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent(fmt.Errorf("%w: %s status %d", ErrBadStatus, path, resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decoding scorer response: %w", err))
		}
		return nil
	})
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

var _ Client = (*HTTPClient)(nil)
