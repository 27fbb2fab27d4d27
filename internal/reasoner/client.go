// Package reasoner talks to the external rationale generator that explains
// why a source control maps to a target control. The generator is a black box
// behind this contract; only the text comes back.
package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crosswalk-io/crosswalk/internal/retry"
	"github.com/crosswalk-io/crosswalk/pkg/models"
)

var (
	ErrUnreachable = errors.New("reasoner unreachable")
	ErrTimeout     = errors.New("reasoner request timeout")
	ErrBadStatus   = errors.New("reasoner returned error status")
)

// Client generates mapping rationale, one candidate at a time or as a batch.
type Client interface {
	// Reason generates a rationale for a single candidate.
	Reason(ctx context.Context, sourceControlKey, sourceText string, mapping models.MappingCandidate) (string, error)
	// ReasonBatch generates rationale for every candidate. A candidate whose
	// generation fails gets an empty rationale rather than failing the batch;
	// the batch errors only when no candidate could be served at all.
	ReasonBatch(ctx context.Context, sourceControlKey, sourceText string, mappings []models.MappingCandidate) ([]models.ReasoningResult, error)
	Name() string
}

// HTTPClient implements Client against the generator's HTTP API.
type HTTPClient struct {
	baseURL     string
	client      *http.Client
	policy      retry.Policy
	concurrency int
}

// NewHTTPClient creates a reasoner client for the given base URL.
// concurrency bounds the batch fan-out.
func NewHTTPClient(baseURL string, timeout time.Duration, concurrency int) *HTTPClient {
	if concurrency < 1 {
		concurrency = 1
	}
	return &HTTPClient{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: timeout},
		policy:      retry.DefaultPolicy,
		concurrency: concurrency,
	}
}

func (c *HTTPClient) Name() string { return "http" }

func (c *HTTPClient) Reason(ctx context.Context, sourceControlKey, sourceText string, mapping models.MappingCandidate) (string, error) {
	payload := map[string]any{
		"source_control_id": sourceControlKey,
		"source_text":       sourceText,
		"target_control_id": mapping.TargetControlID,
		"target_framework":  frameworkNameOf(mapping.TargetFrameworkKey),
		"target_text":       mapping.Text,
		"similarity_score":  mapping.SimilarityScore,
		"rerank_score":      mapping.RerankScore,
	}

	var resp struct {
		Reasoning string `json:"reasoning"`
	}
	if err := c.post(ctx, "/api/v1/reason", payload, &resp); err != nil {
		return "", err
	}
	return resp.Reasoning, nil
}

func (c *HTTPClient) ReasonBatch(ctx context.Context, sourceControlKey, sourceText string, mappings []models.MappingCandidate) ([]models.ReasoningResult, error) {
	results := make([]models.ReasoningResult, len(mappings))
	failures := make([]error, len(mappings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, m := range mappings {
		g.Go(func() error {
			text, err := c.Reason(gctx, sourceControlKey, sourceText, m)
			if err != nil {
				slog.Warn("reasoning generation failed for candidate",
					"target_control_key", m.TargetControlKey, "error", err)
				failures[i] = err
				text = ""
			}
			results[i] = models.ReasoningResult{
				TargetControlKey: m.TargetControlKey,
				Reasoning:        text,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Every candidate failing means the endpoint itself is down; surface that
	// so the message-delivery layer can redeliver.
	if len(mappings) > 0 {
		allFailed := true
		for _, err := range failures {
			if err == nil {
				allFailed = false
				break
			}
		}
		if allFailed {
			return nil, fmt.Errorf("reasoning batch failed for all %d candidates: %w", len(mappings), failures[0])
		}
	}
	return results, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal reasoner request: %w", err)
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
			return fmt.Errorf("%w: status %d", ErrBadStatus, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent(fmt.Errorf("%w: status %d", ErrBadStatus, resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decoding reasoner response: %w", err))
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

func frameworkNameOf(frameworkKey string) string {
	return strings.SplitN(frameworkKey, "#", 2)[0]
}

var _ Client = (*HTTPClient)(nil)
