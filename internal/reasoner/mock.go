package reasoner

import (
	"context"
	"fmt"

	"github.com/crosswalk-io/crosswalk/pkg/models"
)

// MockClient satisfies Client for local development and tests.
type MockClient struct {
	ReasonFunc func(ctx context.Context, sourceControlKey, sourceText string, mapping models.MappingCandidate) (string, error)
}

func (m *MockClient) Name() string { return "mock" }

func (m *MockClient) Reason(ctx context.Context, sourceControlKey, sourceText string, mapping models.MappingCandidate) (string, error) {
	if m.ReasonFunc != nil {
		return m.ReasonFunc(ctx, sourceControlKey, sourceText, mapping)
	}
	return fmt.Sprintf("Both %s and %s address overlapping requirements (similarity %.2f, relevance %.2f).",
		sourceControlKey, mapping.TargetControlKey, mapping.SimilarityScore, mapping.RerankScore), nil
}

func (m *MockClient) ReasonBatch(ctx context.Context, sourceControlKey, sourceText string, mappings []models.MappingCandidate) ([]models.ReasoningResult, error) {
	results := make([]models.ReasoningResult, len(mappings))
	failed := 0
	for i, mp := range mappings {
		text, err := m.Reason(ctx, sourceControlKey, sourceText, mp)
		if err != nil {
			failed++
			text = ""
		}
		results[i] = models.ReasoningResult{TargetControlKey: mp.TargetControlKey, Reasoning: text}
	}
	if len(mappings) > 0 && failed == len(mappings) {
		return nil, fmt.Errorf("%w: all %d reasoning calls failed", ErrBadStatus, failed)
	}
	return results, nil
}

var _ Client = (*MockClient)(nil)
