package scorer

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
)

// mockDim matches the production embedding dimensionality.
const mockDim = 4096

// MockClient is a deterministic in-process scorer used when no endpoint is
// configured and in pipeline tests. Embeddings are seeded from the text hash,
// retrieval computes real dot products, and reranking derives a stable
// pseudo-score, so the orchestration around it behaves exactly as it would
// against the real service.
type MockClient struct {
	Dim int
}

// NewMockClient returns a mock with the production vector dimensionality.
func NewMockClient() *MockClient {
	return &MockClient{Dim: mockDim}
}

func (m *MockClient) Name() string { return "mock" }

func (m *MockClient) Embed(_ context.Context, _ string, text string) ([]float32, error) {
	rng := rand.New(rand.NewSource(int64(hashText(text))))
	vec := make([]float32, m.dim())
	var sum float64
	for i := range vec {
		vec[i] = float32(rng.Float64()*2 - 1)
		sum += float64(vec[i]) * float64(vec[i])
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (m *MockClient) Retrieve(_ context.Context, source []float32, targetEmbeddings [][]float32, targetControlKeys []string, topK int) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(targetControlKeys))
	for i, key := range targetControlKeys {
		candidates = append(candidates, Candidate{
			ControlID:       key,
			SimilarityScore: dot(source, targetEmbeddings[i]),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SimilarityScore > candidates[j].SimilarityScore
	})
	if topK < len(candidates) {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (m *MockClient) Rerank(_ context.Context, sourceText string, candidates []RerankCandidate, threshold float64) ([]Ranking, error) {
	rankings := make([]Ranking, 0, len(candidates))
	for _, c := range candidates {
		score := pseudoScore(sourceText, c.Text)
		if score >= threshold {
			rankings = append(rankings, Ranking{ControlID: c.ControlKey, RerankScore: score})
		}
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].RerankScore > rankings[j].RerankScore
	})
	return rankings, nil
}

func (m *MockClient) dim() int {
	if m.Dim > 0 {
		return m.Dim
	}
	return mockDim
}

func hashText(text string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return h.Sum32()
}

// pseudoScore maps a (source, target) text pair to a stable value in [0, 1).
func pseudoScore(source, target string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(source))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(target))
	return float64(h.Sum32()%1000) / 1000.0
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

var _ Client = (*MockClient)(nil)
