// Package pipeline coordinates the mapping pipeline: resolve source text,
// embed, retrieve, rerank. Each stage is independently retryable because the
// embedding cache and enrichment table act as checkpoints between attempts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/crosswalk-io/crosswalk/internal/cache"
	"github.com/crosswalk-io/crosswalk/internal/scorer"
	"github.com/crosswalk-io/crosswalk/internal/store"
	"github.com/crosswalk-io/crosswalk/pkg/keys"
	"github.com/crosswalk-io/crosswalk/pkg/models"
)

// ErrControlNotFound is the one hard error of the pipeline: without the
// source control's text nothing downstream can run.
var ErrControlNotFound = errors.New("source control not found")

// Terminal reports whether err should fail the job rather than be retried at
// the message-delivery layer.
func Terminal(err error) bool {
	return errors.Is(err, ErrControlNotFound)
}

// Orchestrator runs the mapping pipeline against the catalog, the embedding
// cache and the external scorer.
type Orchestrator struct {
	catalog          store.Catalog
	cache            cache.EmbeddingCache
	scorer           scorer.Client
	modelVersion     string
	topK             int
	rerankThreshold  float64
	embedConcurrency int
}

// Options carries the tunable pipeline constants.
type Options struct {
	ModelVersion     string
	RetrieveTopK     int
	RerankThreshold  float64
	EmbedConcurrency int
}

// New creates an Orchestrator.
func New(catalog store.Catalog, embeddings cache.EmbeddingCache, sc scorer.Client, opts Options) *Orchestrator {
	if opts.EmbedConcurrency < 1 {
		opts.EmbedConcurrency = 1
	}
	return &Orchestrator{
		catalog:          catalog,
		cache:            embeddings,
		scorer:           sc,
		modelVersion:     opts.ModelVersion,
		topK:             opts.RetrieveTopK,
		rerankThreshold:  opts.RerankThreshold,
		embedConcurrency: opts.EmbedConcurrency,
	}
}

// ValidateControl checks that the source control exists. On a miss it returns
// a best-effort suggestion (sibling controls in the same framework) alongside
// ErrControlNotFound. It never mutates state.
func (o *Orchestrator) ValidateControl(ctx context.Context, controlKey string) (*models.Control, string, error) {
	control, err := o.catalog.GetControl(ctx, controlKey)
	if err == nil {
		return control, "", nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, "", err
	}

	_, suggestion, serr := o.catalog.ControlExists(ctx, controlKey)
	if serr != nil {
		suggestion = ""
	}
	return nil, suggestion, fmt.Errorf("%w: %s", ErrControlNotFound, controlKey)
}

// CheckEnrichment looks up the pre-computed enriched description for the
// control. Absence is not an error; the pipeline falls back to raw text.
func (o *Orchestrator) CheckEnrichment(ctx context.Context, controlKey string) (string, bool, error) {
	return o.catalog.GetEnrichment(ctx, controlKey)
}

// MapControl runs embed → retrieve → rerank for one source control against a
// target framework (optionally restricted to explicit control ids) and
// returns the ranked candidates. An empty target set or empty retrieval
// result yields an empty list, not an error.
func (o *Orchestrator) MapControl(ctx context.Context, sourceKey, targetFrameworkKey string, targetControlIDs []string) ([]models.MappingCandidate, error) {
	sourceText, err := o.resolveSourceText(ctx, sourceKey)
	if err != nil {
		return nil, err
	}

	sourceVec, err := o.resolveEmbedding(ctx, sourceKey, sourceText)
	if err != nil {
		return nil, fmt.Errorf("embed source %s: %w", sourceKey, err)
	}

	targets, err := o.resolveTargets(ctx, targetFrameworkKey, targetControlIDs)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		slog.Info("target framework has no controls", "target_framework_key", targetFrameworkKey)
		return []models.MappingCandidate{}, nil
	}

	targetKeys := make([]string, len(targets))
	targetTexts := make(map[string]string, len(targets))
	for i, target := range targets {
		targetKeys[i] = target.ControlKey
		targetTexts[target.ControlKey] = target.BodyText()
	}

	targetVecs, err := o.resolveTargetEmbeddings(ctx, targetKeys, targetTexts)
	if err != nil {
		return nil, fmt.Errorf("embed targets for %s: %w", targetFrameworkKey, err)
	}

	candidates, err := o.scorer.Retrieve(ctx, sourceVec, targetVecs, targetKeys, o.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}
	if len(candidates) == 0 {
		return []models.MappingCandidate{}, nil
	}

	rerankInput := make([]scorer.RerankCandidate, len(candidates))
	for i, c := range candidates {
		rerankInput[i] = scorer.RerankCandidate{
			ControlKey: c.ControlID,
			Text:       targetTexts[c.ControlID],
		}
	}
	rankings, err := o.scorer.Rerank(ctx, sourceText, rerankInput, o.rerankThreshold)
	if err != nil {
		return nil, fmt.Errorf("rerank candidates: %w", err)
	}

	return buildMappings(rankings, candidates, targetFrameworkKey, targetTexts), nil
}

// SourceText returns the text the pipeline embeds and reasons over for the
// control: the enriched description when available, the raw text otherwise.
func (o *Orchestrator) SourceText(ctx context.Context, controlKey string) (string, error) {
	return o.resolveSourceText(ctx, controlKey)
}

// resolveSourceText prefers the enriched description, falling back to the raw
// control text. A missing source control is the pipeline's hard error.
func (o *Orchestrator) resolveSourceText(ctx context.Context, controlKey string) (string, error) {
	enriched, ok, err := o.catalog.GetEnrichment(ctx, controlKey)
	if err != nil {
		return "", fmt.Errorf("check enrichment %s: %w", controlKey, err)
	}
	if ok {
		return enriched, nil
	}

	control, err := o.catalog.GetControl(ctx, controlKey)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrControlNotFound, controlKey)
	}
	if err != nil {
		return "", fmt.Errorf("get control %s: %w", controlKey, err)
	}

	text := control.BodyText()
	if text == "" {
		return "", fmt.Errorf("%w: %s has no description, text or title", ErrControlNotFound, controlKey)
	}
	return text, nil
}

func (o *Orchestrator) resolveTargets(ctx context.Context, targetFrameworkKey string, targetControlIDs []string) ([]models.Control, error) {
	if len(targetControlIDs) > 0 {
		targets, err := o.catalog.BatchGetControls(ctx, targetFrameworkKey, targetControlIDs)
		if err != nil {
			return nil, fmt.Errorf("batch get target controls: %w", err)
		}
		return targets, nil
	}
	targets, err := o.catalog.ListFrameworkControls(ctx, targetFrameworkKey)
	if err != nil {
		return nil, fmt.Errorf("list target controls: %w", err)
	}
	return targets, nil
}

// resolveEmbedding returns the cached vector for the control, computing and
// caching it on a miss.
func (o *Orchestrator) resolveEmbedding(ctx context.Context, controlKey, text string) ([]float32, error) {
	vec, ok, err := o.cache.Get(ctx, controlKey, o.modelVersion)
	if err != nil {
		return nil, err
	}
	if ok {
		return vec, nil
	}

	vec, err = o.scorer.Embed(ctx, controlKey, text)
	if err != nil {
		return nil, err
	}
	if err := o.cache.Put(ctx, controlKey, o.modelVersion, vec); err != nil {
		// Cache writes are an optimization; the embedding is still usable.
		slog.Warn("caching embedding failed", "control_key", controlKey, "error", err)
	}
	return vec, nil
}

// resolveTargetEmbeddings resolves every target's vector, batch-checking the
// cache first and computing misses with bounded parallelism. The per-target
// calls are independent, so parallel execution only changes throughput; cache
// writes stay last-write-wins safe because embeddings are deterministic.
func (o *Orchestrator) resolveTargetEmbeddings(ctx context.Context, targetKeys []string, targetTexts map[string]string) ([][]float32, error) {
	cached, err := o.cache.BatchGet(ctx, targetKeys, o.modelVersion)
	if err != nil {
		cached = map[string][]float32{}
	}

	vecs := make([][]float32, len(targetKeys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.embedConcurrency)
	for i, key := range targetKeys {
		if vec, ok := cached[key]; ok {
			vecs[i] = vec
			continue
		}
		g.Go(func() error {
			vec, err := o.resolveEmbedding(gctx, key, targetTexts[key])
			if err != nil {
				return err
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

func buildMappings(rankings []scorer.Ranking, candidates []scorer.Candidate, targetFrameworkKey string, targetTexts map[string]string) []models.MappingCandidate {
	similarity := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		similarity[c.ControlID] = c.SimilarityScore
	}

	mappings := make([]models.MappingCandidate, 0, len(rankings))
	for _, r := range rankings {
		mappings = append(mappings, models.MappingCandidate{
			TargetControlKey:   r.ControlID,
			TargetControlID:    keys.ControlIDOf(r.ControlID),
			TargetFrameworkKey: targetFrameworkKey,
			SimilarityScore:    similarity[r.ControlID],
			RerankScore:        r.RerankScore,
			Text:               targetTexts[r.ControlID],
			Reasoning:          "",
		})
	}
	return mappings
}
