package scorer

import (
	"log/slog"

	"github.com/crosswalk-io/crosswalk/internal/config"
)

// NewClient constructs the scorer client from config. An empty base URL
// selects the deterministic mock, mirroring local-development behavior.
func NewClient(cfg config.ScorerConfig) Client {
	if cfg.BaseURL == "" {
		slog.Warn("SCORER_BASE_URL not configured, using mock scorer")
		return NewMockClient()
	}
	return NewHTTPClient(cfg.BaseURL, cfg.Timeout)
}
