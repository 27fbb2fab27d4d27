package reasoner

import (
	"log/slog"

	"github.com/crosswalk-io/crosswalk/internal/config"
)

// NewClient constructs the reasoner client from config. An empty base URL
// selects the mock, mirroring local-development behavior.
func NewClient(cfg config.ReasonerConfig) Client {
	if cfg.BaseURL == "" {
		slog.Warn("REASONER_BASE_URL not configured, using mock reasoner")
		return &MockClient{}
	}
	return NewHTTPClient(cfg.BaseURL, cfg.Timeout, cfg.Concurrency)
}
