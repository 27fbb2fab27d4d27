package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Crosswalk server and worker.
type Config struct {
	Server   ServerConfig
	AWS      AWSConfig
	Tables   TableConfig
	Queue    QueueConfig
	Redis    RedisConfig
	Scorer   ScorerConfig
	Reasoner ReasonerConfig
	Pipeline PipelineConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	RateLimitPerMin int
}

type AWSConfig struct {
	Region string
	// EndpointURL overrides the SDK endpoint; used for local DynamoDB/SQS stacks.
	EndpointURL string
}

type TableConfig struct {
	Jobs       string
	Controls   string
	Frameworks string
	Enrichment string
}

type QueueConfig struct {
	MappingRequestURL  string
	DLQURL             string
	RedriveMaxMessages int
}

type RedisConfig struct {
	URL string
}

type ScorerConfig struct {
	// BaseURL of the model-serving scorer. Empty selects the mock scorer.
	BaseURL      string
	Timeout      time.Duration
	ModelVersion string
}

type ReasonerConfig struct {
	// BaseURL of the rationale generator. Empty selects the mock reasoner.
	BaseURL     string
	Timeout     time.Duration
	Concurrency int
}

type PipelineConfig struct {
	RetrieveTopK     int
	RerankThreshold  float64
	EmbedConcurrency int
	JobTTLDays       int
}

type WorkerConfig struct {
	BatchSize int
	WaitTime  time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("CROSSWALK_PORT", 8080),
			Env:             envString("CROSSWALK_ENV", "development"),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		AWS: AWSConfig{
			Region:      envString("AWS_REGION", "us-east-1"),
			EndpointURL: os.Getenv("AWS_ENDPOINT_URL"),
		},
		Tables: TableConfig{
			Jobs:       envString("JOB_TABLE_NAME", "MappingJobs"),
			Controls:   envString("CONTROLS_TABLE_NAME", "FrameworkControls"),
			Frameworks: envString("FRAMEWORKS_TABLE_NAME", "Frameworks"),
			Enrichment: envString("ENRICHMENT_TABLE_NAME", "Enrichment"),
		},
		Queue: QueueConfig{
			MappingRequestURL:  os.Getenv("MAPPING_REQUEST_QUEUE_URL"),
			DLQURL:             os.Getenv("MAPPING_REQUEST_DLQ_URL"),
			RedriveMaxMessages: envInt("REDRIVE_MAX_MESSAGES", 100),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Scorer: ScorerConfig{
			BaseURL:      os.Getenv("SCORER_BASE_URL"),
			Timeout:      envDurationSecs("SCORER_TIMEOUT_SECS", 60*time.Second),
			ModelVersion: envString("MODEL_VERSION", "v1"),
		},
		Reasoner: ReasonerConfig{
			BaseURL:     os.Getenv("REASONER_BASE_URL"),
			Timeout:     envDurationSecs("REASONER_TIMEOUT_SECS", 60*time.Second),
			Concurrency: envInt("REASONER_CONCURRENCY", 4),
		},
		Pipeline: PipelineConfig{
			RetrieveTopK:     envInt("RETRIEVE_TOP_K", 20),
			RerankThreshold:  envFloat("RERANK_THRESHOLD", 0.5),
			EmbedConcurrency: envInt("EMBED_CONCURRENCY", 8),
			JobTTLDays:       envInt("JOB_TTL_DAYS", 7),
		},
		Worker: WorkerConfig{
			BatchSize: envInt("WORKER_BATCH_SIZE", 10),
			WaitTime:  envDurationSecs("WORKER_WAIT_TIME_SECS", 20*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Queue.MappingRequestURL == "" {
		return fmt.Errorf("MAPPING_REQUEST_QUEUE_URL is required")
	}

	if c.Scorer.BaseURL != "" && !isHTTPURL(c.Scorer.BaseURL) {
		return fmt.Errorf("SCORER_BASE_URL must start with http:// or https://, got %q", c.Scorer.BaseURL)
	}
	if c.Reasoner.BaseURL != "" && !isHTTPURL(c.Reasoner.BaseURL) {
		return fmt.Errorf("REASONER_BASE_URL must start with http:// or https://, got %q", c.Reasoner.BaseURL)
	}

	if c.Pipeline.RetrieveTopK <= 0 {
		return fmt.Errorf("RETRIEVE_TOP_K must be positive, got %d", c.Pipeline.RetrieveTopK)
	}
	if c.Pipeline.RerankThreshold < 0 || c.Pipeline.RerankThreshold > 1 {
		return fmt.Errorf("RERANK_THRESHOLD must be in [0,1], got %v", c.Pipeline.RerankThreshold)
	}
	if c.Pipeline.JobTTLDays <= 0 {
		return fmt.Errorf("JOB_TTL_DAYS must be positive, got %d", c.Pipeline.JobTTLDays)
	}

	if c.Worker.BatchSize < 1 || c.Worker.BatchSize > 10 {
		return fmt.Errorf("WORKER_BATCH_SIZE must be between 1 and 10, got %d", c.Worker.BatchSize)
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
