package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable process configuration, loaded once and passed by
// reference into constructors. Pipeline code never reads ambient state.
type Config struct {
	Project struct {
		ID string `yaml:"id"`
	} `yaml:"project"`

	GCP struct {
		Region string `yaml:"region"`
	} `yaml:"gcp"`

	ML struct {
		Inference InferenceConfig `yaml:"inference"`
		Model     ModelConfig     `yaml:"model"`
	} `yaml:"ml"`

	Validation ValidationConfig `yaml:"validation"`

	Data struct {
		DefaultCurrency  string `yaml:"default_currency"`
		Timezone         string `yaml:"timezone"`
		UserBatchSize    int    `yaml:"user_batch_size"`
		Workers          int    `yaml:"workers"`
		MailboxExportURI string `yaml:"mailbox_export_uri"`
	} `yaml:"data"`

	Feedback FeedbackConfig `yaml:"feedback"`

	// TemplatesPath points at an optional YAML file with additional
	// templates, appended after the built-in set.
	TemplatesPath string `yaml:"templates_path"`
}

// Inference modes.
const (
	InferenceModeCloudFunction = "cloud_function"
	InferenceModeVertexAI      = "vertex_ai"
	InferenceModeLocal         = "local"
)

// InferenceConfig selects the primary backend and its parameters.
type InferenceConfig struct {
	Mode                string  `yaml:"mode"` // cloud_function, vertex_ai, local
	FunctionURL         string  `yaml:"function_url"`
	FunctionName        string  `yaml:"function_name"`
	VertexEndpoint      string  `yaml:"vertex_endpoint"`
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// ModelConfig bounds the local model cache.
type ModelConfig struct {
	ArtifactPath    string `yaml:"artifact_path"` // gs://... or local path
	CacheMaxEntries int    `yaml:"cache_max_entries"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
}

// ValidationConfig defines the required-field list and status vocabulary.
type ValidationConfig struct {
	RequiredFields []string `yaml:"required_fields"`
	Statuses       []string `yaml:"statuses"`
}

// FeedbackConfig locates the feedback table and the retraining gate.
type FeedbackConfig struct {
	Dataset      string `yaml:"dataset"`
	Table        string `yaml:"table"`
	MinCount     int    `yaml:"min_count"`
	LookbackDays int    `yaml:"lookback_days"`
}

// Transaction fields the validator knows how to check. A configured required
// field outside this set is a deployment mistake and fails startup.
var knownFields = map[string]bool{
	"date":        true,
	"description": true,
	"amount":      true,
	"account_id":  true,
	"user_id":     true,
	"vendor":      true,
	"account":     true,
	"currency":    true,
}

var knownStatuses = map[string]bool{
	"pending":   true,
	"processed": true,
	"failed":    true,
}

// Load reads configuration from path, or from CONFIG_PATH when path is empty,
// applies defaults, and validates the invariant set.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Load: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, defaults, and validates a raw YAML config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("Parse: decoding yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with only defaults applied, for tests and tools
// that do not read a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.GCP.Region == "" {
		c.GCP.Region = "us-central1"
	}
	if c.ML.Inference.Mode == "" {
		c.ML.Inference.Mode = InferenceModeCloudFunction
	}
	if c.ML.Inference.FunctionName == "" {
		c.ML.Inference.FunctionName = "ml-inference-function"
	}
	if c.ML.Inference.TimeoutSeconds == 0 {
		c.ML.Inference.TimeoutSeconds = 45
	}
	if c.ML.Inference.ConfidenceThreshold == 0 {
		c.ML.Inference.ConfidenceThreshold = 0.7
	}
	if c.ML.Model.CacheMaxEntries == 0 {
		c.ML.Model.CacheMaxEntries = 4
	}
	if c.ML.Model.CacheTTLMinutes == 0 {
		c.ML.Model.CacheTTLMinutes = 60
	}
	if len(c.Validation.RequiredFields) == 0 {
		c.Validation.RequiredFields = []string{"date", "description", "amount", "account_id", "user_id"}
	}
	if len(c.Validation.Statuses) == 0 {
		c.Validation.Statuses = []string{"pending", "processed", "failed"}
	}
	if c.Data.DefaultCurrency == "" {
		c.Data.DefaultCurrency = "USD"
	}
	if c.Data.Timezone == "" {
		c.Data.Timezone = "UTC"
	}
	if c.Data.UserBatchSize == 0 {
		c.Data.UserBatchSize = 10
	}
	if c.Data.Workers == 0 {
		c.Data.Workers = 5
	}
	if c.Feedback.Dataset == "" {
		c.Feedback.Dataset = "transactions"
	}
	if c.Feedback.Table == "" {
		c.Feedback.Table = "ml_feedback"
	}
	if c.Feedback.MinCount == 0 {
		c.Feedback.MinCount = 100
	}
	if c.Feedback.LookbackDays == 0 {
		c.Feedback.LookbackDays = 30
	}
}

// Validate fails fast when the configured invariant set is internally
// inconsistent: an unknown required field, an unknown status name, a bad
// inference mode, or an unparsable timezone.
func (c *Config) Validate() error {
	for _, f := range c.Validation.RequiredFields {
		if !knownFields[f] {
			return fmt.Errorf("Validate: unknown required field %q", f)
		}
	}
	for _, s := range c.Validation.Statuses {
		if !knownStatuses[s] {
			return fmt.Errorf("Validate: unknown status %q", s)
		}
	}
	switch c.ML.Inference.Mode {
	case InferenceModeCloudFunction, InferenceModeVertexAI, InferenceModeLocal:
	default:
		return fmt.Errorf("Validate: unknown inference mode %q", c.ML.Inference.Mode)
	}
	if c.ML.Inference.ConfidenceThreshold < 0 || c.ML.Inference.ConfidenceThreshold > 1 {
		return fmt.Errorf("Validate: confidence threshold %v out of [0,1]", c.ML.Inference.ConfidenceThreshold)
	}
	if _, err := time.LoadLocation(c.Data.Timezone); err != nil {
		return fmt.Errorf("Validate: timezone %q: %w", c.Data.Timezone, err)
	}
	return nil
}

// Location returns the account timezone. Validate guarantees it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Data.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// InferenceTimeout returns the per-backend call timeout.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.ML.Inference.TimeoutSeconds) * time.Second
}

// ModelCacheTTL returns the local model cache entry lifetime.
func (c *Config) ModelCacheTTL() time.Duration {
	return time.Duration(c.ML.Model.CacheTTLMinutes) * time.Minute
}

// RequiredFieldSet returns the required fields as a set.
func (c *Config) RequiredFieldSet() map[string]bool {
	set := make(map[string]bool, len(c.Validation.RequiredFields))
	for _, f := range c.Validation.RequiredFields {
		set[strings.ToLower(f)] = true
	}
	return set
}

// StatusSet returns the allowed status vocabulary as a set.
func (c *Config) StatusSet() map[string]bool {
	set := make(map[string]bool, len(c.Validation.Statuses))
	for _, s := range c.Validation.Statuses {
		set[strings.ToLower(s)] = true
	}
	return set
}
