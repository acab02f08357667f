// Package config loads service configuration from YAML with
// environment variable fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxConfigSize caps config files at 1MB to avoid accidental huge reads.
const maxConfigSize = 1 << 20

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	LLM     LLMConfig     `yaml:"llm"`
	Speech  SpeechConfig  `yaml:"speech"`
	Image   ImageConfig   `yaml:"image"`
	Media   MediaConfig   `yaml:"media"`
	Summary SummaryConfig `yaml:"summary"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// ObsPort serves /health and /metrics on a separate listener.
	// Zero disables the extra listener and mounts them on Addr.
	ObsPort     int      `yaml:"obs_port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// AuthConfig holds bearer token auth configuration
type AuthConfig struct {
	// Tokens maps bearer token to user id.
	Tokens map[string]string `yaml:"tokens"`
	// InternalAPIKey guards the internal persona admin endpoints.
	InternalAPIKey string `yaml:"internal_api_key"`
}

// StoreConfig selects and configures the persistence backend
type StoreConfig struct {
	// Backend is "firestore" or "memory".
	Backend        string `yaml:"backend"`
	GCPProject     string `yaml:"gcp_project"`
	GCPCredentials string `yaml:"gcp_credentials"`
}

// LLMConfig configures the text generation provider
type LLMConfig struct {
	// Provider is "openai" or "gemini".
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	// Vertex AI backend for gemini.
	Project  string `yaml:"project"`
	Location string `yaml:"location"`

	Model string `yaml:"model"`
	// DecisionModel handles the structured modality decision. Defaults
	// to Model.
	DecisionModel string  `yaml:"decision_model"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
}

// SpeechConfig configures text to speech synthesis
type SpeechConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	GroupID string `yaml:"group_id"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	VoiceID string `yaml:"voice_id"`
	// Format is "mp3", "wav", "flac" or "pcm".
	Format string `yaml:"format"`
}

// ImageConfig configures image generation
type ImageConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "stability" or "bedrock".
	Backend      string `yaml:"backend"`
	StabilityKey string `yaml:"stability_key"`
	Model        string `yaml:"model"`
	// Bedrock settings.
	AWSRegion    string `yaml:"aws_region"`
	BedrockModel string `yaml:"bedrock_model"`
}

// MediaConfig configures where generated media is stored and served
type MediaConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

// SummaryConfig configures the summarization side pipeline
type SummaryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	// RedisAddr selects the Redis-backed queue; empty uses the
	// in-process queue.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	QueueKey      string `yaml:"queue_key"`
	Workers       int    `yaml:"workers"`
	// RatePerSecond throttles summarization model calls.
	RatePerSecond float64 `yaml:"rate_per_second"`
	// BackfillSchedule is a cron expression for the sweep that picks
	// up messages whose queued job was lost. Empty disables it.
	BackfillSchedule string `yaml:"backfill_schedule"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

// Default returns a configuration with all defaults and environment
// fallbacks applied, without reading a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.DecisionModel == "" {
		c.LLM.DecisionModel = c.LLM.Model
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.Speech.BaseURL == "" {
		c.Speech.BaseURL = "https://api.minimax.io"
	}
	if c.Speech.Model == "" {
		c.Speech.Model = "speech-02-hd"
	}
	if c.Speech.Format == "" {
		c.Speech.Format = "mp3"
	}
	if c.Image.Backend == "" {
		c.Image.Backend = "stability"
	}
	if c.Image.Model == "" {
		c.Image.Model = "sd3.5-large"
	}
	if c.Image.AWSRegion == "" {
		c.Image.AWSRegion = "us-west-2"
	}
	if c.Image.BedrockModel == "" {
		c.Image.BedrockModel = "stability.sd3-5-large-v1:0"
	}
	if c.Media.Dir == "" {
		c.Media.Dir = "./media"
	}
	if c.Media.BaseURL == "" {
		c.Media.BaseURL = "/media"
	}
	if c.Summary.Model == "" {
		c.Summary.Model = c.LLM.Model
	}
	if c.Summary.QueueKey == "" {
		c.Summary.QueueKey = "parley:summary:jobs"
	}
	if c.Summary.Workers == 0 {
		c.Summary.Workers = 2
	}
	if c.Summary.RatePerSecond == 0 {
		c.Summary.RatePerSecond = 1
	}
}

func (c *Config) applyEnv() {
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "gemini":
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Store.GCPProject == "" {
		c.Store.GCPProject = os.Getenv("GCP_PROJECT")
	}
	if c.Store.GCPCredentials == "" {
		c.Store.GCPCredentials = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if c.Speech.APIKey == "" {
		c.Speech.APIKey = os.Getenv("MINIMAX_API_KEY")
	}
	if c.Speech.GroupID == "" {
		c.Speech.GroupID = os.Getenv("MINIMAX_GROUP_ID")
	}
	if c.Image.StabilityKey == "" {
		c.Image.StabilityKey = os.Getenv("STABILITY_API_KEY")
	}
	if c.Auth.InternalAPIKey == "" {
		c.Auth.InternalAPIKey = os.Getenv("INTERNAL_API_KEY")
	}
	if c.Summary.RedisAddr == "" {
		c.Summary.RedisAddr = os.Getenv("REDIS_ADDR")
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "firestore":
		if c.Store.GCPProject == "" {
			return fmt.Errorf("store.gcp_project is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" && c.LLM.Project == "" {
		return fmt.Errorf("llm.api_key is required")
	}

	if c.Speech.Enabled && (c.Speech.APIKey == "" || c.Speech.GroupID == "") {
		return fmt.Errorf("speech.api_key and speech.group_id are required when speech is enabled")
	}

	if c.Image.Enabled {
		switch c.Image.Backend {
		case "stability":
			if c.Image.StabilityKey == "" {
				return fmt.Errorf("image.stability_key is required for the stability backend")
			}
		case "bedrock":
		default:
			return fmt.Errorf("unknown image backend: %s", c.Image.Backend)
		}
	}

	if c.Summary.Enabled && strings.TrimSpace(c.Summary.Model) == "" {
		return fmt.Errorf("summary.model is required when summarization is enabled")
	}

	return nil
}
