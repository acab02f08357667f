package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig_FileSizeLimit(t *testing.T) {
	tmpDir := t.TempDir()

	// Create a large file (> 1MB)
	largeFile := filepath.Join(tmpDir, "large.yaml")
	data := strings.Repeat("x: value\n", 200000) // ~1.6MB
	err := os.WriteFile(largeFile, []byte(data), 0600)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	_, err = LoadConfig(largeFile)
	if err == nil {
		t.Error("expected error for large file")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected 'too large' error, got: %v", err)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()

	validConfig := `
server:
  addr: ":9090"
llm:
  provider: openai
  api_key: test-key
  model: gpt-4o
store:
  backend: memory
`

	validFile := filepath.Join(tmpDir, "valid.yaml")
	err := os.WriteFile(validFile, []byte(validConfig), 0600)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cfg, err := LoadConfig(validFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected addr ':9090', got %s", cfg.Server.Addr)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("expected model 'gpt-4o', got %s", cfg.LLM.Model)
	}
	// DecisionModel defaults to the main model.
	if cfg.LLM.DecisionModel != "gpt-4o" {
		t.Errorf("expected decision model 'gpt-4o', got %s", cfg.LLM.DecisionModel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got: %v", err)
	}
}

func TestLoadConfig_NonexistentFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()

	invalidYAML := `
server:
invalid yaml here: [[[
`

	invalidFile := filepath.Join(tmpDir, "invalid.yaml")
	err := os.WriteFile(invalidFile, []byte(invalidYAML), 0600)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	_, err = LoadConfig(invalidFile)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults with key",
			mutate: func(c *Config) { c.LLM.APIKey = "k" },
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.LLM.APIKey = "" },
			wantErr: "api_key",
		},
		{
			name: "firestore without project",
			mutate: func(c *Config) {
				c.LLM.APIKey = "k"
				c.Store.Backend = "firestore"
				c.Store.GCPProject = ""
			},
			wantErr: "gcp_project",
		},
		{
			name: "unknown store backend",
			mutate: func(c *Config) {
				c.LLM.APIKey = "k"
				c.Store.Backend = "etcd"
			},
			wantErr: "unknown store backend",
		},
		{
			name: "speech enabled without credentials",
			mutate: func(c *Config) {
				c.LLM.APIKey = "k"
				c.Speech.Enabled = true
			},
			wantErr: "speech.api_key",
		},
		{
			name: "image enabled without stability key",
			mutate: func(c *Config) {
				c.LLM.APIKey = "k"
				c.Image.Enabled = true
			},
			wantErr: "stability_key",
		},
		{
			name: "bedrock backend needs no key",
			mutate: func(c *Config) {
				c.LLM.APIKey = "k"
				c.Image.Enabled = true
				c.Image.Backend = "bedrock"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
