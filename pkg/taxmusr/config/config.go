// Package config loads run configuration from YAML files and the
// environment.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Model holds the model endpoint and sampling parameters.
type Model struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
	MaxRetries  int     `yaml:"max_retries"`
}

// Generation holds the case generation parameters.
type Generation struct {
	Domain         string `yaml:"domain"`
	NumSamples     int    `yaml:"num_samples"`
	MaxDepth       int    `yaml:"max_depth"`
	MaxDistractors int    `yaml:"max_distractors"`
	Seed           int64  `yaml:"seed"`
	Workers        int    `yaml:"workers"`
	Output         string `yaml:"output"`
}

// Evaluation holds the evaluation parameters.
type Evaluation struct {
	Dataset       string  `yaml:"dataset"`
	Output        string  `yaml:"output"`
	Workflow      string  `yaml:"workflow"`
	PathThreshold float64 `yaml:"path_threshold"`
	Workers       int     `yaml:"workers"`
}

// Config is the full run configuration.
type Config struct {
	Model      Model      `yaml:"model"`
	Generation Generation `yaml:"generation"`
	Evaluation Evaluation `yaml:"evaluation"`
	// RunLogPath enables SQLite run bookkeeping when set.
	RunLogPath string `yaml:"run_log_path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Model: Model{
			BaseURL:     "https://api.openai.com/v1/chat/completions",
			APIKeyEnv:   "OPENAI_API_KEY",
			Name:        "gpt-4o",
			Temperature: 1.0,
			TopP:        1.0,
			MaxTokens:   2048,
			MaxRetries:  2,
		},
		Generation: Generation{
			Domain:         "joint_assessment",
			NumSamples:     10,
			MaxDistractors: -1,
			Seed:           1,
			Workers:        4,
		},
		Evaluation: Evaluation{
			Workflow:      "cot",
			PathThreshold: 0.5,
			Workers:       4,
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// APIKey resolves the model API key from the configured environment
// variable.
func (m Model) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}
