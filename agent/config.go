package agent

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const configDirName = "quill_cfg"

// ConfigDir returns the workspace-local configuration directory.
func ConfigDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, configDirName)
}

// DefaultConfigPath returns quill_cfg/config.yaml within the workspace.
func DefaultConfigPath(workspace string) string {
	return filepath.Join(ConfigDir(workspace), "config.yaml")
}

// Config matches quill_cfg/config.yaml inside the workspace.
type Config struct {
	Version  string         `yaml:"version"`
	Endpoint string         `yaml:"endpoint"`
	Model    ModelRef       `yaml:"model"`
	Context  ContextConfig  `yaml:"context"`
	Approval ApprovalConfig `yaml:"approval"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ModelRef names the model and its generation defaults.
type ModelRef struct {
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ContextConfig controls the prompt budget.
type ContextConfig struct {
	BudgetTokens int    `yaml:"budget_tokens"`
	Policy       string `yaml:"policy"` // truncate or summarize
}

// ApprovalConfig controls the approval gate.
type ApprovalConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LoggingConfig describes debug output.
type LoggingConfig struct {
	LLM bool `yaml:"llm_debug"`
}

// DefaultConfig is used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Version:  "1.0.0",
		Endpoint: "http://localhost:11434",
		Model:    ModelRef{Name: "qwen2.5-coder:7b", Temperature: 0.2},
		Context:  ContextConfig{BudgetTokens: 8192, Policy: "truncate"},
		Approval: ApprovalConfig{TimeoutSeconds: 300},
	}
}

// LoadConfig loads the config or returns defaults when the file is missing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes the config to disk, creating the directory.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config missing")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApprovalTimeout converts the configured seconds, defaulting sensibly.
func (c *Config) ApprovalTimeout() time.Duration {
	if c.Approval.TimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Approval.TimeoutSeconds) * time.Second
}
