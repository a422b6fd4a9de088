// Package config loads and persists the Surf configuration file.
// The file lives at ~/.config/surf/config.yaml by default and holds
// the LLM provider settings plus the agent and queue tuning knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMConfig holds provider connection settings. APIKey and BaseURL
// fall back to OPENAI_API_KEY and OPENAI_BASE_URL when empty.
type LLMConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// AgentConfig tunes the orchestrator.
type AgentConfig struct {
	MaxAutonomousActions int `yaml:"max_autonomous_actions"`
	MemoryTokenBudget    int `yaml:"memory_token_budget"`
}

// QueueConfig tunes the automation task queue.
type QueueConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// MemoryConfig tunes the memory store bounds and optional persistence.
type MemoryConfig struct {
	MaxRecords int    `yaml:"max_records"`
	MaxDomains int    `yaml:"max_domains"`
	RedisAddr  string `yaml:"redis_addr,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	LLM    LLMConfig    `yaml:"llm"`
	Agent  AgentConfig  `yaml:"agent"`
	Queue  QueueConfig  `yaml:"queue"`
	Memory MemoryConfig `yaml:"memory"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Model: "gpt-4o",
		},
		Agent: AgentConfig{
			MaxAutonomousActions: 10,
			MemoryTokenBudget:    2000,
		},
		Queue: QueueConfig{
			MaxConcurrent:  3,
			DefaultTimeout: 30 * time.Second,
		},
		Memory: MemoryConfig{
			MaxRecords: 1000,
			MaxDomains: 100,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "surf", "config.yaml"), nil
}

// Load reads the config file at path, layering it over defaults.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
}
