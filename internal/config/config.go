package config

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Vault     Vault     `yaml:"vault"`
	Profile   Profile   `yaml:"profile"`
	Inbox     Inbox     `yaml:"inbox"`
	Selection Selection `yaml:"selection"`
	Review    Review    `yaml:"review"`
	Reasoner  Reasoner  `yaml:"reasoner"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

type Vault struct {
	Dir string `yaml:"dir"`
}

type Profile struct {
	Path string `yaml:"path"`
}

// Inbox is the directory scanned for new exports when no files are named on
// the command line.
type Inbox struct {
	Dir string `yaml:"dir"`
}

// Selection bounds how many candidates survive per document. These are the
// explicit parameters behind the "top N" behavior, not buried constants.
type Selection struct {
	MaxConcepts int `yaml:"max_concepts"`
	MaxActions  int `yaml:"max_actions"`
}

// Review holds the spaced-repetition interval table in day offsets.
type Review struct {
	Intervals []int `yaml:"intervals"`
}

type Reasoner struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	OllamaURL      string `yaml:"ollama_url"`
	AnthropicModel string `yaml:"anthropic_model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	MaxTokens      int    `yaml:"max_tokens"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for kindling.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "kindling")
}

// DataDir returns the XDG data directory for kindling.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "kindling")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/kindling/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'kindling init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Selection: Selection{
			MaxConcepts: 10,
			MaxActions:  3,
		},
		Review: Review{
			Intervals: []int{1, 3, 7, 14, 30, 90},
		},
		Reasoner: Reasoner{
			Provider:       "anthropic",
			Model:          "qwen2.5:7b",
			OllamaURL:      "http://localhost:11434",
			AnthropicModel: "claude-sonnet-4-20250514",
			APIKeyEnv:      "ANTHROPIC_API_KEY",
			MaxTokens:      4096,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Selection.MaxConcepts < 0 || cfg.Selection.MaxActions < 0 {
		return nil, fmt.Errorf("selection bounds must not be negative")
	}
	for _, d := range cfg.Review.Intervals {
		if d <= 0 {
			return nil, fmt.Errorf("review intervals must be positive day counts, got %d", d)
		}
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// LoadProfile reads the reader profile used as reasoner context. A missing or
// unconfigured profile is not an error, selection just runs without it.
func (c *Config) LoadProfile() string {
	if c.Profile.Path == "" {
		return ""
	}
	data, err := os.ReadFile(c.Profile.Path)
	if err != nil {
		log.Printf("could not read profile %s, selecting without profile context: %v", c.Profile.Path, err)
		return ""
	}
	return string(data)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
