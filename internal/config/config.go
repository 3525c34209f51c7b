// Package config holds ragit's layered configuration: machine-level
// defaults (~/.config/ragit/config.yaml), project-level settings
// (.ragit.yaml, version-controlled alongside the project) and the three
// per-KB JSON documents (configs/{api,build,query}.json under .ragit/)
// that the engine itself reads and rewrites.
//
// Each layer has its own loader, and each loader falls back to hardcoded
// defaults when its file is missing. Nothing in this package merges the
// layers into one view. Only the per-KB JSON documents are ever rewritten
// by the engine; the YAML layers are operator-edited.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// UserConfig holds machine-level defaults applied to every knowledge base
// on this host, loaded from ~/.config/ragit/config.yaml.
type UserConfig struct {
	LLM    LLMDefaults `yaml:"llm" json:"llm"`
	Offline bool       `yaml:"offline" json:"offline"`
	UI     UIConfig    `yaml:"ui" json:"ui"`
}

// LLMDefaults are machine-level LLM connection settings. Nothing in this
// module reads them when a KB's configs/api.json is loaded.
type LLMDefaults struct {
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	Model          string `yaml:"model" json:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// UIConfig controls terminal presentation, independent of any one KB.
type UIConfig struct {
	NoColor  bool   `yaml:"no_color" json:"no_color"`
	Progress string `yaml:"progress" json:"progress"` // auto | plain | tui
}

// DefaultUserConfig returns the hardcoded defaults, the bottom of the
// precedence stack.
func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		LLM: LLMDefaults{
			Endpoint:       "http://localhost:11434/v1",
			Model:          "llama3.1",
			TimeoutSeconds: 60,
		},
		Offline: false,
		UI: UIConfig{
			NoColor:  false,
			Progress: "auto",
		},
	}
}

// UserConfigPath returns ~/.config/ragit/config.yaml, honoring
// $XDG_CONFIG_HOME when set.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragit", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "ragit", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragit", "config.yaml")
}

// LoadUserConfig reads the user config, falling back to defaults when the
// file does not exist.
func LoadUserConfig() (*UserConfig, error) {
	cfg := DefaultUserConfig()
	path := UserConfigPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read user config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse user config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveUserConfig writes the user config atomically.
func SaveUserConfig(cfg *UserConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal user config: %w", err)
	}
	return writeAtomic(UserConfigPath(), data)
}

// ProjectConfig holds version-controlled, per-project settings loaded
// from .ragit.yaml at the knowledge base root.
type ProjectConfig struct {
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Submodules SubmoduleConfig  `yaml:"submodules" json:"submodules"`
}

// PathsConfig lists extra include/exclude globs layered on top of
// .gitignore during scanning.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig tunes the relative weight given to titles versus
// summaries when reranking retrieval candidates.
type SearchConfig struct {
	WeightTitle   float64 `yaml:"weight_title" json:"weight_title"`
	WeightSummary float64 `yaml:"weight_summary" json:"weight_summary"`
}

// SubmoduleConfig configures git submodule discovery during scanning.
type SubmoduleConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Recursive bool     `yaml:"recursive" json:"recursive"`
	Include   []string `yaml:"include" json:"include"`
	Exclude   []string `yaml:"exclude" json:"exclude"`
}

// DefaultProjectConfig returns the hardcoded project defaults.
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			Exclude: []string{"node_modules/**", ".git/**"},
		},
		Search: SearchConfig{
			WeightTitle:   2.0,
			WeightSummary: 1.0,
		},
	}
}

// ProjectConfigPath returns <root>/.ragit.yaml.
func ProjectConfigPath(root string) string {
	return filepath.Join(root, ".ragit.yaml")
}

// LoadProjectConfig reads .ragit.yaml, falling back to defaults when
// absent.
func LoadProjectConfig(root string) (*ProjectConfig, error) {
	cfg := DefaultProjectConfig()
	path := ProjectConfigPath(root)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read project config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse project config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveProjectConfig writes .ragit.yaml atomically.
func SaveProjectConfig(root string, cfg *ProjectConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal project config: %w", err)
	}
	return writeAtomic(ProjectConfigPath(root), data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("config: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}
