package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// APIConfig is the per-KB LLM connection document, configs/api.json.
type APIConfig struct {
	Model                 string `json:"model"`
	ApiKeyEnvVar           string `json:"api_key_env_var"`
	TimeoutSeconds         int    `json:"timeout_seconds"`
	MaxRetry               int    `json:"max_retry"`
	SleepBetweenRetriesMs  int    `json:"sleep_between_retries_ms"`
	SchemaMaxTry           int    `json:"schema_max_try"`
	SleepAfterLLMCallMs    int    `json:"sleep_after_llm_call_ms"`
}

// DefaultAPIConfig returns the built-in model-selection defaults a
// freshly initialized knowledge base starts with.
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		Model:                 "llama3.1",
		ApiKeyEnvVar:          "RAGIT_API_KEY",
		TimeoutSeconds:        120,
		MaxRetry:              5,
		SleepBetweenRetriesMs: 2000,
		SchemaMaxTry:          5,
		SleepAfterLLMCallMs:   0,
	}
}

// BuildConfig is the per-KB chunking/build document, configs/build.json.
type BuildConfig struct {
	ChunkSize            int `json:"chunk_size"`
	SlideLen             int `json:"slide_len"`
	ImageSize            int `json:"image_size"`
	CompressionThreshold int `json:"compression_threshold"`
	MinSummaryLen        int `json:"min_summary_len"`
	MaxSummaryLen        int `json:"max_summary_len"`
	BatchMinSize         int `json:"batch_min_size"`
}

// DefaultBuildConfig mirrors the original ragit's chunking defaults.
func DefaultBuildConfig() *BuildConfig {
	return &BuildConfig{
		ChunkSize:            2000,
		SlideLen:             200,
		ImageSize:            1024,
		CompressionThreshold: 2048,
		MinSummaryLen:        200,
		MaxSummaryLen:        1000,
		BatchMinSize:         20,
	}
}

// QueryConfig is the per-KB retrieval-tuning document, configs/query.json.
type QueryConfig struct {
	MaxTitles     int `json:"max_titles"`
	MaxSummaries  int `json:"max_summaries"`
	MaxRetrieval  int `json:"max_retrieval"`
	IICoeff       int `json:"ii_coeff"`
	KeywordWeight int `json:"keyword_weight"`
}

// DefaultQueryConfig mirrors the original ragit's retrieval defaults.
func DefaultQueryConfig() *QueryConfig {
	return &QueryConfig{
		MaxTitles:     100,
		MaxSummaries:  30,
		MaxRetrieval:  10,
		IICoeff:       50,
		KeywordWeight: 4,
	}
}

// KBConfigDir is the directory under .ragit/ holding the three JSON
// documents.
const KBConfigDir = "configs"

func kbConfigPath(dataDir, name string) string {
	return filepath.Join(dataDir, KBConfigDir, name+".json")
}

// LoadAPIConfig reads configs/api.json, returning defaults if absent.
func LoadAPIConfig(dataDir string) (*APIConfig, error) {
	cfg := DefaultAPIConfig()
	if err := loadJSON(kbConfigPath(dataDir, "api"), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveAPIConfig writes configs/api.json atomically.
func SaveAPIConfig(dataDir string, cfg *APIConfig) error {
	return saveJSON(kbConfigPath(dataDir, "api"), cfg)
}

// LoadBuildConfig reads configs/build.json, returning defaults if absent.
func LoadBuildConfig(dataDir string) (*BuildConfig, error) {
	cfg := DefaultBuildConfig()
	if err := loadJSON(kbConfigPath(dataDir, "build"), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveBuildConfig writes configs/build.json atomically.
func SaveBuildConfig(dataDir string, cfg *BuildConfig) error {
	return saveJSON(kbConfigPath(dataDir, "build"), cfg)
}

// LoadQueryConfig reads configs/query.json, returning defaults if absent.
func LoadQueryConfig(dataDir string) (*QueryConfig, error) {
	cfg := DefaultQueryConfig()
	if err := loadJSON(kbConfigPath(dataDir, "query"), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveQueryConfig writes configs/query.json atomically.
func SaveQueryConfig(dataDir string, cfg *QueryConfig) error {
	return saveJSON(kbConfigPath(dataDir, "query"), cfg)
}

func loadJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func saveJSON(path string, src any) error {
	data, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal %s: %w", path, err)
	}
	return writeAtomic(path, data)
}
