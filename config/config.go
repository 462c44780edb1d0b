// Package config loads the mnemos configuration from defaults, an optional
// mnemos.yaml file, and MNEMOS_* environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Memory  MemoryConfig  `mapstructure:"memory"`
	Recall  RecallConfig  `mapstructure:"recall"`
	Context ContextConfig `mapstructure:"context"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
}

// ServerConfig holds the client-facing listener settings.
type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	WSAddr string `mapstructure:"ws_addr"`
}

// LLMConfig configures the language-model backend.
type LLMConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	ContextLimit int    `mapstructure:"context_limit"`
	MaxTokens    int    `mapstructure:"max_tokens"`

	// EstimateDivisor backs the chars/N token estimate used when the
	// tokenizer is unreachable. A heuristic, not a precise count.
	EstimateDivisor int `mapstructure:"estimate_divisor"`
}

// MemoryConfig holds persistence paths for the three memory layers.
type MemoryConfig struct {
	GraphPath     string `mapstructure:"graph_path"`
	ChroniclePath string `mapstructure:"chronicle_path"`
	VectorPath    string `mapstructure:"vector_path"`
	OnnxModelPath string `mapstructure:"onnx_model_path"`
}

// RecallConfig drives the multi-factor relevance scoring of the memory
// recall pipeline.
type RecallConfig struct {
	SemanticTopK int `mapstructure:"semantic_top_k"`
	RecallLimit  int `mapstructure:"recall_limit"`
	FinalTopN    int `mapstructure:"final_top_n"`

	SemanticMultiplier    float64 `mapstructure:"semantic_multiplier"`
	ConceptualBonus       float64 `mapstructure:"conceptual_bonus"`
	AssociativeBonus      float64 `mapstructure:"associative_bonus"`
	CrossValidationBonus  float64 `mapstructure:"cross_validation_bonus"`
	SelfReferenceDampener float64 `mapstructure:"self_reference_dampener"`
}

// ContextConfig controls conversation-cache eviction.
type ContextConfig struct {
	// TriggerFraction of the LLM context window beyond which the oldest
	// turn pairs are offloaded to background archival.
	TriggerFraction float64 `mapstructure:"trigger_fraction"`
}

// JobsConfig configures the background job queue and the reflection cron.
type JobsConfig struct {
	QueuePath          string `mapstructure:"queue_path"`
	ReflectionSchedule string `mapstructure:"reflection_schedule"`
}

// Load resolves the configuration. A missing config file is not an error;
// defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("mnemos")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.mnemos")
	}

	v.SetEnvPrefix("MNEMOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8888")
	v.SetDefault("server.ws_addr", "127.0.0.1:8889")

	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.context_limit", 8192)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.estimate_divisor", 3)

	v.SetDefault("memory.graph_path", "mnemos_graph.json")
	v.SetDefault("memory.chronicle_path", "mnemos_chronicle.json")
	v.SetDefault("memory.vector_path", "mnemos_vectors")

	v.SetDefault("recall.semantic_top_k", 50)
	v.SetDefault("recall.recall_limit", 30)
	v.SetDefault("recall.final_top_n", 5)
	v.SetDefault("recall.semantic_multiplier", 15.0)
	v.SetDefault("recall.conceptual_bonus", 10.0)
	v.SetDefault("recall.associative_bonus", 20.0)
	v.SetDefault("recall.cross_validation_bonus", 40.0)
	v.SetDefault("recall.self_reference_dampener", 0.7)

	v.SetDefault("context.trigger_fraction", 0.7)

	v.SetDefault("jobs.queue_path", "mnemos_jobs.queue")
	v.SetDefault("jobs.reflection_schedule", "@every 6h")
}
