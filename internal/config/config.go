// Package config provides the configuration schema, loader, and validation
// for the UniVoice captioning/translation pipeline.
package config

// Config is the root configuration structure for UniVoice. It is typically
// loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	ASR       ASRConfig       `yaml:"asr"`
	LLM       LLMConfig       `yaml:"llm"`
	Coalesce  CoalesceConfig  `yaml:"coalesce"`
	Sentence  SentenceConfig  `yaml:"sentence"`
	Paragraph ParagraphConfig `yaml:"paragraph"`
	Summary   SummaryConfig   `yaml:"summary"`
	Display   DisplayConfig   `yaml:"display"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds network and logging settings for the UniVoice process.
type ServerConfig struct {
	// ListenAddr is the TCP address the health/metrics server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn",
	// "error".
	LogLevel string `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation backs each
// pipeline stage.
type ProvidersConfig struct {
	ASR         ProviderEntry `yaml:"asr"`
	ASRFallback ProviderEntry `yaml:"asr_fallback"`
	Realtime    ProviderEntry `yaml:"realtime"`
	Quality     ProviderEntry `yaml:"quality"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. Name is used to select a constructor in the pipeline wiring.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "deepgram",
	// "whispercpp", "openai", "anyllm:groq").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Leave empty to
	// use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g.,
	// "gpt-4o-mini", "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// AudioConfig controls the audio framer (C1).
type AudioConfig struct {
	// FrameMs is the fixed frame duration in milliseconds. Must be 20 to
	// match the provider contract.
	FrameMs int `yaml:"frame_ms"`

	// SampleRate is the expected input sample rate in Hz. Must be 16000.
	SampleRate int `yaml:"sample_rate"`
}

// ASRConfig controls the ASR Stream Adapter (C2).
type ASRConfig struct {
	Interim        bool   `yaml:"interim"`
	EndpointingMs  int    `yaml:"endpointing_ms"`
	UtteranceEndMs int    `yaml:"utterance_end_ms"`
	SmartFormat    bool   `yaml:"smart_format"`
	NoDelay        bool   `yaml:"no_delay"`
	Language       string `yaml:"language"`
	TargetLanguage string `yaml:"target_language"`
}

// LLMConfig selects the model identifiers used for each completion-backed
// pipeline stage. All stages share the providers configured under
// Providers.Realtime / Providers.Quality.
type LLMConfig struct {
	ModelTranslateRealtime string `yaml:"model_translate_realtime"`
	ModelTranslateQuality  string `yaml:"model_translate_quality"`
	ModelSummary           string `yaml:"model_summary"`
	ModelSummaryTranslate  string `yaml:"model_summary_translate"`
	ModelUserTranslate     string `yaml:"model_user_translate"`
	ModelVocabulary        string `yaml:"model_vocabulary"`
	ModelReport            string `yaml:"model_report"`

	MaxTokensTranslate int `yaml:"max_tokens_translate"`
	MaxTokensSummary   int `yaml:"max_tokens_summary"`
	MaxTokensReport    int `yaml:"max_tokens_report"`
}

// CoalesceConfig controls the Stream Coalescer (C5).
type CoalesceConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
	ForceMs    int `yaml:"force_ms"`
	SlotTTLMs  int `yaml:"slot_ttl_ms"`
}

// SentenceConfig controls the Sentence Combiner (C7).
type SentenceConfig struct {
	FlushTimeoutMs int `yaml:"flush_timeout_ms"`
}

// ParagraphConfig controls the Paragraph Builder (C8).
type ParagraphConfig struct {
	MinMs     int `yaml:"min_ms"`
	MaxMs     int `yaml:"max_ms"`
	SilenceMs int `yaml:"silence_ms"`
}

// SummaryConfig controls the Progressive Summarizer (C10).
type SummaryConfig struct {
	IntervalMs    int `yaml:"interval_ms"`
	WordThreshold int `yaml:"word_threshold"`
}

// DisplayConfig controls the Three-Line Display Sync (C6).
type DisplayConfig struct {
	Opacities [3]float64 `yaml:"opacities"`
}

// HistoryConfig controls the Ring Buffer / History component (C13).
type HistoryConfig struct {
	RetentionMinutes     int `yaml:"retention_minutes"`
	CompactionAgeMinutes int `yaml:"compaction_age_minutes"`
}
