package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidLogLevels lists the accepted values for server.log_level.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr":          {"deepgram"},
	"asr_fallback": {"whispercpp"},
	"realtime":     {"openai", "anyllm:openai", "anyllm:groq", "anyllm:ollama", "anyllm:deepseek", "anyllm:mistral"},
	"quality":      {"openai", "anyllm:openai", "anyllm:anthropic", "anyllm:gemini"},
}

// defaults mirror the values named in the component design (audio framing,
// coalescer debounce/force windows, paragraph thresholds, etc).
var defaults = Config{
	Server: ServerConfig{ListenAddr: ":8080", LogLevel: "info"},
	Audio:  AudioConfig{FrameMs: 20, SampleRate: 16000},
	ASR: ASRConfig{
		Interim:        true,
		EndpointingMs:  300,
		UtteranceEndMs: 1000,
		SmartFormat:    true,
		Language:       "en",
	},
	Coalesce: CoalesceConfig{DebounceMs: 100, ForceMs: 500, SlotTTLMs: 5000},
	Sentence: SentenceConfig{FlushTimeoutMs: 2000},
	Paragraph: ParagraphConfig{MinMs: 10_000, MaxMs: 40_000, SilenceMs: 2000},
	Summary:   SummaryConfig{IntervalMs: 120_000, WordThreshold: 0},
	Display:   DisplayConfig{Opacities: [3]float64{0.3, 0.6, 1.0}},
	History:   HistoryConfig{RetentionMinutes: 180, CompactionAgeMinutes: 30},
}

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config]. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults for any
// unset fields, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := defaults
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in any fields that decoding left at the zero value.
// Because YAML decoding only overwrites fields present in the document,
// cfg already carries the struct-literal defaults for untouched fields
// (including every field of an entirely empty document); this pass restores
// the default for the listed fields when the document sets them to zero.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaults.Server.ListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = defaults.Server.LogLevel
	}
	if cfg.Audio.FrameMs == 0 {
		cfg.Audio.FrameMs = defaults.Audio.FrameMs
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = defaults.Audio.SampleRate
	}
	if cfg.Coalesce.DebounceMs == 0 {
		cfg.Coalesce.DebounceMs = defaults.Coalesce.DebounceMs
	}
	if cfg.Coalesce.ForceMs == 0 {
		cfg.Coalesce.ForceMs = defaults.Coalesce.ForceMs
	}
	if cfg.Coalesce.SlotTTLMs == 0 {
		cfg.Coalesce.SlotTTLMs = defaults.Coalesce.SlotTTLMs
	}
	if cfg.Sentence.FlushTimeoutMs == 0 {
		cfg.Sentence.FlushTimeoutMs = defaults.Sentence.FlushTimeoutMs
	}
	if cfg.Paragraph.MinMs == 0 {
		cfg.Paragraph.MinMs = defaults.Paragraph.MinMs
	}
	if cfg.Paragraph.MaxMs == 0 {
		cfg.Paragraph.MaxMs = defaults.Paragraph.MaxMs
	}
	if cfg.Paragraph.SilenceMs == 0 {
		cfg.Paragraph.SilenceMs = defaults.Paragraph.SilenceMs
	}
	if cfg.Summary.IntervalMs == 0 {
		cfg.Summary.IntervalMs = defaults.Summary.IntervalMs
	}
	if cfg.Display.Opacities == [3]float64{} {
		cfg.Display.Opacities = defaults.Display.Opacities
	}
	if cfg.History.RetentionMinutes == 0 {
		cfg.History.RetentionMinutes = defaults.History.RetentionMinutes
	}
	if cfg.History.CompactionAgeMinutes == 0 {
		cfg.History.CompactionAgeMinutes = defaults.History.CompactionAgeMinutes
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found. Non-fatal
// inconsistencies are logged as warnings rather than rejected.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !slices.Contains(ValidLogLevels, cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: %v", cfg.Server.LogLevel, ValidLogLevels))
	}

	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("asr_fallback", cfg.Providers.ASRFallback.Name)
	validateProviderName("realtime", cfg.Providers.Realtime.Name)
	validateProviderName("quality", cfg.Providers.Quality.Name)

	if cfg.Providers.ASR.Name == "" {
		errs = append(errs, errors.New("providers.asr.name is required"))
	}
	if cfg.Providers.Realtime.Name == "" {
		slog.Warn("providers.realtime is not configured; the Realtime Translator will have no backend")
	}
	if cfg.Providers.Quality.Name == "" {
		slog.Warn("providers.quality is not configured; the High-Quality Translator will have no backend")
	}

	if cfg.Audio.FrameMs != 20 {
		errs = append(errs, fmt.Errorf("audio.frame_ms must be 20, got %d", cfg.Audio.FrameMs))
	}
	if cfg.Audio.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be 16000, got %d", cfg.Audio.SampleRate))
	}

	if cfg.Paragraph.MinMs > 0 && cfg.Paragraph.MaxMs > 0 && cfg.Paragraph.MinMs > cfg.Paragraph.MaxMs {
		errs = append(errs, fmt.Errorf("paragraph.min_ms (%d) must not exceed paragraph.max_ms (%d)", cfg.Paragraph.MinMs, cfg.Paragraph.MaxMs))
	}
	if cfg.Coalesce.DebounceMs > 0 && cfg.Coalesce.ForceMs > 0 && cfg.Coalesce.DebounceMs > cfg.Coalesce.ForceMs {
		errs = append(errs, fmt.Errorf("coalesce.debounce_ms (%d) must not exceed coalesce.force_ms (%d)", cfg.Coalesce.DebounceMs, cfg.Coalesce.ForceMs))
	}
	if cfg.History.CompactionAgeMinutes > 0 && cfg.History.RetentionMinutes > 0 && cfg.History.CompactionAgeMinutes > cfg.History.RetentionMinutes {
		errs = append(errs, fmt.Errorf("history.compaction_age_minutes (%d) must not exceed history.retention_minutes (%d)", cfg.History.CompactionAgeMinutes, cfg.History.RetentionMinutes))
	}

	for i, o := range cfg.Display.Opacities {
		if o < 0 || o > 1 {
			errs = append(errs, fmt.Errorf("display.opacities[%d] = %.2f is out of range [0, 1]", i, o))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
