package config_test

import (
	"strings"
	"testing"

	"github.com/univoice/core/internal/config"
)

func TestValidate_ParagraphMinExceedsMax(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  asr:
    name: deepgram
paragraph:
  min_ms: 50000
  max_ms: 10000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for paragraph.min_ms > paragraph.max_ms, got nil")
	}
	if !strings.Contains(err.Error(), "min_ms") {
		t.Errorf("error should mention min_ms, got: %v", err)
	}
}

func TestValidate_CoalesceDebounceExceedsForce(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  asr:
    name: deepgram
coalesce:
  debounce_ms: 1000
  force_ms: 100
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for coalesce.debounce_ms > coalesce.force_ms, got nil")
	}
}

func TestValidate_HistoryCompactionExceedsRetention(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  asr:
    name: deepgram
history:
  retention_minutes: 30
  compaction_age_minutes: 60
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for compaction_age_minutes > retention_minutes, got nil")
	}
}

func TestValidate_DisplayOpacityOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  asr:
    name: deepgram
display:
  opacities: [0.3, 0.6, 1.5]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for opacity out of range, got nil")
	}
}

func TestValidate_ValidDocumentPasses(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  asr:
    name: deepgram
  realtime:
    name: anyllm:groq
  quality:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  asr:
    name: deepgram
paragraph:
  min_ms: 50000
  max_ms: 10000
coalesce:
  debounce_ms: 1000
  force_ms: 100
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "min_ms") || !strings.Contains(errStr, "debounce_ms") {
		t.Errorf("error should mention both violations, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	quality := config.ValidProviderNames["quality"]
	found := false
	for _, n := range quality {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error(`ValidProviderNames["quality"] should contain "openai"`)
	}
}
