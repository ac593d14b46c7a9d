// Package report implements the generateFinalReport(opts) command: a
// long-form completion over the full History (C13) range, producing a
// structured Markdown-ish document with section headers derived from
// paragraph boundaries (spec SPEC_FULL.md §C "Final report generation").
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/univoice/core/internal/pipeline/history"
	translateprovider "github.com/univoice/core/pkg/provider/translate"
)

const reportPrompt = `You are producing a final written report from a lecture transcript.
Organize the report into sections, one per paragraph of the source material, with a short
descriptive heading per section followed by the paragraph's content in polished prose.
Use Markdown headings ("## ") for each section.`

// Generator issues the final-report completion over a History range.
type Generator struct {
	provider  translateprovider.Provider
	model     string
	maxTokens int
}

// New creates a Generator using the given model and max token budget
// (`llm.model_report` / `llm.max_tokens_report`, default 8192).
func New(provider translateprovider.Provider, model string, maxTokens int) *Generator {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Generator{provider: provider, model: model, maxTokens: maxTokens}
}

// Generate assembles records into a paragraph-delimited transcript and
// requests the final report completion.
func (g *Generator) Generate(ctx context.Context, records []history.Record) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	transcript := assembleTranscript(records)

	resp, err := g.provider.Complete(ctx, translateprovider.CompletionRequest{
		SystemPrompt: reportPrompt,
		UserContent:  transcript,
		Model:        g.model,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("report: %w", err)
	}
	return resp.Content, nil
}

// assembleTranscript groups records by ParagraphID (records sharing no
// paragraph are treated as singleton paragraphs) and renders each group as a
// block, preserving chronological order across groups.
func assembleTranscript(records []history.Record) string {
	var b strings.Builder
	var currentParagraph string
	first := true

	for _, r := range records {
		key := r.ParagraphID
		if key == "" {
			key = r.ID
		}
		if key != currentParagraph || first {
			if !first {
				b.WriteString("\n\n")
			}
			currentParagraph = key
			first = false
		} else {
			b.WriteString(" ")
		}
		b.WriteString(r.Source)
	}
	return b.String()
}
