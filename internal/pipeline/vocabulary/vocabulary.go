// Package vocabulary implements the generateVocabulary(opts) command: a
// single completion request over the session's accumulated final segments
// producing a structured term list (spec SPEC_FULL.md §C "Vocabulary
// extraction").
package vocabulary

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	translateprovider "github.com/univoice/core/pkg/provider/translate"
)

const extractionPrompt = `Extract a vocabulary list of key technical terms, jargon, and
proper nouns from the following lecture transcript. For each term, output one line in the
exact format:
term | source-language gloss | short definition
Only include terms a student would plausibly need defined. Output nothing else.`

// Term is a single extracted vocabulary entry.
type Term struct {
	Term       string
	Gloss      string
	Definition string
}

// Generator issues the vocabulary-extraction completion and parses its
// output.
type Generator struct {
	provider translateprovider.Provider
	model    string
	maxTokens int
}

// New creates a Generator using the given model (`llm.model_vocabulary` in
// config) and max token budget. Config has no vocabulary max-token key;
// pipeline.New passes 0, so requests use the provider's default limit.
func New(provider translateprovider.Provider, model string, maxTokens int) *Generator {
	return &Generator{provider: provider, model: model, maxTokens: maxTokens}
}

// Generate issues one completion request over transcript and parses the
// resulting term list, tolerant of minor format drift (lines that don't
// match the expected "term | gloss | definition" shape are skipped rather
// than failing the whole request).
func (g *Generator) Generate(ctx context.Context, transcript string) ([]Term, error) {
	resp, err := g.provider.Complete(ctx, translateprovider.CompletionRequest{
		SystemPrompt: extractionPrompt,
		UserContent:  transcript,
		Model:        g.model,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("vocabulary: %w", err)
	}
	return parseTerms(resp.Content), nil
}

func parseTerms(content string) []Term {
	var terms []Term
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) < 2 {
			continue
		}
		term := Term{Term: strings.TrimSpace(parts[0])}
		if term.Term == "" {
			continue
		}
		term.Gloss = strings.TrimSpace(parts[1])
		if len(parts) == 3 {
			term.Definition = strings.TrimSpace(parts[2])
		}
		terms = append(terms, term)
	}
	return terms
}
