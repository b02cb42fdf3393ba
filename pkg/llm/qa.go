package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/research/internal/models"
)

const sourcesPromptTemplate = `Given the following extracted parts of one or more web pages and a question, create a final answer with references ("SOURCES").
If you don't know the answer, just say that you don't know. Don't try to make up an answer.
ALWAYS return a "SOURCES" part in your answer, listing the sources you used separated by commas.

QUESTION: {{.question}}
=========
{{.summaries}}
=========
FINAL ANSWER:`

var (
	sourcesMarker  = regexp.MustCompile(`(?i)\bSOURCES?:`)
	questionMarker = regexp.MustCompile(`(?i)\bQUESTION:\s`)
	answerPrefix   = regexp.MustCompile(`(?i)^FINAL ANSWER:\s*`)
	listItemPrefix = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)
)

// SourcesChain answers a question from retrieved chunks and reports which
// sources the answer drew on.
type SourcesChain struct {
	chain   *chains.LLMChain
	options []chains.ChainCallOption
}

func NewSourcesChain(llm llms.Model, config ChatConfig) (*SourcesChain, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	prompt := prompts.NewPromptTemplate(sourcesPromptTemplate, []string{"question", "summaries"})
	return &SourcesChain{
		chain: chains.NewLLMChain(llm, prompt),
		options: []chains.ChainCallOption{
			chains.WithTemperature(config.temperature()),
			chains.WithMaxTokens(config.MaxTokens),
		},
	}, nil
}

// Answer retrieves the chunks relevant to query and asks the model for an
// answer. Sources are the retrieved sources the model cites in its SOURCES
// section, or every retrieved source when it cites none of them.
func (s *SourcesChain) Answer(ctx context.Context, query string, retriever schema.Retriever) (*models.Answer, error) {
	docs, err := retriever.GetRelevantDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieving documents: %w", err)
	}

	output, err := chains.Predict(ctx, s.chain, map[string]any{
		"question":  query,
		"summaries": formatSummaries(docs),
	}, s.options...)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	text, sources := parseSources(output)
	sources = retrievedOnly(sources, docs)
	if len(sources) == 0 {
		sources = distinctSources(docs)
	}

	return &models.Answer{Text: text, Sources: sources}, nil
}

func formatSummaries(docs []schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, fmt.Sprintf("Content: %s\nSource: %s", doc.PageContent, models.SourceOf(doc)))
	}
	return strings.Join(parts, "\n\n")
}

// parseSources splits model output into the answer and the sources listed
// after the last SOURCES marker. Entries may be separated by commas or
// newlines and may carry list bullets.
func parseSources(output string) (string, []string) {
	matches := sourcesMarker.FindAllStringIndex(output, -1)
	if len(matches) == 0 {
		return cleanAnswer(output), nil
	}
	loc := matches[len(matches)-1]

	answer := cleanAnswer(strings.TrimRight(output[:loc[0]], "*_"))
	rest := output[loc[1]:]
	if q := questionMarker.FindStringIndex(rest); q != nil {
		rest = rest[:q[0]]
	}

	sources := []string{}
	seen := make(map[string]bool)
	for _, line := range strings.Split(rest, "\n") {
		for _, source := range strings.Split(line, ",") {
			source = strings.TrimSpace(source)
			source = strings.TrimSpace(listItemPrefix.ReplaceAllString(source, ""))
			source = strings.TrimRight(source, "*")
			if source == "" || seen[source] {
				continue
			}
			seen[source] = true
			sources = append(sources, source)
		}
	}
	return answer, sources
}

// retrievedOnly keeps the cited sources that name a retrieved chunk's source,
// tolerating trailing sentence punctuation.
func retrievedOnly(cited []string, docs []schema.Document) []string {
	known := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if source := models.SourceOf(doc); source != "" {
			known[source] = true
		}
	}

	kept := []string{}
	seen := make(map[string]bool)
	for _, source := range cited {
		if !known[source] {
			source = strings.TrimRight(source, ".;")
		}
		if !known[source] || seen[source] {
			continue
		}
		seen[source] = true
		kept = append(kept, source)
	}
	return kept
}

func cleanAnswer(s string) string {
	return strings.TrimSpace(answerPrefix.ReplaceAllString(strings.TrimSpace(s), ""))
}
