package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/research/internal/models"
)

type staticRetriever struct {
	docs  []schema.Document
	err   error
	query string
}

func (r *staticRetriever) GetRelevantDocuments(_ context.Context, query string) ([]schema.Document, error) {
	r.query = query
	return r.docs, r.err
}

func doc(content, source string) schema.Document {
	return schema.Document{PageContent: content, Metadata: map[string]any{models.SourceKey: source}}
}

func TestParseSources(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		wantAnswer  string
		wantSources []string
	}{
		{
			name:        "answer and sources",
			output:      "The price is $400,000.\nSOURCES: https://a.example, https://b.example",
			wantAnswer:  "The price is $400,000.",
			wantSources: []string{"https://a.example", "https://b.example"},
		},
		{
			name:        "final answer prefix",
			output:      "FINAL ANSWER: Three bedrooms.\nSources: https://a.example",
			wantAnswer:  "Three bedrooms.",
			wantSources: []string{"https://a.example"},
		},
		{
			name:        "trailing question is dropped",
			output:      "Yes.\nSOURCES: https://a.example\nQUESTION: what else?",
			wantAnswer:  "Yes.",
			wantSources: []string{"https://a.example"},
		},
		{
			name:        "duplicates removed",
			output:      "Yes. SOURCE: https://a.example, https://a.example",
			wantAnswer:  "Yes.",
			wantSources: []string{"https://a.example"},
		},
		{
			name:        "sources word inside the answer",
			output:      "Useful resources: the county records office lists the deed.\nSOURCES: https://a.example/x",
			wantAnswer:  "Useful resources: the county records office lists the deed.",
			wantSources: []string{"https://a.example/x"},
		},
		{
			name:        "last marker wins",
			output:      "The listing has no sources: it was sent by email.\nSources: https://a.example",
			wantAnswer:  "The listing has no sources: it was sent by email.",
			wantSources: []string{"https://a.example"},
		},
		{
			name:        "bulleted list",
			output:      "The cottage has three bedrooms.\nSOURCES:\n- https://a.example/x\n- https://b.example/y",
			wantAnswer:  "The cottage has three bedrooms.",
			wantSources: []string{"https://a.example/x", "https://b.example/y"},
		},
		{
			name:        "numbered and starred list",
			output:      "Yes.\n**SOURCES:**\n1. https://a.example\n* https://b.example, https://c.example",
			wantAnswer:  "Yes.",
			wantSources: []string{"https://a.example", "https://b.example", "https://c.example"},
		},
		{
			name:        "no sources section",
			output:      "I don't know.",
			wantAnswer:  "I don't know.",
			wantSources: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, sources := parseSources(tt.output)
			assert.Equal(t, tt.wantAnswer, answer)
			if tt.wantSources == nil {
				assert.Empty(t, sources)
			} else {
				assert.Equal(t, tt.wantSources, sources)
			}
		})
	}
}

func TestSourcesChainAnswer(t *testing.T) {
	model := fake.NewFakeLLM([]string{"It has a two car garage.\nSOURCES: https://b.example"})
	chain, err := NewSourcesChain(model, ChatConfig{})
	require.NoError(t, err)

	retriever := &staticRetriever{docs: []schema.Document{
		doc("Three bedroom house.", "https://a.example"),
		doc("Two car garage.", "https://b.example"),
	}}

	answer, err := chain.Answer(context.Background(), "Does it have a garage?", retriever)
	require.NoError(t, err)
	assert.Equal(t, "Does it have a garage?", retriever.query)
	assert.Equal(t, "It has a two car garage.", answer.Text)
	assert.Equal(t, []string{"https://b.example"}, answer.Sources)
}

func TestSourcesChainFallsBackToRetrievedSources(t *testing.T) {
	model := fake.NewFakeLLM([]string{"It is near the harbour."})
	chain, err := NewSourcesChain(model, ChatConfig{})
	require.NoError(t, err)

	retriever := &staticRetriever{docs: []schema.Document{
		doc("Near the harbour.", "https://b.example"),
		doc("Harbour views.", "https://a.example"),
		doc("Walk to the harbour.", "https://b.example"),
	}}

	answer, err := chain.Answer(context.Background(), "Where is it?", retriever)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://b.example", "https://a.example"}, answer.Sources)
}

func TestSourcesChainKeepsRetrievedSourcesOnly(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []string
	}{
		{"trailing period", "Two baths.\nSOURCES: https://b.example.", []string{"https://b.example"}},
		{"unknown source dropped", "Two baths.\nSOURCES: https://b.example, https://elsewhere.example", []string{"https://b.example"}},
		{"nothing matches", "Two baths.\nSOURCES: my own knowledge", []string{"https://a.example", "https://b.example"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := NewSourcesChain(fake.NewFakeLLM([]string{tt.output}), ChatConfig{})
			require.NoError(t, err)

			retriever := &staticRetriever{docs: []schema.Document{
				doc("Three bedroom house.", "https://a.example"),
				doc("Two baths.", "https://b.example"),
			}}
			answer, err := chain.Answer(context.Background(), "How many baths?", retriever)
			require.NoError(t, err)
			assert.Equal(t, "Two baths.", answer.Text)
			assert.Equal(t, tt.want, answer.Sources)
		})
	}
}

func TestSourcesChainNothingRetrieved(t *testing.T) {
	model := fake.NewFakeLLM([]string{"I don't know."})
	chain, err := NewSourcesChain(model, ChatConfig{})
	require.NoError(t, err)

	answer, err := chain.Answer(context.Background(), "Anything?", &staticRetriever{})
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, answer.SourcesText())
}

func TestSourcesChainRetrieverError(t *testing.T) {
	chain, err := NewSourcesChain(fake.NewFakeLLM([]string{"unused"}), ChatConfig{})
	require.NoError(t, err)

	boom := errors.New("store offline")
	_, err = chain.Answer(context.Background(), "q", &staticRetriever{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestFormatSummaries(t *testing.T) {
	got := formatSummaries([]schema.Document{
		doc("first", "https://a.example"),
		doc("second", "https://b.example"),
	})
	assert.Equal(t, "Content: first\nSource: https://a.example\n\nContent: second\nSource: https://b.example", got)
}
