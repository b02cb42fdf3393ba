// Package rag sequences fetching, chunking and indexing of web pages and
// answers questions against the resulting index.
package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/research/internal/models"
	"github.com/xhad/research/internal/types"
	"go.uber.org/zap"
)

var (
	// ErrIndexNotReady is returned when answering before any successful
	// processing run, or after a run that indexed nothing.
	ErrIndexNotReady = errors.New("index not ready: process urls first")

	// ErrNoContent is returned when the fetched pages produced no chunks.
	ErrNoContent = errors.New("no content extracted from the given urls")
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 4

// Stage is a checkpoint reported while processing URLs.
type Stage int

const (
	StageInitializing Stage = iota
	StageResetting
	StageFetching
	StageSplitting
	StageAdding
	StageDone
)

var stageText = map[Stage]string{
	StageInitializing: "Initializing Components...",
	StageResetting:    "Resetting vector database...",
	StageFetching:     "Fetching URLs...",
	StageSplitting:    "Splitting texts into chunks...",
	StageAdding:       "Adding chunks...",
	StageDone:         "Done adding docs to vector database...",
}

func (s Stage) String() string {
	if text, ok := stageText[s]; ok {
		return text
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

type State int

const (
	StateUninitialized State = iota
	StateReadyEmpty
	StateReadyIndexed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReadyEmpty:
		return "ready (empty)"
	case StateReadyIndexed:
		return "ready (indexed)"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Components are the model-backed collaborators, built once per pipeline.
type Components struct {
	Store       types.VectorStore
	Synthesizer types.Synthesizer
}

// ComponentFactory builds the components on first use.
type ComponentFactory func(ctx context.Context) (*Components, error)

type Config struct {
	Fetcher  types.Fetcher
	Splitter types.Splitter
	Factory  ComponentFactory
	TopK     int
	Logger   *zap.Logger
}

// Pipeline owns the vector store and answer synthesizer for the life of the
// process. ProcessURLs and GenerateAnswers never run concurrently.
type Pipeline struct {
	fetcher  types.Fetcher
	splitter types.Splitter
	factory  ComponentFactory
	topK     int
	logger   *zap.Logger

	mu         sync.Mutex
	components *Components
	indexed    bool
}

func New(config Config) (*Pipeline, error) {
	if config.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if config.Splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}
	if config.Factory == nil {
		return nil, fmt.Errorf("component factory is required")
	}
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Pipeline{
		fetcher:  config.Fetcher,
		splitter: config.Splitter,
		factory:  config.Factory,
		topK:     config.TopK,
		logger:   config.Logger,
	}, nil
}

// initialize builds the components once; later calls reuse them.
func (p *Pipeline) initialize(ctx context.Context) (*Components, error) {
	if p.components != nil {
		return p.components, nil
	}

	components, err := p.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	if components == nil || components.Store == nil || components.Synthesizer == nil {
		return nil, fmt.Errorf("initializing components: factory returned incomplete components")
	}

	p.components = components
	return components, nil
}

// ProcessURLs replaces the index with the content of urls. onProgress, when
// set, is called before each stage starts. If no chunks are produced the
// run stops after splitting with ErrNoContent and the index stays empty.
func (p *Pipeline) ProcessURLs(ctx context.Context, urls []string, onProgress func(Stage)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	emit := func(stage Stage) {
		p.logger.Info(stage.String(), zap.Int("stage", int(stage)))
		if onProgress != nil {
			onProgress(stage)
		}
	}

	emit(StageInitializing)
	components, err := p.initialize(ctx)
	if err != nil {
		return err
	}

	emit(StageResetting)
	p.indexed = false
	if err := components.Store.Reset(ctx); err != nil {
		return fmt.Errorf("resetting vector store: %w", err)
	}

	emit(StageFetching)
	docs, err := p.fetcher.Fetch(ctx, urls)
	if err != nil {
		return fmt.Errorf("fetching urls: %w", err)
	}
	p.logger.Debug("fetched documents", zap.Int("requested", len(urls)), zap.Int("fetched", len(docs)))

	emit(StageSplitting)
	chunks, err := p.splitter.Split(docs)
	if err != nil {
		return fmt.Errorf("splitting documents: %w", err)
	}
	if len(chunks) == 0 {
		p.logger.Warn("no chunks produced", zap.Strings("urls", urls))
		return ErrNoContent
	}

	emit(StageAdding)
	entries := make([]schema.Document, len(chunks))
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		entries[i] = schema.Document{
			PageContent: chunks[i].Text,
			Metadata: map[string]any{
				models.IDKey:     chunks[i].ID,
				models.SourceKey: chunks[i].SourceURL,
			},
		}
	}
	if _, err := components.Store.AddDocuments(ctx, entries); err != nil {
		return fmt.Errorf("adding chunks: %w", err)
	}
	count, err := components.Store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting entries: %w", err)
	}
	if count == 0 {
		return ErrNoContent
	}
	p.indexed = true
	p.logger.Info("indexed chunks", zap.Int("chunks", len(chunks)), zap.Int("entries", count))

	emit(StageDone)
	return nil
}

// GenerateAnswers answers query from the current index.
func (p *Pipeline) GenerateAnswers(ctx context.Context, query string) (*models.Answer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.components == nil || !p.indexed {
		return nil, ErrIndexNotReady
	}

	retriever := vectorstores.ToRetriever(p.components.Store, p.topK)
	answer, err := p.components.Synthesizer.Answer(ctx, query, retriever)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	p.logger.Debug("answered question", zap.String("query", query), zap.Strings("sources", answer.Sources))
	return answer, nil
}

// Retrieve returns the chunks most similar to query without asking the model.
func (p *Pipeline) Retrieve(ctx context.Context, query string) ([]schema.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.components == nil || !p.indexed {
		return nil, ErrIndexNotReady
	}
	return p.components.Store.SimilaritySearch(ctx, query, p.topK)
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.components == nil:
		return StateUninitialized
	case p.indexed:
		return StateReadyIndexed
	default:
		return StateReadyEmpty
	}
}

// Close releases the vector store, if one was built.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.components == nil {
		return nil
	}
	return p.components.Store.Close()
}
