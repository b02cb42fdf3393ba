package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xhad/research/internal/models"
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word.
var DefaultSeparators = []string{"\n\n", "\n", ".", " "}

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

type Processor struct {
	config   ProcessorConfig
	splitter textsplitter.RecursiveCharacter
}

func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkSize < 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be non-negative and less than chunk size")
	}
	if len(config.Separators) == 0 {
		config.Separators = DefaultSeparators
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(config.ChunkSize),
		textsplitter.WithChunkOverlap(config.ChunkOverlap),
		textsplitter.WithSeparators(config.Separators),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
		textsplitter.WithKeepSeparator(true),
	)

	return &Processor{
		config:   config,
		splitter: splitter,
	}, nil
}

// Split chunks every document, preserving document order and tagging each
// chunk with its document's URL.
func (p *Processor) Split(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk

	for _, doc := range docs {
		texts, err := p.splitter.SplitText(models.ValidText(doc.Content))
		if err != nil {
			return nil, fmt.Errorf("splitting %s: %w", doc.URL, err)
		}

		index := 0
		for _, text := range texts {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{
				Text:      text,
				SourceURL: doc.URL,
				Index:     index,
			})
			index++
		}
	}

	return chunks, nil
}
