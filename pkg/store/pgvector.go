package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/xhad/research/internal/models"
	"go.uber.org/zap"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int // measured from the embedder when zero
	BatchSize  int
}

// VectorStore keeps entries in a Postgres table with a pgvector column.
type VectorStore struct {
	config   VectorStoreConfig
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
	logger   *zap.Logger
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig, embedder embeddings.Embedder, logger *zap.Logger) (*VectorStore, error) {
	if config.ConnString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.TableName == "" {
		config.TableName = DefaultCollection
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if config.VectorDim == 0 {
		sample, err := embedder.EmbedQuery(ctx, "dimension check")
		if err != nil {
			return nil, fmt.Errorf("probing embedding dimension: %w", err)
		}
		config.VectorDim = len(sample)
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config:   config,
		pool:     pool,
		embedder: embedder,
		logger:   logger,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("pgvector store initialized",
		zap.String("table", config.TableName),
		zap.Int("vector_dim", config.VectorDim),
	)

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			content TEXT,
			embedding vector(%d),
			metadata JSONB
		)`, vs.table(), vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.table())

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func (vs *VectorStore) table() string {
	return pgx.Identifier{vs.config.TableName}.Sanitize()
}

// AddDocuments embeds docs and inserts them in a single transaction,
// sending BatchSize rows per round trip.
func (vs *VectorStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := searchOptions(options)
	docs = deduplicate(ctx, opts, docs)
	if len(docs) == 0 {
		return []string{}, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = models.ValidText(doc.PageContent)
	}
	vectors, err := embedderFor(opts, vs.embedder).EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, url, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.table())

	ids := make([]string, len(docs))
	batch := &pgx.Batch{}
	for i, doc := range docs {
		ids[i] = entryID(doc)
		batch.Queue(stmt, ids[i], models.SourceOf(doc), texts[i], pgvector.NewVector(vectors[i]), doc.Metadata)

		if batch.Len() >= vs.config.BatchSize || i == len(docs)-1 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return nil, fmt.Errorf("failed to insert documents: %w", err)
			}
			batch = &pgx.Batch{}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	vs.logger.Debug("added documents to pgvector", zap.Int("count", len(docs)))
	return ids, nil
}

func (vs *VectorStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", numDocuments)
	}
	opts := searchOptions(options)

	vector, err := embedderFor(opts, vs.embedder).EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	sql := fmt.Sprintf(`
		SELECT content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.table())

	rows, err := vs.pool.Query(ctx, sql, pgvector.NewVector(vector), numDocuments, opts.ScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []schema.Document{}
	for rows.Next() {
		var (
			doc   schema.Document
			score float64
		)
		if err := rows.Scan(&doc.PageContent, &doc.Metadata, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		doc.Score = float32(score)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return docs, nil
}

// Reset removes every row from the table.
func (vs *VectorStore) Reset(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", vs.table()))
	if err != nil {
		return fmt.Errorf("failed to truncate table: %w", err)
	}
	return nil
}

func (vs *VectorStore) Count(ctx context.Context) (int, error) {
	var count int
	err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", vs.table())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

func (vs *VectorStore) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}
