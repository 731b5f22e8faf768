package repository

import (
	"context"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// KnowledgeChunkRepository handles persistence of knowledge chunks and their embeddings.
type KnowledgeChunkRepository struct {
	db dbtx
}

func NewKnowledgeChunkRepository(pool *pgxpool.Pool) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: pool}
}

func NewKnowledgeChunkRepositoryWithTx(tx pgx.Tx) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: tx}
}

// Put inserts a single chunk and fills in its generated id and timestamps.
func (r *KnowledgeChunkRepository) Put(ctx context.Context, c *domain.Chunk) error {
	if err := domain.ValidateChunk(c); err != nil {
		return err
	}
	if err := insertChunk(ctx, r.db, c); err != nil {
		return domain.StorageError("failed to insert chunk", err)
	}
	return nil
}

// NearestNeighbors returns up to k chunks ordered by cosine distance to query.
// Chunks without an embedding are never returned. Ties break on insertion order.
func (r *KnowledgeChunkRepository) NearestNeighbors(ctx context.Context, query []float32, k int) ([]*domain.Chunk, error) {
	if k <= 0 {
		return []*domain.Chunk{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, content, source, metadata, created_at, updated_at, embedding <=> $1 AS distance
		 FROM knowledge_chunks
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1, id
		 LIMIT $2`,
		pgvector.NewVector(query), k,
	)
	if err != nil {
		return nil, domain.StorageError("failed to query nearest chunks", err)
	}
	defer rows.Close()

	chunks := make([]*domain.Chunk, 0, k)
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.Content, &c.Source, &c.Metadata, &c.CreatedAt, &c.UpdatedAt, &c.Distance); err != nil {
			return nil, domain.StorageError("failed to scan chunk", err)
		}
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("failed to read chunks", err)
	}
	return chunks, nil
}

// BulkReplace deletes every chunk and inserts the given ones in one transaction.
// Readers see either the old set or the new set.
func (r *KnowledgeChunkRepository) BulkReplace(ctx context.Context, chunks []*domain.Chunk) error {
	for _, c := range chunks {
		if err := domain.ValidateChunk(c); err != nil {
			return err
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM knowledge_chunks`); err != nil {
		return domain.StorageError("failed to delete chunks", err)
	}
	for _, c := range chunks {
		if err := insertChunk(ctx, tx, c); err != nil {
			return domain.StorageError("failed to insert chunk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.StorageError("failed to commit chunk replacement", err)
	}
	return nil
}

// DeleteAll removes every chunk.
func (r *KnowledgeChunkRepository) DeleteAll(ctx context.Context) error {
	return r.BulkReplace(ctx, nil)
}

func (r *KnowledgeChunkRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&n); err != nil {
		return 0, domain.StorageError("failed to count chunks", err)
	}
	return n, nil
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertChunk(ctx context.Context, db execQuerier, c *domain.Chunk) error {
	var embedding *pgvector.Vector
	if c.HasEmbedding() {
		v := pgvector.NewVector(c.Embedding)
		embedding = &v
	}
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	now := time.Now().UTC()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return db.QueryRow(ctx,
		`INSERT INTO knowledge_chunks (content, embedding, source, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		c.Content, embedding, c.Source, metadata, createdAt, updatedAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}
