package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/pagination"
)

// ChunkRepositoryInterface persists knowledge chunks and answers vector lookups.
type ChunkRepositoryInterface interface {
	Put(ctx context.Context, c *domain.Chunk) error
	NearestNeighbors(ctx context.Context, query []float32, k int) ([]*domain.Chunk, error)
	BulkReplace(ctx context.Context, chunks []*domain.Chunk) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

// CampaignRepositoryInterface persists campaigns and their run outcome.
type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	MarkInProgress(ctx context.Context, id string) (*domain.Campaign, error)
	ClaimPending(ctx context.Context, limit int) ([]*domain.Campaign, error)
	SaveRunResult(ctx context.Context, id string, result domain.RunResult) error
	ListByOwner(ctx context.Context, owner string, cursor *pagination.Cursor, limit int) ([]*domain.Campaign, error)
	RecordResponse(ctx context.Context, phone string) (bool, error)
	Totals(ctx context.Context, owner string, from, to time.Time) (*domain.CampaignTotals, error)
}

// OrderRepositoryInterface reads customer orders.
type OrderRepositoryInterface interface {
	ListByPhone(ctx context.Context, phone string) ([]*domain.Order, error)
}

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Chunks() ChunkRepositoryInterface
	Campaigns() CampaignRepositoryInterface
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
