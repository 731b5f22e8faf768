package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/pagination"
	"github.com/stretchr/testify/mock"
)

type testTxRepos struct {
	chunks    ChunkRepositoryInterface
	campaigns CampaignRepositoryInterface
}

func (t *testTxRepos) Chunks() ChunkRepositoryInterface {
	return t.chunks
}

func (t *testTxRepos) Campaigns() CampaignRepositoryInterface {
	return t.campaigns
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}

// MockChunkRepo mocks the knowledge chunk repository
type MockChunkRepo struct {
	mock.Mock
}

func (m *MockChunkRepo) Put(ctx context.Context, c *domain.Chunk) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockChunkRepo) NearestNeighbors(ctx context.Context, query []float32, k int) ([]*domain.Chunk, error) {
	args := m.Called(ctx, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chunk), args.Error(1)
}

func (m *MockChunkRepo) BulkReplace(ctx context.Context, chunks []*domain.Chunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockChunkRepo) DeleteAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockChunkRepo) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockCampaignRepo mocks the campaign repository
type MockCampaignRepo struct {
	mock.Mock
}

func (m *MockCampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Campaign), args.Error(1)
}

func (m *MockCampaignRepo) MarkInProgress(ctx context.Context, id string) (*domain.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Campaign), args.Error(1)
}

func (m *MockCampaignRepo) ClaimPending(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Campaign), args.Error(1)
}

func (m *MockCampaignRepo) SaveRunResult(ctx context.Context, id string, result domain.RunResult) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

func (m *MockCampaignRepo) ListByOwner(ctx context.Context, owner string, cursor *pagination.Cursor, limit int) ([]*domain.Campaign, error) {
	args := m.Called(ctx, owner, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Campaign), args.Error(1)
}

func (m *MockCampaignRepo) RecordResponse(ctx context.Context, phone string) (bool, error) {
	args := m.Called(ctx, phone)
	return args.Bool(0), args.Error(1)
}

func (m *MockCampaignRepo) Totals(ctx context.Context, owner string, from, to time.Time) (*domain.CampaignTotals, error) {
	args := m.Called(ctx, owner, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CampaignTotals), args.Error(1)
}

// MockEmbedder mocks the embedding generator
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type fixedUUIDGen struct {
	ids []string
	i   int
}

func (g *fixedUUIDGen) NewString() string {
	id := g.ids[g.i%len(g.ids)]
	g.i++
	return id
}
