package service

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/database"
	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/logger"
	"github.com/cloo-solutions/supportdesk/internal/storage"
	"github.com/cloo-solutions/supportdesk/internal/telemetry"
)

// DocumentExtractor turns raw file bytes into ordered text segments.
type DocumentExtractor interface {
	Extract(data []byte, filename string) ([]string, error)
}

// Embedder produces vectors for chunk texts and queries.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// UploadArchive keeps a copy of every ingested upload.
type UploadArchive interface {
	PutObject(ctx context.Context, key, contentType string, data []byte) error
	DeleteObject(ctx context.Context, key string) error
}

// ExternalSource reads tables from an external relational database.
type ExternalSource interface {
	ListTables(ctx context.Context) ([]string, error)
	ReadTable(ctx context.Context, table string, limit int) (*domain.TableSnapshot, error)
	Close()
}

// ExternalConnector opens an ExternalSource.
type ExternalConnector interface {
	Connect(ctx context.Context, cfg database.Config) (ExternalSource, error)
}

// IngestStage names the pipeline step an ingestion failed in.
type IngestStage string

const (
	StageExtract IngestStage = "extract"
	StageEmbed   IngestStage = "embed"
	StageStore   IngestStage = "store"
)

// IngestError reports which document failed and where.
type IngestError struct {
	Filename string
	Stage    IngestStage
	Err      error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s failed at %s: %v", e.Filename, e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// PublicMessage is safe to return to API callers.
func (e *IngestError) PublicMessage() string {
	return fmt.Sprintf("failed to ingest %s at %s stage", e.Filename, e.Stage)
}

type RetrievalConfig struct {
	MaxRowsPerTable int
	ExternalTimeout time.Duration
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		MaxRowsPerTable: 10000,
		ExternalTimeout: 30 * time.Second,
	}
}

// SearchResult is the public view of a retrieved chunk.
type SearchResult struct {
	Content   string         `json:"content"`
	Source    string         `json:"source"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	Distance  float64        `json:"distance"`
}

type IngestResult struct {
	Filename  string `json:"filename"`
	Chunks    int    `json:"chunks"`
	ObjectKey string `json:"object_key,omitempty"`
}

type TableResult struct {
	Table  string `json:"table"`
	Rows   int    `json:"rows"`
	Error  string `json:"error,omitempty"`
	Failed bool   `json:"failed"`
}

type ExternalIngestResult struct {
	Database    string        `json:"database"`
	Tables      []TableResult `json:"tables"`
	TotalChunks int           `json:"total_chunks"`
}

// Document is one file handed to ReplaceAll.
type Document struct {
	Filename string
	Data     []byte
}

// RetrievalService ingests documents into the knowledge store and searches it.
type RetrievalService struct {
	extractor DocumentExtractor
	chunker   *Chunker
	embedder  Embedder
	chunks    ChunkRepositoryInterface
	txRunner  TxRunner
	archive   UploadArchive
	connector ExternalConnector
	uuidGen   UUIDGenerator
	log       *logger.Logger
	cfg       RetrievalConfig
}

func NewRetrievalService(
	extractor DocumentExtractor,
	chunker *Chunker,
	embedder Embedder,
	chunks ChunkRepositoryInterface,
	txRunner TxRunner,
	log *logger.Logger,
) *RetrievalService {
	return NewRetrievalServiceWithConfig(extractor, chunker, embedder, chunks, txRunner, log, DefaultRetrievalConfig())
}

func NewRetrievalServiceWithConfig(
	extractor DocumentExtractor,
	chunker *Chunker,
	embedder Embedder,
	chunks ChunkRepositoryInterface,
	txRunner TxRunner,
	log *logger.Logger,
	cfg RetrievalConfig,
) *RetrievalService {
	if log == nil {
		log = logger.NewNop()
	}
	def := DefaultRetrievalConfig()
	if cfg.MaxRowsPerTable <= 0 {
		cfg.MaxRowsPerTable = def.MaxRowsPerTable
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = def.ExternalTimeout
	}
	return &RetrievalService{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		chunks:    chunks,
		txRunner:  txRunner,
		uuidGen:   &DefaultUUIDGenerator{},
		log:       log,
		cfg:       cfg,
	}
}

// WithArchive enables archiving of raw uploads.
func (s *RetrievalService) WithArchive(archive UploadArchive) *RetrievalService {
	s.archive = archive
	return s
}

// WithConnector enables external database ingestion.
func (s *RetrievalService) WithConnector(connector ExternalConnector) *RetrievalService {
	s.connector = connector
	return s
}

// StagedBatch holds fully embedded chunks for one document, not yet persisted.
type StagedBatch struct {
	Filename  string
	Chunks    []*domain.Chunk
	objectKey string
	svc       *RetrievalService
}

func (b *StagedBatch) Len() int {
	return len(b.Chunks)
}

// Commit writes every staged chunk in one transaction. On failure nothing is
// persisted and the archived upload, if any, is removed.
func (b *StagedBatch) Commit(ctx context.Context) error {
	if len(b.Chunks) == 0 {
		return nil
	}

	err := b.svc.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		chunks := repos.Chunks()
		for _, c := range b.Chunks {
			if err := chunks.Put(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if b.objectKey != "" && b.svc.archive != nil {
			if delErr := b.svc.archive.DeleteObject(ctx, b.objectKey); delErr != nil {
				b.svc.log.Warn("failed to remove archived upload", "key", b.objectKey, "error", delErr)
			}
		}
		return &IngestError{Filename: b.Filename, Stage: StageStore, Err: err}
	}
	return nil
}

// Stage extracts, chunks and embeds a document entirely in memory.
func (s *RetrievalService) Stage(ctx context.Context, data []byte, filename string) (*StagedBatch, error) {
	return s.stage(ctx, data, filename, s.archive != nil)
}

func (s *RetrievalService) stage(ctx context.Context, data []byte, filename string, archive bool) (*StagedBatch, error) {
	segments, err := s.extractor.Extract(data, filename)
	if err != nil {
		return nil, &IngestError{Filename: filename, Stage: StageExtract, Err: err}
	}

	texts := s.chunker.Chunk(segments)
	batch := &StagedBatch{Filename: filename, Chunks: make([]*domain.Chunk, 0, len(texts)), svc: s}
	if len(texts) == 0 {
		return batch, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, &IngestError{Filename: filename, Stage: StageEmbed, Err: err}
	}
	if len(vectors) != len(texts) {
		return nil, &IngestError{Filename: filename, Stage: StageEmbed, Err: domain.ErrEmbeddingMismatch}
	}

	metadata := map[string]any{"filename": filename}
	if archive {
		key, err := s.archiveUpload(ctx, data, filename)
		if err != nil {
			s.log.Warn("failed to archive upload", "filename", filename, "error", err)
		} else {
			batch.objectKey = key
			metadata["object_key"] = key
		}
	}

	for i, text := range texts {
		batch.Chunks = append(batch.Chunks, domain.NewChunk(text, filename, copyMetadata(metadata), vectors[i]))
	}
	return batch, nil
}

func (s *RetrievalService) archiveUpload(ctx context.Context, data []byte, filename string) (string, error) {
	key := storage.UploadKey(s.uuidGen.NewString(), filename)
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if err := s.archive.PutObject(ctx, key, contentType, data); err != nil {
		return "", err
	}
	return key, nil
}

// IngestDocument stages and commits a document, returning the chunk count.
func (s *RetrievalService) IngestDocument(ctx context.Context, data []byte, filename string) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.IngestDocument", telemetry.SpanAttributes{
		Source:    filename,
		Operation: "ingest",
	})
	defer span.End()

	batch, err := s.Stage(ctx, data, filename)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if err := batch.Commit(ctx); err != nil {
		span.SetError(err)
		return nil, err
	}

	s.log.Info("document ingested", "filename", filename, "chunks", batch.Len())
	return &IngestResult{Filename: filename, Chunks: batch.Len(), ObjectKey: batch.objectKey}, nil
}

// IngestExternalTables imports every public base table of an external database,
// one chunk per row. Tables are committed independently; a failing table is
// reported in the result without affecting the others.
func (s *RetrievalService) IngestExternalTables(ctx context.Context, cfg database.Config) (*ExternalIngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.IngestExternalTables", telemetry.SpanAttributes{
		Source:    cfg.Database,
		Operation: "ingest_external",
	})
	defer span.End()

	if s.connector == nil {
		return nil, domain.NewDomainError(domain.ErrCodeInternalError, "external ingestion is not configured")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
	defer cancel()

	src, err := s.connector.Connect(connectCtx, cfg)
	if err != nil {
		span.SetError(err)
		return nil, domain.ExternalSourceError("failed to connect to external database", err)
	}
	defer src.Close()

	tables, err := src.ListTables(connectCtx)
	if err != nil {
		span.SetError(err)
		return nil, domain.ExternalSourceError("failed to list external tables", err)
	}

	result := &ExternalIngestResult{Database: cfg.Database, Tables: make([]TableResult, 0, len(tables))}
	for _, table := range tables {
		rows, err := s.ingestTable(ctx, src, cfg.Database, table)
		tr := TableResult{Table: table, Rows: rows}
		if err != nil {
			tr.Failed = true
			tr.Error = err.Error()
			s.log.Warn("external table ingestion failed", "database", cfg.Database, "table", table, "error", err)
		} else {
			result.TotalChunks += rows
		}
		result.Tables = append(result.Tables, tr)
	}

	s.log.Info("external database ingested", "database", cfg.Database, "tables", len(tables), "chunks", result.TotalChunks)
	return result, nil
}

func (s *RetrievalService) ingestTable(ctx context.Context, src ExternalSource, dbName, table string) (int, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
	snapshot, err := src.ReadTable(readCtx, table, s.cfg.MaxRowsPerTable)
	cancel()
	if err != nil {
		return 0, domain.ExternalSourceError("failed to read table", err)
	}
	if len(snapshot.Rows) == 0 {
		return 0, nil
	}

	texts := make([]string, len(snapshot.Rows))
	for i := range snapshot.Rows {
		texts[i] = snapshot.RenderRow(i)
	}

	source := domain.TableSource(table)
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, &IngestError{Filename: source, Stage: StageEmbed, Err: err}
	}
	if len(vectors) != len(texts) {
		return 0, &IngestError{Filename: source, Stage: StageEmbed, Err: domain.ErrEmbeddingMismatch}
	}

	batch := &StagedBatch{Filename: source, Chunks: make([]*domain.Chunk, len(texts)), svc: s}
	for i, text := range texts {
		batch.Chunks[i] = domain.NewChunk(text, source, map[string]any{"database": dbName, "table": table}, vectors[i])
	}
	if err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(texts), nil
}

// Search returns the k chunks nearest to query, or every chunk when fewer
// than k exist. k <= 0 yields an empty result without touching the store. An
// embedding failure yields an empty result rather than an error; storage
// failures are returned.
func (s *RetrievalService) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Search", telemetry.SpanAttributes{
		Operation: "search",
		Count:     k,
	})
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		s.log.Warn("query embedding failed, returning no results", "error", err)
		return []SearchResult{}, nil
	}

	chunks, err := s.chunks.NearestNeighbors(ctx, vec, k)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	results := make([]SearchResult, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, SearchResult{
			Content:   c.Content,
			Source:    c.Source,
			Metadata:  c.Metadata,
			CreatedAt: c.CreatedAt,
			Distance:  c.Distance,
		})
	}
	return results, nil
}

// ReplaceAll stages every document and swaps the whole store in one transaction.
// If any document fails to stage the store is left untouched.
func (s *RetrievalService) ReplaceAll(ctx context.Context, docs []Document) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.ReplaceAll", telemetry.SpanAttributes{
		Operation: "replace_all",
		Count:     len(docs),
	})
	defer span.End()

	all := make([]*domain.Chunk, 0)
	for _, doc := range docs {
		batch, err := s.stage(ctx, doc.Data, doc.Filename, false)
		if err != nil {
			span.SetError(err)
			return 0, err
		}
		all = append(all, batch.Chunks...)
	}

	if err := s.chunks.BulkReplace(ctx, all); err != nil {
		span.SetError(err)
		return 0, &IngestError{Filename: fmt.Sprintf("%d documents", len(docs)), Stage: StageStore, Err: err}
	}
	s.log.Info("knowledge store replaced", "documents", len(docs), "chunks", len(all))
	return len(all), nil
}

// Clear removes every chunk from the store.
func (s *RetrievalService) Clear(ctx context.Context) error {
	if err := s.chunks.DeleteAll(ctx); err != nil {
		return err
	}
	s.log.Info("knowledge store cleared")
	return nil
}

// Count returns the number of stored chunks.
func (s *RetrievalService) Count(ctx context.Context) (int64, error) {
	return s.chunks.Count(ctx)
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
