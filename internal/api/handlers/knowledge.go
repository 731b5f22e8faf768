package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cloo-solutions/supportdesk/internal/api"
	"github.com/cloo-solutions/supportdesk/internal/database"
	"github.com/cloo-solutions/supportdesk/internal/pagination"
	"github.com/cloo-solutions/supportdesk/internal/service"
)

// MaxUploadBytes bounds a single multipart upload.
const MaxUploadBytes = 32 << 20

// Search limits applied when the request omits or overshoots "limit".
const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
)

type KnowledgeService interface {
	IngestDocument(ctx context.Context, data []byte, filename string) (*service.IngestResult, error)
	IngestExternalTables(ctx context.Context, cfg database.Config) (*service.ExternalIngestResult, error)
	Search(ctx context.Context, query string, k int) ([]service.SearchResult, error)
	Clear(ctx context.Context) error
}

type KnowledgeHandler struct {
	svc KnowledgeService
}

func NewKnowledgeHandler(svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type UploadResponse struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type SearchResultResponse struct {
	Content   string         `json:"content"`
	Source    string         `json:"source"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"created_at"`
}

func (h *KnowledgeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	result, err := h.svc.IngestDocument(r.Context(), data, header.Filename)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, UploadResponse{
		Filename: result.Filename,
		Chunks:   result.Chunks,
	})
}

func (h *KnowledgeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var cfg database.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.IngestExternalTables(r.Context(), cfg)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, result)
}

func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	limit := pagination.Limit(req.Limit, DefaultSearchLimit, MaxSearchLimit)
	results, err := h.svc.Search(r.Context(), req.Query, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]SearchResultResponse, len(results))
	for i, res := range results {
		responses[i] = SearchResultResponse{
			Content:   res.Content,
			Source:    res.Source,
			Metadata:  res.Metadata,
			CreatedAt: res.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}

	api.Success(w, http.StatusOK, responses)
}

func (h *KnowledgeHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context()); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
