package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/api"
	"github.com/cloo-solutions/supportdesk/internal/api/middleware"
	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/pagination"
	"github.com/cloo-solutions/supportdesk/internal/service"
	"github.com/go-chi/chi/v5"
)

// Dispatch modes accepted by the send endpoint.
const (
	DispatchSync  = "sync"
	DispatchAsync = "async"
)

type CampaignService interface {
	Create(ctx context.Context, input service.CreateCampaignInput) (*domain.Campaign, error)
	Send(ctx context.Context, input service.CreateCampaignInput) (*service.DispatchResult, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, owner, cursor string, limit int) (*pagination.PageResult[*domain.Campaign], error)
	DashboardStats(ctx context.Context, owner string, now time.Time) (*service.DashboardStats, error)
}

type CampaignHandler struct {
	svc CampaignService
	now func() time.Time
}

func NewCampaignHandler(svc CampaignService) *CampaignHandler {
	return &CampaignHandler{svc: svc, now: time.Now}
}

type SendCampaignRequest struct {
	Name               string                     `json:"name"`
	FromNumber         string                     `json:"from_number"`
	TemplateName       string                     `json:"template_name"`
	TemplateLanguage   string                     `json:"template_language"`
	TemplateComponents []domain.TemplateComponent `json:"template_components"`
	Recipients         []string                   `json:"recipients"`
	Dispatch           string                     `json:"dispatch"`
}

type CampaignResponse struct {
	ID                 string                     `json:"id"`
	Name               string                     `json:"name"`
	FromNumber         string                     `json:"from_number"`
	TemplateName       string                     `json:"template_name"`
	TemplateLanguage   string                     `json:"template_language"`
	TemplateComponents []domain.TemplateComponent `json:"template_components,omitempty"`
	Recipients         []string                   `json:"recipients"`
	SentCount          int                        `json:"sent_count"`
	ErrorCount         int                        `json:"error_count"`
	OpenCount          int                        `json:"open_count"`
	ResponseCount      int                        `json:"response_count"`
	Status             string                     `json:"status"`
	CreatedAt          string                     `json:"created_at"`
	UpdatedAt          string                     `json:"updated_at"`
	CompletedAt        string                     `json:"completed_at,omitempty"`
}

type CampaignListResponse struct {
	Items   []*CampaignResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

func campaignToResponse(c *domain.Campaign) *CampaignResponse {
	resp := &CampaignResponse{
		ID:                 c.ID,
		Name:               c.Name,
		FromNumber:         c.FromNumber,
		TemplateName:       c.TemplateName,
		TemplateLanguage:   c.TemplateLanguage,
		TemplateComponents: c.TemplateComponents,
		Recipients:         c.Recipients,
		SentCount:          c.SentCount,
		ErrorCount:         c.ErrorCount,
		OpenCount:          c.OpenCount,
		ResponseCount:      c.ResponseCount,
		Status:             string(c.Status),
		CreatedAt:          c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:          c.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if c.CompletedAt != nil {
		resp.CompletedAt = c.CompletedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func (h *CampaignHandler) Send(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwner(r.Context())
	if owner == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SendCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TemplateName == "" {
		api.Error(w, http.StatusBadRequest, "template_name is required")
		return
	}
	if len(req.Recipients) == 0 {
		api.Error(w, http.StatusBadRequest, "recipients are required")
		return
	}
	domain.NormalizeComponentTypes(req.TemplateComponents)
	if err := domain.ValidateComponents(req.TemplateComponents); err != nil {
		api.HandleError(w, err)
		return
	}

	input := service.CreateCampaignInput{
		Owner:              owner,
		Name:               req.Name,
		FromNumber:         req.FromNumber,
		TemplateName:       req.TemplateName,
		TemplateLanguage:   req.TemplateLanguage,
		TemplateComponents: req.TemplateComponents,
		Recipients:         req.Recipients,
	}

	switch req.Dispatch {
	case "", DispatchSync:
		result, err := h.svc.Send(r.Context(), input)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusOK, result)
	case DispatchAsync:
		campaign, err := h.svc.Create(r.Context(), input)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusAccepted, service.DispatchResult{
			CampaignID: campaign.ID,
			Status:     campaign.Status,
			Errors:     []string{},
		})
	default:
		api.Error(w, http.StatusBadRequest, "dispatch must be sync or async")
	}
}

func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwner(r.Context())
	if owner == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	campaign, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if campaign.Owner != owner {
		api.HandleError(w, domain.ErrCampaignNotFound)
		return
	}

	api.Success(w, http.StatusOK, campaignToResponse(campaign))
}

func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwner(r.Context())
	if owner == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page, err := h.svc.List(r.Context(), owner, cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*CampaignResponse, len(page.Items))
	for i, c := range page.Items {
		responses[i] = campaignToResponse(c)
	}

	api.Success(w, http.StatusOK, CampaignListResponse{
		Items:   responses,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *CampaignHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwner(r.Context())
	if owner == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.svc.DashboardStats(r.Context(), owner, h.now())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, stats)
}
