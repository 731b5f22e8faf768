package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/logger"
	"github.com/cloo-solutions/supportdesk/internal/pagination"
	"github.com/cloo-solutions/supportdesk/internal/telemetry"
	"github.com/cloo-solutions/supportdesk/internal/whatsapp"
)

// TemplateSender delivers one template message to one recipient.
type TemplateSender interface {
	SendTemplateMessage(ctx context.Context, recipient, templateName string, data domain.TemplateData) (*whatsapp.SendResponse, error)
}

type CampaignConfig struct {
	SendTimeout time.Duration
	// SaveTimeout bounds the final write of an aborted run, which runs
	// detached from the cancelled request context.
	SaveTimeout  time.Duration
	DefaultLimit int
	MaxLimit     int
}

func DefaultCampaignConfig() CampaignConfig {
	return CampaignConfig{
		SendTimeout:  30 * time.Second,
		SaveTimeout:  10 * time.Second,
		DefaultLimit: 20,
		MaxLimit:     100,
	}
}

// CreateCampaignInput is the request to create a campaign.
type CreateCampaignInput struct {
	Owner              string
	Name               string
	FromNumber         string
	TemplateName       string
	TemplateLanguage   string
	TemplateComponents []domain.TemplateComponent
	Recipients         []string
}

// DispatchResult summarises one dispatch run.
type DispatchResult struct {
	CampaignID string                `json:"campaign_id"`
	Status     domain.CampaignStatus `json:"status"`
	SentCount  int                   `json:"sent_count"`
	ErrorCount int                   `json:"error_count"`
	Errors     []string              `json:"errors"`
}

// DashboardStats compares the current calendar month with the previous one.
type DashboardStats struct {
	ActiveCampaigns       int64   `json:"active_campaigns"`
	TotalMessages         int64   `json:"total_messages"`
	OpenRate              float64 `json:"open_rate"`
	ResponseRate          float64 `json:"response_rate"`
	ActiveCampaignsChange float64 `json:"active_campaigns_change"`
	TotalMessagesChange   float64 `json:"total_messages_change"`
	OpenRateChange        float64 `json:"open_rate_change"`
	ResponseRateChange    float64 `json:"response_rate_change"`
}

// CampaignService creates campaigns and runs them against the messaging provider.
type CampaignService struct {
	campaigns CampaignRepositoryInterface
	sender    TemplateSender
	uuidGen   UUIDGenerator
	now       Clock
	log       *logger.Logger
	cfg       CampaignConfig
}

func NewCampaignService(campaigns CampaignRepositoryInterface, sender TemplateSender, log *logger.Logger) *CampaignService {
	return NewCampaignServiceWithConfig(campaigns, sender, log, DefaultCampaignConfig())
}

func NewCampaignServiceWithConfig(campaigns CampaignRepositoryInterface, sender TemplateSender, log *logger.Logger, cfg CampaignConfig) *CampaignService {
	if log == nil {
		log = logger.NewNop()
	}
	def := DefaultCampaignConfig()
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = def.SaveTimeout
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	return &CampaignService{
		campaigns: campaigns,
		sender:    sender,
		uuidGen:   &DefaultUUIDGenerator{},
		now:       utcNow,
		log:       log,
		cfg:       cfg,
	}
}

// Create validates the input and persists a pending campaign.
func (s *CampaignService) Create(ctx context.Context, input CreateCampaignInput) (*domain.Campaign, error) {
	ctx, span := telemetry.StartSpan(ctx, "CampaignService.Create", telemetry.SpanAttributes{
		Owner:     input.Owner,
		Operation: "create",
		Count:     len(input.Recipients),
	})
	defer span.End()

	recipients := make([]string, 0, len(input.Recipients))
	for _, r := range input.Recipients {
		recipients = append(recipients, domain.NormalizePhone(r))
	}

	campaign := domain.NewCampaign(
		s.uuidGen.NewString(),
		input.Owner,
		strings.TrimSpace(input.Name),
		input.FromNumber,
		strings.TrimSpace(input.TemplateName),
		strings.TrimSpace(input.TemplateLanguage),
		input.TemplateComponents,
		recipients,
		s.now(),
	)
	if err := domain.ValidateCampaign(campaign); err != nil {
		return nil, err
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		span.SetError(err)
		return nil, err
	}

	s.log.Info("campaign created", "campaign_id", campaign.ID, "template", campaign.TemplateName, "recipients", len(recipients))
	return campaign, nil
}

// Send creates a campaign and dispatches it before returning.
func (s *CampaignService) Send(ctx context.Context, input CreateCampaignInput) (*DispatchResult, error) {
	campaign, err := s.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.Dispatch(ctx, campaign.ID)
}

// Dispatch claims a pending campaign and sends its template to every recipient
// in order. Only one caller can claim a given campaign.
func (s *CampaignService) Dispatch(ctx context.Context, id string) (*DispatchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "CampaignService.Dispatch", telemetry.SpanAttributes{
		CampaignID: id,
		Operation:  "dispatch",
	})
	defer span.End()

	campaign, err := s.campaigns.MarkInProgress(ctx, id)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	result, err := s.run(ctx, campaign)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return result, nil
}

// DispatchPending claims up to limit pending campaigns and runs each of them.
// It returns how many campaigns were run; a failed run does not stop the others.
func (s *CampaignService) DispatchPending(ctx context.Context, limit int) (int, error) {
	claimed, err := s.campaigns.ClaimPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	for i, campaign := range claimed {
		if ctx.Err() != nil {
			// Abort the already-claimed campaigns so none is left in_progress.
			for _, rest := range claimed[i:] {
				_ = s.abort(ctx, rest, nil, ctx.Err())
			}
			return i, ctx.Err()
		}
		if _, err := s.run(ctx, campaign); err != nil {
			s.log.Error("campaign run failed", "campaign_id", campaign.ID, "error", err)
		}
	}
	return len(claimed), nil
}

func (s *CampaignService) run(ctx context.Context, campaign *domain.Campaign) (*DispatchResult, error) {
	telemetry.AddBreadcrumb(ctx, "campaign", fmt.Sprintf("dispatching %s to %d recipients", campaign.ID, len(campaign.Recipients)))

	data := campaign.TemplateData()
	sent := 0
	errs := make([]string, 0)

	for _, recipient := range campaign.Recipients {
		if ctx.Err() != nil {
			return nil, s.abort(ctx, campaign, errs, ctx.Err())
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		_, err := s.sender.SendTemplateMessage(sendCtx, recipient, campaign.TemplateName, data)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, s.abort(ctx, campaign, errs, ctx.Err())
			}
			s.log.Warn("template send failed", "campaign_id", campaign.ID, "recipient", recipient, "error", err)
			errs = append(errs, fmt.Sprintf("Error sending to %s: %v", recipient, err))
			continue
		}
		sent++
	}

	result := domain.RunResult{
		Status:      domain.DeriveRunStatus(sent, len(errs)),
		SentCount:   sent,
		ErrorCount:  len(errs),
		Errors:      errs,
		CompletedAt: s.now(),
	}
	if err := s.campaigns.SaveRunResult(ctx, campaign.ID, result); err != nil {
		return nil, s.abort(ctx, campaign, errs, err)
	}

	s.log.Info("campaign dispatched",
		"campaign_id", campaign.ID,
		"status", result.Status,
		"sent", result.SentCount,
		"errors", result.ErrorCount,
	)
	return &DispatchResult{
		CampaignID: campaign.ID,
		Status:     result.Status,
		SentCount:  result.SentCount,
		ErrorCount: result.ErrorCount,
		Errors:     result.Errors,
	}, nil
}

// abort records a run that could not finish as failed with every recipient
// counted as an error, and returns the cause.
func (s *CampaignService) abort(ctx context.Context, campaign *domain.Campaign, errs []string, cause error) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SaveTimeout)
	defer cancel()

	errs = append(errs, fmt.Sprintf("Run aborted: %v", cause))
	result := domain.AbortedRun(len(campaign.Recipients), s.now(), errs)
	if err := s.campaigns.SaveRunResult(saveCtx, campaign.ID, result); err != nil {
		s.log.Error("failed to record aborted campaign", "campaign_id", campaign.ID, "error", err)
		telemetry.CaptureError(ctx, err)
	}

	s.log.Warn("campaign run aborted", "campaign_id", campaign.ID, "error", cause)
	return fmt.Errorf("campaign %s aborted: %w", campaign.ID, cause)
}

// Get returns one campaign.
func (s *CampaignService) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

// List returns an owner's campaigns newest first.
func (s *CampaignService) List(ctx context.Context, owner, cursor string, limit int) (*pagination.PageResult[*domain.Campaign], error) {
	ctx, span := telemetry.StartSpan(ctx, "CampaignService.List", telemetry.SpanAttributes{
		Owner:     owner,
		Operation: "list",
	})
	defer span.End()

	decoded, err := pagination.Decode(cursor)
	if err != nil {
		return nil, domain.ValidationError("invalid cursor")
	}
	limit = pagination.Limit(limit, s.cfg.DefaultLimit, s.cfg.MaxLimit)

	rows, err := s.campaigns.ListByOwner(ctx, owner, decoded, limit+1)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return pagination.Paginate(rows, limit, func(c *domain.Campaign) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	}), nil
}

// RecordResponse credits an inbound message to the sender's latest finished
// campaign. It reports whether a campaign was credited.
func (s *CampaignService) RecordResponse(ctx context.Context, phone string) (bool, error) {
	phone = domain.NormalizePhone(phone)
	if phone == "" {
		return false, nil
	}
	return s.campaigns.RecordResponse(ctx, phone)
}

// DashboardStats aggregates the owner's campaigns for the calendar month
// containing now and compares them with the month before.
func (s *CampaignService) DashboardStats(ctx context.Context, owner string, now time.Time) (*DashboardStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "CampaignService.DashboardStats", telemetry.SpanAttributes{
		Owner:     owner,
		Operation: "dashboard",
	})
	defer span.End()

	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	cur, err := s.campaigns.Totals(ctx, owner, monthStart, now)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	prev, err := s.campaigns.Totals(ctx, owner, lastMonthStart, monthStart)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	openRate := rate(cur.Opened, cur.Sent)
	responseRate := rate(cur.Responses, cur.Sent)
	return &DashboardStats{
		ActiveCampaigns:       cur.Active,
		TotalMessages:         cur.Sent,
		OpenRate:              round1(openRate),
		ResponseRate:          round1(responseRate),
		ActiveCampaignsChange: percentChange(float64(cur.Active), float64(prev.Active)),
		TotalMessagesChange:   percentChange(float64(cur.Sent), float64(prev.Sent)),
		OpenRateChange:        percentChange(openRate, rate(prev.Opened, prev.Sent)),
		ResponseRateChange:    percentChange(responseRate, rate(prev.Responses, prev.Sent)),
	}, nil
}

func rate(part, total int64) float64 {
	return float64(part) * 100 / math.Max(float64(total), 1)
}

func percentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return round1((current - previous) / previous * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
