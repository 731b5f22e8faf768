package domain

import (
	"strings"
	"time"
)

type CampaignStatus string

const (
	CampaignStatusPending    CampaignStatus = "pending"
	CampaignStatusInProgress CampaignStatus = "in_progress"
	CampaignStatusCompleted  CampaignStatus = "completed"
	CampaignStatusPartial    CampaignStatus = "partial"
	CampaignStatusFailed     CampaignStatus = "failed"
)

// DefaultTemplateLanguage is used when a campaign does not name one.
const DefaultTemplateLanguage = "en"

// IsTerminal reports whether no further transition may leave the status.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusPartial || s == CampaignStatusFailed
}

// CanTransitionTo encodes pending -> in_progress -> {completed | partial | failed}.
// A pending campaign may also fail directly when it cannot be dispatched.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case CampaignStatusPending:
		return next == CampaignStatusInProgress || next == CampaignStatusFailed
	case CampaignStatusInProgress:
		return next.IsTerminal()
	}
	return false
}

// Campaign is a record of one outbound broadcast.
type Campaign struct {
	ID                 string
	Owner              string
	Name               string
	FromNumber         string
	TemplateName       string
	TemplateLanguage   string
	TemplateComponents []TemplateComponent
	Recipients         []string
	SentCount          int
	ErrorCount         int
	OpenCount          int
	ResponseCount      int
	Status             CampaignStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// NewCampaign creates a pending campaign.
func NewCampaign(id, owner, name, fromNumber, templateName, language string, components []TemplateComponent, recipients []string, now time.Time) *Campaign {
	if language == "" {
		language = DefaultTemplateLanguage
	}
	if name == "" {
		name = "Campaign " + templateName
	}
	return &Campaign{
		ID:                 id,
		Owner:              owner,
		Name:               name,
		FromNumber:         fromNumber,
		TemplateName:       templateName,
		TemplateLanguage:   language,
		TemplateComponents: components,
		Recipients:         recipients,
		Status:             CampaignStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// TemplateData returns the payload the messaging client sends to every recipient.
func (c *Campaign) TemplateData() TemplateData {
	return TemplateData{
		Language:   c.TemplateLanguage,
		Components: c.TemplateComponents,
	}
}

// ValidateCampaign checks the fields required before a campaign is persisted.
func ValidateCampaign(c *Campaign) error {
	if strings.TrimSpace(c.TemplateName) == "" {
		return ErrMissingTemplateName
	}
	if err := ValidateRecipients(c.Recipients); err != nil {
		return err
	}
	return ValidateComponents(c.TemplateComponents)
}

// ValidateRecipients requires a non-empty list with no blank entries.
func ValidateRecipients(recipients []string) error {
	if len(recipients) == 0 {
		return ErrMissingRecipients
	}
	for _, r := range recipients {
		if strings.TrimSpace(r) == "" {
			return NewDomainError(ErrCodeValidation, "recipient cannot be blank")
		}
	}
	return nil
}

// DeriveRunStatus maps the counters of a finished run to its terminal status.
// A run where every send failed is reported as failed.
func DeriveRunStatus(sent, errored int) CampaignStatus {
	switch {
	case errored == 0:
		return CampaignStatusCompleted
	case sent > 0:
		return CampaignStatusPartial
	default:
		return CampaignStatusFailed
	}
}

// RunResult is the outcome of one dispatch run, committed in a single write.
type RunResult struct {
	Status      CampaignStatus
	SentCount   int
	ErrorCount  int
	Errors      []string
	CompletedAt time.Time
}

// AbortedRun builds the result recorded when a run cannot finish.
func AbortedRun(recipients int, at time.Time, errs []string) RunResult {
	return RunResult{
		Status:      CampaignStatusFailed,
		SentCount:   0,
		ErrorCount:  recipients,
		Errors:      errs,
		CompletedAt: at,
	}
}

// NormalizePhone strips spaces and ensures a leading "+".
func NormalizePhone(phone string) string {
	p := strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	if p == "" {
		return p
	}
	if !strings.HasPrefix(p, "+") {
		p = "+" + p
	}
	return p
}

// CampaignTotals aggregates counters over a set of campaigns.
type CampaignTotals struct {
	Active    int64
	Sent      int64
	Opened    int64
	Responses int64
}
