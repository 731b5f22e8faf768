package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignStatusConstants(t *testing.T) {
	tests := []struct {
		name     string
		status   CampaignStatus
		expected string
	}{
		{"Pending", CampaignStatusPending, "pending"},
		{"InProgress", CampaignStatusInProgress, "in_progress"},
		{"Completed", CampaignStatusCompleted, "completed"},
		{"Partial", CampaignStatusPartial, "partial"},
		{"Failed", CampaignStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestCampaignStatus_Transitions(t *testing.T) {
	assert.True(t, CampaignStatusPending.CanTransitionTo(CampaignStatusInProgress))
	assert.True(t, CampaignStatusPending.CanTransitionTo(CampaignStatusFailed))
	assert.False(t, CampaignStatusPending.CanTransitionTo(CampaignStatusCompleted))

	for _, next := range []CampaignStatus{CampaignStatusCompleted, CampaignStatusPartial, CampaignStatusFailed} {
		assert.True(t, CampaignStatusInProgress.CanTransitionTo(next))
	}
	assert.False(t, CampaignStatusInProgress.CanTransitionTo(CampaignStatusPending))

	for _, terminal := range []CampaignStatus{CampaignStatusCompleted, CampaignStatusPartial, CampaignStatusFailed} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []CampaignStatus{CampaignStatusPending, CampaignStatusInProgress, CampaignStatusCompleted, CampaignStatusPartial, CampaignStatusFailed} {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestDeriveRunStatus(t *testing.T) {
	assert.Equal(t, CampaignStatusCompleted, DeriveRunStatus(1, 0))
	assert.Equal(t, CampaignStatusPartial, DeriveRunStatus(2, 1))
	assert.Equal(t, CampaignStatusFailed, DeriveRunStatus(0, 3))
	assert.NotEqual(t, CampaignStatusCompleted, DeriveRunStatus(0, 1))
}

func TestNewCampaign_Defaults(t *testing.T) {
	now := time.Now()
	c := NewCampaign("c1", "owner", "", "+100", "order_update", "", nil, []string{"+1"}, now)

	assert.Equal(t, CampaignStatusPending, c.Status)
	assert.Equal(t, DefaultTemplateLanguage, c.TemplateLanguage)
	assert.Equal(t, "Campaign order_update", c.Name)
	assert.Equal(t, now, c.CreatedAt)
	assert.Nil(t, c.CompletedAt)
}

func TestValidateCampaign(t *testing.T) {
	valid := NewCampaign("c1", "owner", "n", "", "tmpl", "en", nil, []string{"+1"}, time.Now())
	require.NoError(t, ValidateCampaign(valid))

	noRecipients := *valid
	noRecipients.Recipients = nil
	assert.True(t, errors.Is(ValidateCampaign(&noRecipients), ErrMissingRecipients))

	blank := *valid
	blank.Recipients = []string{"+1", "  "}
	assert.True(t, IsCode(ValidateCampaign(&blank), ErrCodeValidation))

	noTemplate := *valid
	noTemplate.TemplateName = " "
	assert.True(t, errors.Is(ValidateCampaign(&noTemplate), ErrMissingTemplateName))
}

func TestAbortedRun(t *testing.T) {
	at := time.Now()
	run := AbortedRun(3, at, []string{"boom"})

	assert.Equal(t, CampaignStatusFailed, run.Status)
	assert.Equal(t, 0, run.SentCount)
	assert.Equal(t, 3, run.ErrorCount)
	assert.Equal(t, at, run.CompletedAt)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+15551234", NormalizePhone("15551234"))
	assert.Equal(t, "+15551234", NormalizePhone(" +1 555 1234 "))
	assert.Equal(t, "", NormalizePhone(""))
}

func TestDomainError_IsMatchesWrappedSentinel(t *testing.T) {
	wrapped := NewDomainErrorWithCause(ErrCodeNotFound, ErrCampaignNotFound.Message, errors.New("no rows"))

	assert.True(t, errors.Is(wrapped, ErrCampaignNotFound))
	assert.False(t, errors.Is(wrapped, ErrCampaignNotPending))
	assert.Equal(t, ErrCodeNotFound, CodeOf(wrapped))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}
