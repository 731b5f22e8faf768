package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/pagination"
	"github.com/cloo-solutions/supportdesk/internal/whatsapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSender mocks the messaging client
type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendTemplateMessage(ctx context.Context, recipient, templateName string, data domain.TemplateData) (*whatsapp.SendResponse, error) {
	args := m.Called(ctx, recipient, templateName, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*whatsapp.SendResponse), args.Error(1)
}

var fixedNow = time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)

func newCampaignService(repo *MockCampaignRepo, sender *MockSender) *CampaignService {
	svc := NewCampaignService(repo, sender, nil)
	svc.uuidGen = &fixedUUIDGen{ids: []string{"c-1"}}
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func inProgress(recipients ...string) *domain.Campaign {
	c := domain.NewCampaign("c-1", "acme", "", "", "order_update", "", nil, recipients, fixedNow)
	c.Status = domain.CampaignStatusInProgress
	return c
}

func TestCampaignService_Create_NormalizesRecipients(t *testing.T) {
	repo := new(MockCampaignRepo)
	svc := newCampaignService(repo, new(MockSender))

	repo.On("Create", mock.Anything, mock.MatchedBy(func(c *domain.Campaign) bool {
		return c.ID == "c-1" &&
			c.Status == domain.CampaignStatusPending &&
			c.TemplateLanguage == "en" &&
			c.Name == "Campaign order_update" &&
			assert.ObjectsAreEqual([]string{"+15551110001", "+15551110002"}, c.Recipients)
	})).Return(nil)

	campaign, err := svc.Create(context.Background(), CreateCampaignInput{
		Owner:        "acme",
		TemplateName: " order_update ",
		Recipients:   []string{"15551110001", " +1 555 111 0002 "},
	})

	require.NoError(t, err)
	assert.Equal(t, fixedNow, campaign.CreatedAt)
	repo.AssertExpectations(t)
}

func TestCampaignService_Create_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateCampaignInput
		want  error
	}{
		{
			name:  "no recipients",
			input: CreateCampaignInput{TemplateName: "t"},
			want:  domain.ErrMissingRecipients,
		},
		{
			name:  "no template",
			input: CreateCampaignInput{Recipients: []string{"+1"}},
			want:  domain.ErrMissingTemplateName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockCampaignRepo)
			svc := newCampaignService(repo, new(MockSender))

			_, err := svc.Create(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.want)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCampaignService_Create_BlankRecipient(t *testing.T) {
	repo := new(MockCampaignRepo)
	svc := newCampaignService(repo, new(MockSender))

	_, err := svc.Create(context.Background(), CreateCampaignInput{TemplateName: "t", Recipients: []string{"+1", "  "}})

	assert.True(t, domain.IsCode(err, domain.ErrCodeValidation))
}

func TestCampaignService_Dispatch_PartialRun(t *testing.T) {
	repo := new(MockCampaignRepo)
	sender := new(MockSender)
	svc := newCampaignService(repo, sender)

	campaign := inProgress("+A", "+B", "+C")
	repo.On("MarkInProgress", mock.Anything, "c-1").Return(campaign, nil)

	var order []string
	record := func(args mock.Arguments) { order = append(order, args.String(1)) }
	sender.On("SendTemplateMessage", mock.Anything, "+A", "order_update", mock.Anything).Run(record).Return(&whatsapp.SendResponse{}, nil)
	sender.On("SendTemplateMessage", mock.Anything, "+B", "order_update", mock.Anything).Run(record).Return(nil, errors.New("invalid number"))
	sender.On("SendTemplateMessage", mock.Anything, "+C", "order_update", mock.Anything).Run(record).Return(&whatsapp.SendResponse{}, nil)

	repo.On("SaveRunResult", mock.Anything, "c-1", domain.RunResult{
		Status:      domain.CampaignStatusPartial,
		SentCount:   2,
		ErrorCount:  1,
		Errors:      []string{"Error sending to +B: invalid number"},
		CompletedAt: fixedNow,
	}).Return(nil)

	result, err := svc.Dispatch(context.Background(), "c-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"+A", "+B", "+C"}, order)
	assert.Equal(t, domain.CampaignStatusPartial, result.Status)
	assert.Equal(t, 2, result.SentCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, []string{"Error sending to +B: invalid number"}, result.Errors)
	repo.AssertExpectations(t)
}

func TestCampaignService_Dispatch_Completed(t *testing.T) {
	repo := new(MockCampaignRepo)
	sender := new(MockSender)
	svc := newCampaignService(repo, sender)

	repo.On("MarkInProgress", mock.Anything, "c-1").Return(inProgress("+A"), nil)
	sender.On("SendTemplateMessage", mock.Anything, "+A", "order_update", mock.Anything).Return(&whatsapp.SendResponse{}, nil)
	repo.On("SaveRunResult", mock.Anything, "c-1", mock.MatchedBy(func(r domain.RunResult) bool {
		return r.Status == domain.CampaignStatusCompleted && r.SentCount == 1 && r.ErrorCount == 0
	})).Return(nil)

	result, err := svc.Dispatch(context.Background(), "c-1")

	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusCompleted, result.Status)
	assert.Empty(t, result.Errors)
}

func TestCampaignService_Dispatch_AllFailed(t *testing.T) {
	repo := new(MockCampaignRepo)
	sender := new(MockSender)
	svc := newCampaignService(repo, sender)

	repo.On("MarkInProgress", mock.Anything, "c-1").Return(inProgress("+A", "+B"), nil)
	sender.On("SendTemplateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("rejected"))
	repo.On("SaveRunResult", mock.Anything, "c-1", mock.MatchedBy(func(r domain.RunResult) bool {
		return r.Status == domain.CampaignStatusFailed && r.SentCount == 0 && r.ErrorCount == 2
	})).Return(nil)

	result, err := svc.Dispatch(context.Background(), "c-1")

	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusFailed, result.Status)
	assert.Len(t, result.Errors, 2)
}

func TestCampaignService_Dispatch_ClaimConflict(t *testing.T) {
	repo := new(MockCampaignRepo)
	sender := new(MockSender)
	svc := newCampaignService(repo, sender)

	repo.On("MarkInProgress", mock.Anything, "c-1").Return(nil, domain.ErrCampaignNotPending)

	_, err := svc.Dispatch(context.Background(), "c-1")

	assert.ErrorIs(t, err, domain.ErrCampaignNotPending)
	sender.AssertNotCalled(t, "SendTemplateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "SaveRunResult", mock.Anything, mock.Anything, mock.Anything)
}

func TestCampaignService_Dispatch_NotFound(t *testing.T) {
	repo := new(MockCampaignRepo)
	svc := newCampaignService(repo, new(MockSender))

	repo.On("MarkInProgress", mock.Anything, "missing").Return(nil, domain.ErrCampaignNotFound)

	_, err := svc.Dispatch(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
}

func TestCampaignService_Dispatch_CancelledMidRunAborts(t *testing.T) {
	repo := new(MockCampaignRepo)
	sender := new(MockSender)
	svc := newCampaignService(repo, sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.On("MarkInProgress", mock.Anything, "c-1").Return(inProgress("+A", "+B", "+C"), nil)
	sender.On("SendTemplateMessage", mock.Anything, "+A", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(&whatsapp.SendResponse{}, nil)

	var saved domain.RunResult
	repo.On("SaveRunResult", mock.Anything, "c-1", mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(2).(domain.RunResult)
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return(nil).Once()

	_, err := svc.Dispatch(ctx, "c-1")

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.CampaignStatusFailed, saved.Status)
	assert.Equal(t, 0, saved.SentCount)
	assert.Equal(t, 3, saved.ErrorCount)
	sender.AssertNumberOfCalls(t, "SendTemplateMessage", 1)
}

func TestCampaignService_Dispatch_SaveFailureAborts(t *testing.T) {
	repo := new(MockCampaignRepo)
	sender := new(MockSender)
	svc := newCampaignService(repo, sender)

	repo.On("MarkInProgress", mock.Anything, "c-1").Return(inProgress("+A", "+B"), nil)
	sender.On("SendTemplateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&whatsapp.SendResponse{}, nil)
	storageErr := domain.StorageError("failed to save run result", errors.New("conn reset"))
	repo.On("SaveRunResult", mock.Anything, "c-1", mock.MatchedBy(func(r domain.RunResult) bool {
		return r.Status == domain.CampaignStatusCompleted
	})).Return(storageErr).Once()
	repo.On("SaveRunResult", mock.Anything, "c-1", mock.MatchedBy(func(r domain.RunResult) bool {
		return r.Status == domain.CampaignStatusFailed && r.SentCount == 0 && r.ErrorCount == 2
	})).Return(nil).Once()

	_, err := svc.Dispatch(context.Background(), "c-1")

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrCodeStorage))
	repo.AssertExpectations(t)
}

func TestCampaignService_Dispatch_PerSendTimeout(t *testing.T) {
	repo := new(MockCampaignRepo)
	sender := new(MockSender)
	svc := NewCampaignServiceWithConfig(repo, sender, nil, CampaignConfig{SendTimeout: 20 * time.Millisecond})
	svc.now = func() time.Time { return fixedNow }

	repo.On("MarkInProgress", mock.Anything, "c-1").Return(inProgress("+slow", "+fast"), nil)
	sender.On("SendTemplateMessage", mock.Anything, "+slow", mock.Anything, mock.Anything).
		Return(nil, context.DeadlineExceeded).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		})
	sender.On("SendTemplateMessage", mock.Anything, "+fast", mock.Anything, mock.Anything).Return(&whatsapp.SendResponse{}, nil)
	repo.On("SaveRunResult", mock.Anything, "c-1", mock.MatchedBy(func(r domain.RunResult) bool {
		return r.Status == domain.CampaignStatusPartial && r.SentCount == 1 && r.ErrorCount == 1
	})).Return(nil)

	result, err := svc.Dispatch(context.Background(), "c-1")

	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusPartial, result.Status)
}

func TestCampaignService_Send(t *testing.T) {
	repo := new(MockCampaignRepo)
	sender := new(MockSender)
	svc := newCampaignService(repo, sender)

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("MarkInProgress", mock.Anything, "c-1").Return(inProgress("+15551110001"), nil)
	sender.On("SendTemplateMessage", mock.Anything, "+15551110001", "order_update", domain.TemplateData{Language: "en"}).Return(&whatsapp.SendResponse{}, nil)
	repo.On("SaveRunResult", mock.Anything, "c-1", mock.Anything).Return(nil)

	result, err := svc.Send(context.Background(), CreateCampaignInput{
		Owner:        "acme",
		TemplateName: "order_update",
		Recipients:   []string{"15551110001"},
	})

	require.NoError(t, err)
	assert.Equal(t, "c-1", result.CampaignID)
	assert.Equal(t, domain.CampaignStatusCompleted, result.Status)
}

func TestCampaignService_DispatchPending(t *testing.T) {
	repo := new(MockCampaignRepo)
	sender := new(MockSender)
	svc := newCampaignService(repo, sender)

	first := inProgress("+A")
	second := inProgress("+B")
	second.ID = "c-2"
	repo.On("ClaimPending", mock.Anything, 5).Return([]*domain.Campaign{first, second}, nil)
	sender.On("SendTemplateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&whatsapp.SendResponse{}, nil)
	repo.On("SaveRunResult", mock.Anything, "c-1", mock.Anything).Return(errors.New("db down")).Once()
	repo.On("SaveRunResult", mock.Anything, "c-1", mock.Anything).Return(nil).Once()
	repo.On("SaveRunResult", mock.Anything, "c-2", mock.Anything).Return(nil).Once()

	n, err := svc.DispatchPending(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	repo.AssertExpectations(t)
}

func TestCampaignService_List(t *testing.T) {
	repo := new(MockCampaignRepo)
	svc := newCampaignService(repo, new(MockSender))

	items := make([]*domain.Campaign, 3)
	for i := range items {
		items[i] = domain.NewCampaign(string(rune('a'+i)), "acme", "", "", "t", "", nil, []string{"+1"}, fixedNow.Add(-time.Duration(i)*time.Minute))
	}
	repo.On("ListByOwner", mock.Anything, "acme", (*pagination.Cursor)(nil), 3).Return(items, nil)

	page, err := svc.List(context.Background(), "acme", "", 2)

	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	cursor, err := pagination.Decode(page.Cursor)
	require.NoError(t, err)
	assert.Equal(t, "b", cursor.ID)
}

func TestCampaignService_List_LastPage(t *testing.T) {
	repo := new(MockCampaignRepo)
	svc := newCampaignService(repo, new(MockSender))

	repo.On("ListByOwner", mock.Anything, "acme", (*pagination.Cursor)(nil), 21).Return([]*domain.Campaign{inProgress("+1")}, nil)

	page, err := svc.List(context.Background(), "acme", "", 0)

	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.Cursor)
}

func TestCampaignService_List_InvalidCursor(t *testing.T) {
	svc := newCampaignService(new(MockCampaignRepo), new(MockSender))

	_, err := svc.List(context.Background(), "acme", "%%%", 10)

	assert.True(t, domain.IsCode(err, domain.ErrCodeValidation))
}

func TestCampaignService_RecordResponse(t *testing.T) {
	repo := new(MockCampaignRepo)
	svc := newCampaignService(repo, new(MockSender))

	repo.On("RecordResponse", mock.Anything, "+15551110001").Return(true, nil)

	ok, err := svc.RecordResponse(context.Background(), "15551110001")

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCampaignService_DashboardStats(t *testing.T) {
	repo := new(MockCampaignRepo)
	svc := newCampaignService(repo, new(MockSender))

	monthStart := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	lastMonthStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	repo.On("Totals", mock.Anything, "acme", monthStart, fixedNow).
		Return(&domain.CampaignTotals{Active: 3, Sent: 200, Opened: 50, Responses: 30}, nil)
	repo.On("Totals", mock.Anything, "acme", lastMonthStart, monthStart).
		Return(&domain.CampaignTotals{Active: 2, Sent: 160, Opened: 40, Responses: 8}, nil)

	stats, err := svc.DashboardStats(context.Background(), "acme", fixedNow)

	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.ActiveCampaigns)
	assert.Equal(t, int64(200), stats.TotalMessages)
	assert.Equal(t, 25.0, stats.OpenRate)
	assert.Equal(t, 15.0, stats.ResponseRate)
	assert.Equal(t, 50.0, stats.ActiveCampaignsChange)
	assert.Equal(t, 25.0, stats.TotalMessagesChange)
	assert.Equal(t, 0.0, stats.OpenRateChange)
	assert.Equal(t, 200.0, stats.ResponseRateChange)
}

func TestCampaignService_DashboardStats_NoPreviousMonth(t *testing.T) {
	repo := new(MockCampaignRepo)
	svc := newCampaignService(repo, new(MockSender))

	repo.On("Totals", mock.Anything, "acme", mock.Anything, fixedNow).
		Return(&domain.CampaignTotals{Active: 1, Sent: 3, Responses: 1}, nil)
	repo.On("Totals", mock.Anything, "acme", mock.Anything, mock.Anything).
		Return(&domain.CampaignTotals{}, nil)

	stats, err := svc.DashboardStats(context.Background(), "acme", fixedNow)

	require.NoError(t, err)
	assert.Equal(t, 33.3, stats.ResponseRate)
	assert.Zero(t, stats.ActiveCampaignsChange)
	assert.Zero(t, stats.TotalMessagesChange)
	assert.Zero(t, stats.ResponseRateChange)
}
