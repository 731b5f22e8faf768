//go:build e2e

package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchHit struct {
	Content  string                 `json:"content"`
	Source   string                 `json:"source"`
	Metadata map[string]interface{} `json:"metadata"`
}

type dispatchResult struct {
	CampaignID string   `json:"campaign_id"`
	Status     string   `json:"status"`
	SentCount  int      `json:"sent_count"`
	ErrorCount int      `json:"error_count"`
	Errors     []string `json:"errors"`
}

type campaignView struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	SentCount     int    `json:"sent_count"`
	ErrorCount    int    `json:"error_count"`
	ResponseCount int    `json:"response_count"`
}

func TestE2E_KnowledgeLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)

	resp := env.Upload("returns.txt", []byte("Returns are accepted within 30 days of delivery.\n\nShipping is free for orders over 50 dollars."))
	require.Equal(t, http.StatusCreated, resp.Status, resp.Error)
	var upload struct {
		Filename string `json:"filename"`
		Chunks   int    `json:"chunks"`
	}
	resp.Decode(t, &upload)
	assert.Equal(t, "returns.txt", upload.Filename)
	assert.Greater(t, upload.Chunks, 0)

	resp = env.Upload("faq.csv", []byte("question,answer\nopening hours,9 to 5 on weekdays\n"))
	require.Equal(t, http.StatusCreated, resp.Status, resp.Error)

	resp = env.Post("/knowledge/search", map[string]interface{}{"query": "returns accepted within days", "limit": 2})
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	var hits []searchHit
	resp.Decode(t, &hits)
	require.NotEmpty(t, hits)
	assert.Equal(t, "returns.txt", hits[0].Source)
	assert.Contains(t, hits[0].Content, "Returns are accepted")
	assert.Equal(t, "returns.txt", hits[0].Metadata["filename"])

	resp = env.Delete("/knowledge")
	require.Equal(t, http.StatusNoContent, resp.Status)

	resp = env.Post("/knowledge/search", map[string]interface{}{"query": "returns"})
	require.Equal(t, http.StatusOK, resp.Status)
	hits = nil
	resp.Decode(t, &hits)
	assert.Empty(t, hits)
}

func TestE2E_UploadRejectsUnreadableFile(t *testing.T) {
	env := SetupE2EEnv(t)

	resp := env.Upload("broken.txt", []byte{0xff, 0xfe, 0x00, 0xd8})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Contains(t, resp.Error, "broken.txt")
}

func TestE2E_CampaignDispatchAndResponse(t *testing.T) {
	env := SetupE2EEnv(t)
	env.Graph.Reject("+15550000002")

	resp := env.Post("/campaigns/send", map[string]interface{}{
		"name":          "Spring sale",
		"template_name": "spring_sale",
		"template_components": []map[string]interface{}{
			{"type": "body", "parameters": []map[string]string{{"type": "text", "text": "20%"}}},
		},
		"recipients": []string{"15550000001", "+15550000002", "+15550000003"},
	})
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	var result dispatchResult
	resp.Decode(t, &result)
	assert.Equal(t, string(domain.CampaignStatusPartial), result.Status)
	assert.Equal(t, 2, result.SentCount)
	assert.Equal(t, 1, result.ErrorCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "+15550000002")

	sent := env.Graph.Messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "+15550000001", sent[0]["to"])
	assert.Equal(t, "+15550000003", sent[1]["to"])

	resp = env.Webhook("15550000003", "thanks, what is the return window?")
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = env.Get("/campaigns/" + result.CampaignID)
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	var campaign campaignView
	resp.Decode(t, &campaign)
	assert.Equal(t, 1, campaign.ResponseCount)

	replies := env.Graph.Messages()
	require.Len(t, replies, 3)
	assert.Equal(t, "text", replies[2]["type"])

	resp = env.Get("/dashboard/stats")
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	var stats struct {
		TotalMessages int64   `json:"total_messages"`
		ResponseRate  float64 `json:"response_rate"`
	}
	resp.Decode(t, &stats)
	assert.Equal(t, int64(2), stats.TotalMessages)
	assert.Equal(t, 50.0, stats.ResponseRate)
}

func TestE2E_AsyncCampaignRunsOnDispatchPending(t *testing.T) {
	env := SetupE2EEnv(t)

	resp := env.Post("/campaigns/send", map[string]interface{}{
		"template_name": "welcome",
		"recipients":    []string{"+15550000010"},
		"dispatch":      "async",
	})
	require.Equal(t, http.StatusAccepted, resp.Status, resp.Error)
	var result dispatchResult
	resp.Decode(t, &result)
	assert.Equal(t, string(domain.CampaignStatusPending), result.Status)
	assert.Empty(t, env.Graph.Messages())

	ran, err := env.Campaigns.DispatchPending(env.Ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, ran)

	resp = env.Get("/campaigns/" + result.CampaignID)
	var campaign campaignView
	resp.Decode(t, &campaign)
	assert.Equal(t, string(domain.CampaignStatusCompleted), campaign.Status)
	assert.Equal(t, 1, campaign.SentCount)

	ran, err = env.Campaigns.DispatchPending(env.Ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, ran)
}

func TestE2E_CampaignListPagination(t *testing.T) {
	env := SetupE2EEnv(t)

	for i := 0; i < 3; i++ {
		resp := env.Post("/campaigns/send", map[string]interface{}{
			"template_name": "promo",
			"recipients":    []string{"+15550000020"},
			"dispatch":      "async",
		})
		require.Equal(t, http.StatusAccepted, resp.Status, resp.Error)
		time.Sleep(5 * time.Millisecond)
	}

	var page struct {
		Items   []campaignView `json:"items"`
		Cursor  string         `json:"cursor"`
		HasMore bool           `json:"has_more"`
	}
	resp := env.Get("/campaigns?limit=2")
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	resp.Decode(t, &page)
	assert.Len(t, page.Items, 2)
	require.True(t, page.HasMore)

	first := page.Items
	page.Items = nil
	resp = env.Get("/campaigns?limit=2&cursor=" + page.Cursor)
	require.Equal(t, http.StatusOK, resp.Status, resp.Error)
	resp.Decode(t, &page)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
	assert.NotEqual(t, first[0].ID, page.Items[0].ID)
	assert.NotEqual(t, first[1].ID, page.Items[0].ID)
}

func TestE2E_WebhookVerification(t *testing.T) {
	env := SetupE2EEnv(t)

	resp, err := env.HTTPClient.Get(env.Server.URL + "/webhook?hub.mode=subscribe&hub.verify_token=" + verifyToken + "&hub.challenge=42")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = env.HTTPClient.Get(env.Server.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestE2E_RequiresToken(t *testing.T) {
	env := SetupE2EEnv(t)

	resp, err := env.HTTPClient.Get(env.Server.URL + "/campaigns")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
