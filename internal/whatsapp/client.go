// Package whatsapp sends messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v21.0"
)

type Config struct {
	Token         string
	PhoneNumberID string
	APIVersion    string
	BaseURL       string
	Timeout       time.Duration
}

// Client is a thin Graph API client for one business phone number.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		endpoint: fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(cfg.BaseURL, "/"), cfg.APIVersion, cfg.PhoneNumberID),
		token:    cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SendResponse is the provider acknowledgement for an accepted message.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the id of the first accepted message, or "".
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// ProviderError is a non-2xx answer from the Graph API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("WhatsApp API error (%d): %s", e.StatusCode, e.Message)
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateBody struct {
	Name       string                     `json:"name"`
	Language   templateLanguage           `json:"language"`
	Components []domain.TemplateComponent `json:"components,omitempty"`
}

type templateMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         templateBody `json:"template"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// SendTemplateMessage sends a pre-approved template. BODY components are merged
// into one so every body parameter reaches the provider.
func (c *Client) SendTemplateMessage(ctx context.Context, recipient, templateName string, data domain.TemplateData) (*SendResponse, error) {
	language := data.Language
	if language == "" {
		language = domain.DefaultTemplateLanguage
	}
	msg := templateMessage{
		MessagingProduct: "whatsapp",
		To:               domain.NormalizePhone(recipient),
		Type:             "template",
		Template: templateBody{
			Name:       templateName,
			Language:   templateLanguage{Code: language},
			Components: toWire(domain.MergeBodyComponents(data.Components)),
		},
	}
	return c.post(ctx, msg)
}

// SendTextMessage sends a free-form text reply inside the customer service window.
func (c *Client) SendTextMessage(ctx context.Context, recipient, text string) (*SendResponse, error) {
	msg := textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               domain.NormalizePhone(recipient),
		Type:             "text",
		Text:             textBody{PreviewURL: false, Body: text},
	}
	return c.post(ctx, msg)
}

// toWire lowercases component types the way the Graph API expects them.
func toWire(components []domain.TemplateComponent) []domain.TemplateComponent {
	out := make([]domain.TemplateComponent, len(components))
	for i, comp := range components {
		comp.Type = domain.ComponentType(strings.ToLower(string(comp.Type)))
		if len(comp.Cards) > 0 {
			cards := make([]domain.CarouselCard, len(comp.Cards))
			for j, card := range comp.Cards {
				card.Components = toWire(card.Components)
				cards[j] = card
			}
			comp.Cards = cards
		}
		out[i] = comp
	}
	return out
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, payload any) (*SendResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.ProviderSendError("request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ProviderSendError("failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		pe := &ProviderError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Error.Message != "" {
			pe.Message = env.Error.Message
		}
		return nil, domain.ProviderSendError("message rejected", pe)
	}

	var out SendResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, domain.ProviderSendError("failed to parse response", err)
	}
	return &out, nil
}
