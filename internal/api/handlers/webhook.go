package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/logger"
	"github.com/cloo-solutions/supportdesk/internal/whatsapp"
)

const maxWebhookBytes = 1 << 20

// DefaultWebhookTimeout bounds the handling of one inbound message: crediting
// the campaign, generating the reply and sending it.
const DefaultWebhookTimeout = 60 * time.Second

type Responder interface {
	Reply(ctx context.Context, userID, message string) string
}

type ResponseRecorder interface {
	RecordResponse(ctx context.Context, phone string) (bool, error)
}

type TextSender interface {
	SendTextMessage(ctx context.Context, recipient, text string) (*whatsapp.SendResponse, error)
}

// WebhookHandler receives WhatsApp deliveries. POST always answers 200 so the
// provider does not redeliver; failures are only logged.
type WebhookHandler struct {
	verifyToken string
	responder   Responder
	recorder    ResponseRecorder
	sender      TextSender
	log         *logger.Logger
	timeout     time.Duration
}

func NewWebhookHandler(verifyToken string, responder Responder, recorder ResponseRecorder, sender TextSender, log *logger.Logger) *WebhookHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		responder:   responder,
		recorder:    recorder,
		sender:      sender,
		log:         log,
		timeout:     DefaultWebhookTimeout,
	}
}

// WithTimeout overrides DefaultWebhookTimeout. Non-positive values are ignored.
func (h *WebhookHandler) WithTimeout(d time.Duration) *WebhookHandler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := whatsapp.VerifyChallenge(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), h.verifyToken)
	if !ok {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	defer w.WriteHeader(http.StatusOK)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.log.Warn("failed to read webhook body", "error", err)
		return
	}

	msg, err := whatsapp.ParseInbound(body)
	if errors.Is(err, whatsapp.ErrNoMessage) {
		return
	}
	if err != nil {
		h.log.Warn("invalid webhook payload", "error", err)
		return
	}

	// Detached so a provider disconnect does not cut the reply short, but
	// still bounded.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()
	phone := domain.NormalizePhone(msg.From)

	if credited, err := h.recorder.RecordResponse(ctx, phone); err != nil {
		h.log.Error("failed to record campaign response", "phone", phone, "error", err)
	} else if credited {
		h.log.Debug("campaign response recorded", "phone", phone)
	}

	reply := h.responder.Reply(ctx, phone, msg.Text)
	if _, err := h.sender.SendTextMessage(ctx, phone, reply); err != nil {
		h.log.Error("failed to send reply", "phone", phone, "error", err)
	}
}
