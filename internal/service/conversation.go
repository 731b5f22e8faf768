package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/logger"
	"github.com/cloo-solutions/supportdesk/internal/session"
	"github.com/cloo-solutions/supportdesk/internal/telemetry"
	"github.com/cloo-solutions/supportdesk/internal/whatsapp"
)

// ApologyReply is sent whenever a reply cannot be generated.
const ApologyReply = "I apologize, but I'm having trouble processing your request right now. Please try again later."

const supportSystemPrompt = `You are a helpful WhatsApp Business assistant. Your role is to:
1. Answer questions about products and services
2. Help with order status and tracking
3. Provide customer support
4. Handle general inquiries professionally

Guidelines:
- Keep responses concise and friendly
- Use clear and simple language
- If you can't help, politely explain why
- Don't use markdown or complex formatting
- Keep responses under 4000 characters

When responding about orders:
- Provide order details directly when you have them
- Include the order ID, status, and delivery date
- For "last order" queries, use the most recent order by date`

// ChatCompleter generates one assistant turn.
type ChatCompleter interface {
	Complete(ctx context.Context, system string, history []domain.ChatMessage, message string) (string, error)
}

// KnowledgeSearcher finds knowledge relevant to a customer message.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)
}

type ConversationConfig struct {
	SearchLimit  int
	HistoryLimit int
	// ReplyTimeout bounds one whole reply: history, search, orders and the
	// chat completion.
	ReplyTimeout time.Duration
}

func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		SearchLimit:  5,
		HistoryLimit: 10,
		ReplyTimeout: 45 * time.Second,
	}
}

// ConversationService answers inbound customer messages with the chat model,
// grounded on the customer's orders and the knowledge store.
type ConversationService struct {
	chat     ChatCompleter
	search   KnowledgeSearcher
	orders   OrderRepositoryInterface
	sessions session.Store
	log      *logger.Logger
	cfg      ConversationConfig
}

func NewConversationService(chat ChatCompleter, search KnowledgeSearcher, orders OrderRepositoryInterface, sessions session.Store, log *logger.Logger) *ConversationService {
	return NewConversationServiceWithConfig(chat, search, orders, sessions, log, DefaultConversationConfig())
}

func NewConversationServiceWithConfig(chat ChatCompleter, search KnowledgeSearcher, orders OrderRepositoryInterface, sessions session.Store, log *logger.Logger, cfg ConversationConfig) *ConversationService {
	if log == nil {
		log = logger.NewNop()
	}
	def := DefaultConversationConfig()
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = def.SearchLimit
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = def.ReplyTimeout
	}
	return &ConversationService{
		chat:     chat,
		search:   search,
		orders:   orders,
		sessions: sessions,
		log:      log,
		cfg:      cfg,
	}
}

// Reply never fails: any error along the way yields ApologyReply. Only
// successful turns are written to the session history.
func (s *ConversationService) Reply(ctx context.Context, userID, message string) string {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.Reply", telemetry.SpanAttributes{
		Operation: "reply",
	})
	defer span.End()

	reply, err := s.reply(ctx, userID, message)
	if err != nil {
		span.SetError(err)
		s.log.Error("failed to generate reply", "phone", userID, "error", err)
		return ApologyReply
	}
	return reply
}

func (s *ConversationService) reply(ctx context.Context, userID, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", domain.ValidationError("message cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReplyTimeout)
	defer cancel()

	history, err := s.sessions.History(ctx, userID, s.cfg.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	knowledge, err := s.search.Search(ctx, message, s.cfg.SearchLimit)
	if err != nil {
		return "", fmt.Errorf("search knowledge: %w", err)
	}

	orders, err := s.orders.ListByPhone(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load orders: %w", err)
	}

	answer, err := s.chat.Complete(ctx, BuildSupportPrompt(userID, orders, knowledge), history, message)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", domain.NewDomainError(domain.ErrCodeInternalError, "empty completion")
	}

	turn := []domain.ChatMessage{
		{Role: domain.ChatRoleUser, Content: message},
		{Role: domain.ChatRoleAssistant, Content: answer},
	}
	if err := s.sessions.Append(ctx, userID, turn...); err != nil {
		s.log.Warn("failed to save conversation turn", "phone", userID, "error", err)
	}

	return whatsapp.FormatText(answer), nil
}

// BuildSupportPrompt renders the system prompt: orders first, then knowledge
// results, then the customer phone.
func BuildSupportPrompt(phone string, orders []*domain.Order, knowledge []SearchResult) string {
	var b strings.Builder
	b.WriteString(supportSystemPrompt)

	if len(orders) > 0 {
		b.WriteString("\n\nCustomer Order Information:\n")
		for _, o := range orders {
			fmt.Fprintf(&b, "\nOrder #%s:\n", o.OrderID)
			fmt.Fprintf(&b, "Status: %s\n", o.Status)
			if o.DeliveryDate != nil {
				fmt.Fprintf(&b, "Delivery Date: %s\n", o.DeliveryDate.Format("2006-01-02"))
			}
		}
	} else {
		b.WriteString("\nNo orders found for this customer.\n")
	}

	if len(knowledge) > 0 {
		b.WriteString("\n\nRelevant Knowledge Base Information:\n")
		for _, k := range knowledge {
			fmt.Fprintf(&b, "\nSource: %s\n", k.Source)
			fmt.Fprintf(&b, "Content: %s\n", k.Content)
			if len(k.Metadata) > 0 {
				if meta, err := json.Marshal(k.Metadata); err == nil {
					fmt.Fprintf(&b, "Additional Info: %s\n", meta)
				}
			}
		}
	}

	fmt.Fprintf(&b, "\nCustomer Phone: %s\n", phone)
	return b.String()
}
