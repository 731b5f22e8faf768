// Package session keeps short per-customer conversation histories.
//
// Every store applies the same policy: a user's history expires TTL after
// the last append and only the newest MaxMessages entries are kept.
package session

import (
	"context"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
)

// Store holds recent conversation turns per user.
type Store interface {
	// History returns up to the last n messages, oldest first.
	History(ctx context.Context, userID string, n int) ([]domain.ChatMessage, error)
	Append(ctx context.Context, userID string, msgs ...domain.ChatMessage) error
	Clear(ctx context.Context, userID string) error
}

type Config struct {
	TTL         time.Duration
	MaxMessages int
	// MaxUsers bounds the in-process store. The oldest-touched user is
	// evicted when the bound is reached.
	MaxUsers int
}

func DefaultConfig() Config {
	return Config{
		TTL:         24 * time.Hour,
		MaxMessages: 20,
		MaxUsers:    10000,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = def.MaxMessages
	}
	if c.MaxUsers <= 0 {
		c.MaxUsers = def.MaxUsers
	}
	return c
}

func tail(msgs []domain.ChatMessage, n int) []domain.ChatMessage {
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}
