package whatsapp

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned for webhook deliveries that carry no text message,
// such as delivery and read status updates.
var ErrNoMessage = errors.New("webhook payload carries no text message")

// InboundMessage is a customer text message received through the webhook.
type InboundMessage struct {
	From string
	Name string
	Text string
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseInbound extracts the first text message of a webhook delivery.
func ParseInbound(body []byte) (*InboundMessage, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return nil, ErrNoMessage
	}
	value := p.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 || value.Messages[0].Text.Body == "" {
		return nil, ErrNoMessage
	}

	msg := &InboundMessage{
		From: value.Messages[0].From,
		Text: value.Messages[0].Text.Body,
	}
	if len(value.Contacts) > 0 {
		if value.Contacts[0].WaID != "" {
			msg.From = value.Contacts[0].WaID
		}
		msg.Name = value.Contacts[0].Profile.Name
	}
	if msg.From == "" {
		return nil, ErrNoMessage
	}
	return msg, nil
}

// VerifyChallenge answers the subscription handshake. It returns the challenge
// when mode is "subscribe" and the token matches.
func VerifyChallenge(mode, token, challenge, expected string) (string, bool) {
	if mode != "subscribe" || expected == "" || token != expected {
		return "", false
	}
	return challenge, true
}
