// Package notify delivers SOS messages to emergency contacts.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/beacon/internal/models"
)

// Message is the content delivered to one contact.
type Message struct {
	Kind      models.MessageKind     `json:"kind"`
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id"`
	DedupKey  string                 `json:"dedup_key"`
	Text      string                 `json:"text"`
	Location  *models.LocationSample `json:"location,omitempty"`
}

// Channel performs the actual delivery. A nil error means the message was
// delivered; any error (including context expiry) counts as a failed attempt.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, contact models.EmergencyContact, msg Message) error
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc func(ctx context.Context, contact models.EmergencyContact, msg Message) error

func (f ChannelFunc) Name() string { return "func" }

func (f ChannelFunc) Deliver(ctx context.Context, contact models.EmergencyContact, msg Message) error {
	return f(ctx, contact, msg)
}

// LogChannel writes messages to the log instead of sending them.
// It is the development default when no gateway is configured.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Deliver(ctx context.Context, contact models.EmergencyContact, msg Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delivery aborted: %w", err)
	}

	log.Info().
		Str("session_id", msg.SessionID).
		Str("contact_id", contact.ID).
		Str("phone", MaskPhone(contact.Phone)).
		Str("kind", string(msg.Kind)).
		Str("text", msg.Text).
		Msg("Delivered message to log channel")

	return nil
}

// MaskPhone hides all but the last two digits of a phone number for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 2 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-2) + phone[len(phone)-2:]
}
