package location

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/beacon/internal/models"
)

// DefaultSubjectPrefix is prepended to the user ID to form the subject a
// device publishes its samples on.
const DefaultSubjectPrefix = "sos.location."

// NATSSource subscribes to per-user location subjects on a NATS connection.
// Messages carry a JSON encoded models.LocationSample.
type NATSSource struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSSource creates a source using an established connection.
func NewNATSSource(conn *nats.Conn, prefix string) *NATSSource {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSource{conn: conn, prefix: prefix}
}

// ErrInvalidUserID is returned for IDs that are not a single literal subject token.
var ErrInvalidUserID = errors.New("user id must be a single subject token of letters, digits, '-' or '_'")

// Subject returns the subject carrying the user's samples.
func (s *NATSSource) Subject(userID string) string {
	return s.prefix + userID
}

// OnSample subscribes cb to the user's subject.
func (s *NATSSource) OnSample(userID string, cb func(models.LocationSample)) (func(), error) {
	if !models.ValidUserID(userID) {
		return nil, ErrInvalidUserID
	}

	subject := s.Subject(userID)
	sub, err := s.conn.Subscribe(subject, sampleHandler(subject, cb))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %q: %w", subject, err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrBadSubscription) {
			log.Warn().Err(err).Str("subject", subject).Msg("Failed to unsubscribe from location subject")
		}
	}, nil
}

// Publish sends a sample for the user.
func (s *NATSSource) Publish(userID string, sample models.LocationSample) error {
	if !models.ValidUserID(userID) {
		return ErrInvalidUserID
	}

	data, err := json.Marshal(sample)
	if err != nil {
		return err
	}

	if err := s.conn.Publish(s.Subject(userID), data); err != nil {
		return fmt.Errorf("failed to publish location: %w", err)
	}
	return nil
}

func sampleHandler(subject string, cb func(models.LocationSample)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var sample models.LocationSample
		if err := json.Unmarshal(msg.Data, &sample); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("Dropping malformed location message")
			return
		}
		if sample.CapturedAt.IsZero() {
			log.Warn().Str("subject", subject).Msg("Dropping location message without captured_at")
			return
		}
		cb(sample)
	}
}
