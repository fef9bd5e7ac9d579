package models

import (
	"regexp"
	"slices"
	"time"
)

// userIDPattern keeps IDs to a single message subject token, so an ID can
// never carry a wildcard or a token separator.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidUserID reports whether id is acceptable as a user ID.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

// State is the lifecycle state of an SOS session.
// Idle is not stored: it is the absence of an open session for a user.
type State string

const (
	StateCountingDown State = "counting_down"
	StateActive       State = "active"
	StateDeactivated  State = "deactivated"
	StateExpired      State = "expired"
)

// IsOpen returns true if the state occupies the user's registry slot.
func (s State) IsOpen() bool {
	return s == StateCountingDown || s == StateActive
}

// IsTerminal returns true if no transition leaves the state.
func (s State) IsTerminal() bool {
	return s == StateDeactivated || s == StateExpired
}

// TriggerType records how an SOS was raised. It never changes after creation.
type TriggerType string

const (
	TriggerManual TriggerType = "manual"
	TriggerTimer  TriggerType = "timer"
	TriggerVoice  TriggerType = "voice"
	TriggerAuto   TriggerType = "auto"
)

// Valid returns true for the known trigger types.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerManual, TriggerTimer, TriggerVoice, TriggerAuto:
		return true
	}
	return false
}

// LocationSample is one position fix reported for a user.
type LocationSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"captured_at"`
}

// Session is one emergency episode from raise to deactivation.
type Session struct {
	ID          string
	UserID      string
	State       State
	TriggerType TriggerType

	CreatedAt     time.Time
	ActivatedAt   *time.Time
	DeactivatedAt *time.Time

	LatestLocation *LocationSample

	// NotifiedContactIDs is the dedup ledger of contacts confirmed delivered.
	NotifiedContactIDs map[string]struct{}

	// Optional audit metadata
	ClientIP string

	// Version increases with every mutation so archives can discard stale writes.
	Version int64
}

// SessionSnapshot is an immutable copy of a session handed to callers.
type SessionSnapshot struct {
	ID                 string                 `json:"id"`
	UserID             string                 `json:"user_id"`
	State              State                  `json:"state"`
	TriggerType        TriggerType            `json:"trigger_type"`
	CreatedAt          time.Time              `json:"created_at"`
	ActivatedAt        *time.Time             `json:"activated_at,omitempty"`
	DeactivatedAt      *time.Time             `json:"deactivated_at,omitempty"`
	LatestLocation     *LocationSample        `json:"latest_location,omitempty"`
	NotifiedContactIDs []string               `json:"notified_contact_ids"`
	Deliveries         []NotificationDispatch `json:"deliveries"`
	Failures           []DeliveryFailure      `json:"failures,omitempty"`
	ClientIP           string                 `json:"client_ip,omitempty"`
	Version            int64                  `json:"version"`
}

// Snapshot copies the session together with the given delivery records.
func (s *Session) Snapshot(deliveries []NotificationDispatch) SessionSnapshot {
	snap := SessionSnapshot{
		ID:          s.ID,
		UserID:      s.UserID,
		State:       s.State,
		TriggerType: s.TriggerType,
		CreatedAt:   s.CreatedAt,
		ClientIP:    s.ClientIP,
		Version:     s.Version,
		Deliveries:  deliveries,
	}

	if s.ActivatedAt != nil {
		t := *s.ActivatedAt
		snap.ActivatedAt = &t
	}
	if s.DeactivatedAt != nil {
		t := *s.DeactivatedAt
		snap.DeactivatedAt = &t
	}
	if s.LatestLocation != nil {
		loc := *s.LatestLocation
		snap.LatestLocation = &loc
	}

	snap.NotifiedContactIDs = make([]string, 0, len(s.NotifiedContactIDs))
	for id := range s.NotifiedContactIDs {
		snap.NotifiedContactIDs = append(snap.NotifiedContactIDs, id)
	}
	slices.Sort(snap.NotifiedContactIDs)

	snap.Failures = FailuresOf(deliveries)

	return snap
}

// FailuresOf returns the dispatches that exhausted their attempts.
func FailuresOf(deliveries []NotificationDispatch) []DeliveryFailure {
	var failures []DeliveryFailure
	for _, d := range deliveries {
		if d.Status == DispatchFailed {
			failures = append(failures, DeliveryFailure{
				ContactID: d.ContactID,
				Kind:      d.Kind,
				Attempts:  d.Attempt,
				LastError: d.LastError,
			})
		}
	}
	return failures
}
