// Package sosv1 defines the messages of the sos.v1 RPC service.
package sosv1

import "time"

// Trigger types accepted by Raise.
const (
	TriggerManual = "manual"
	TriggerTimer  = "timer"
	TriggerVoice  = "voice"
	TriggerAuto   = "auto"
)

type Location struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"captured_at"`
}

type Delivery struct {
	ContactID string    `json:"contact_id"`
	Channel   string    `json:"channel"`
	Kind      string    `json:"kind"`
	Sequence  int64     `json:"sequence,omitempty"`
	Attempt   int32     `json:"attempt"`
	Status    string    `json:"status"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DeliveryFailure struct {
	ContactID string `json:"contact_id"`
	Kind      string `json:"kind"`
	Attempts  int32  `json:"attempts"`
	LastError string `json:"last_error"`
}

type Session struct {
	SessionID          string             `json:"session_id"`
	UserID             string             `json:"user_id"`
	State              string             `json:"state"`
	TriggerType        string             `json:"trigger_type"`
	CreatedAt          time.Time          `json:"created_at"`
	ActivatedAt        *time.Time         `json:"activated_at,omitempty"`
	DeactivatedAt      *time.Time         `json:"deactivated_at,omitempty"`
	LatestLocation     *Location          `json:"latest_location,omitempty"`
	NotifiedContactIDs []string           `json:"notified_contact_ids"`
	Deliveries         []*Delivery        `json:"deliveries,omitempty"`
	Failures           []*DeliveryFailure `json:"failures,omitempty"`
	ClientIP           string             `json:"client_ip,omitempty"`
}

type RaiseRequest struct {
	UserID      string `json:"user_id"`
	TriggerType string `json:"trigger_type"`
	// CountdownSeconds overrides the trigger's default countdown when set.
	// Zero activates immediately.
	CountdownSeconds *int32 `json:"countdown_seconds,omitempty"`
	// UserName signs the alert sent to contacts.
	UserName string `json:"user_name,omitempty"`
}

type RaiseResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

type TriggerNowRequest struct {
	SessionID string `json:"session_id"`
}

type TriggerNowResponse struct{}

type CancelRequest struct {
	SessionID string `json:"session_id"`
}

type CancelResponse struct{}

type DeactivateRequest struct {
	SessionID string `json:"session_id"`
}

type DeactivateResponse struct{}

type IngestLocationRequest struct {
	SessionID string    `json:"session_id"`
	Location  *Location `json:"location"`
}

type IngestLocationResponse struct {
	Accepted bool `json:"accepted"`
}

type GetSessionRequest struct {
	SessionID string `json:"session_id"`
}

type GetSessionResponse struct {
	Session *Session `json:"session"`
}

type GetActiveSessionRequest struct {
	UserID string `json:"user_id"`
}

type GetActiveSessionResponse struct {
	Session *Session `json:"session"`
}

type ListHistoryRequest struct {
	UserID string `json:"user_id"`
}

type ListHistoryResponse struct {
	Sessions []*Session `json:"sessions"`
}
