package models

import (
	"fmt"
	"time"
)

// EmergencyContact is read-only to the engine; the contact directory owns it.
type EmergencyContact struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Phone        string `json:"phone" yaml:"phone"`
	Relationship string `json:"relationship,omitempty" yaml:"relationship"`
	IsPrimary    bool   `json:"is_primary" yaml:"primary"`
}

// DispatchStatus is the delivery status of one notification to one contact.
type DispatchStatus string

const (
	DispatchPending   DispatchStatus = "pending"
	DispatchDelivered DispatchStatus = "delivered"
	DispatchFailed    DispatchStatus = "failed"
)

// MessageKind distinguishes the original alert from supplementary location updates.
type MessageKind string

const (
	MessageAlert          MessageKind = "alert"
	MessageLocationUpdate MessageKind = "location_update"
)

// NotificationDispatch tracks delivery of one message to one contact.
type NotificationDispatch struct {
	SessionID string         `json:"session_id"`
	ContactID string         `json:"contact_id"`
	Channel   string         `json:"channel"`
	Kind      MessageKind    `json:"kind"`
	Sequence  int64          `json:"sequence,omitempty"`
	Attempt   int            `json:"attempt"`
	Status    DispatchStatus `json:"status"`
	LastError string         `json:"last_error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Key returns the idempotency key of the dispatch. Alerts are keyed by
// session and contact, location updates additionally by their sequence.
func (d NotificationDispatch) Key() string {
	return DispatchKey(d.SessionID, d.ContactID, d.Kind, d.Sequence)
}

// DispatchKey builds the idempotency key for a dispatch.
func DispatchKey(sessionID, contactID string, kind MessageKind, seq int64) string {
	if kind == MessageLocationUpdate {
		return fmt.Sprintf("%s/%s/update/%d", sessionID, contactID, seq)
	}
	return sessionID + "/" + contactID
}

// DeliveryFailure reports a dispatch that exhausted its attempts.
// It is surfaced through session snapshots and never returned as an error.
type DeliveryFailure struct {
	ContactID string      `json:"contact_id"`
	Kind      MessageKind `json:"kind"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"last_error"`
}
