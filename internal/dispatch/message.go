package dispatch

import (
	"fmt"

	"github.com/wolfeidau/beacon/internal/models"
	"github.com/wolfeidau/beacon/internal/notify"
)

const mapsURL = "https://maps.google.com/?q=%f,%f"

// MapURL returns a maps link for the sample.
func MapURL(loc models.LocationSample) string {
	return fmt.Sprintf(mapsURL, loc.Latitude, loc.Longitude)
}

// AlertText renders the initial alert, written as the user speaking to
// their contact. displayName signs the alert when set. A session without a
// fix says so rather than holding the alert back.
func AlertText(displayName string, loc *models.LocationSample) string {
	prefix := "EMERGENCY"
	if displayName != "" {
		prefix = "EMERGENCY from " + displayName
	}

	if loc == nil {
		return prefix + ": I need help! My location is not available yet."
	}
	return prefix + ": I need help! My location is: " + MapURL(*loc)
}

// UpdateText renders a location update for a contact already alerted.
func UpdateText(loc models.LocationSample) string {
	return "Location update: " + MapURL(loc)
}

func buildMessage(l Ledger, contact models.EmergencyContact, kind models.MessageKind, seq int64) notify.Message {
	loc := l.Location()

	msg := notify.Message{
		Kind:      kind,
		SessionID: l.SessionID(),
		UserID:    l.UserID(),
		DedupKey:  models.DispatchKey(l.SessionID(), contact.ID, kind, seq),
		Location:  loc,
	}

	if kind == models.MessageLocationUpdate && loc != nil {
		msg.Text = UpdateText(*loc)
	} else {
		msg.Text = AlertText(l.DisplayName(), loc)
	}

	return msg
}
