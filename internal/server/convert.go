package server

import (
	sosv1 "github.com/wolfeidau/beacon/api/sosv1"
	"github.com/wolfeidau/beacon/internal/models"
	"github.com/wolfeidau/beacon/internal/util"
)

func fromLocation(loc *sosv1.Location) models.LocationSample {
	return models.LocationSample{
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Accuracy:   loc.Accuracy,
		CapturedAt: loc.CapturedAt,
	}
}

func toLocation(loc *models.LocationSample) *sosv1.Location {
	if loc == nil {
		return nil
	}
	return &sosv1.Location{
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Accuracy:   loc.Accuracy,
		CapturedAt: loc.CapturedAt,
	}
}

func toSession(snap models.SessionSnapshot) *sosv1.Session {
	out := &sosv1.Session{
		SessionID:          snap.ID,
		UserID:             snap.UserID,
		State:              string(snap.State),
		TriggerType:        string(snap.TriggerType),
		CreatedAt:          snap.CreatedAt,
		ActivatedAt:        snap.ActivatedAt,
		DeactivatedAt:      snap.DeactivatedAt,
		LatestLocation:     toLocation(snap.LatestLocation),
		NotifiedContactIDs: snap.NotifiedContactIDs,
		ClientIP:           snap.ClientIP,
	}

	for _, d := range snap.Deliveries {
		out.Deliveries = append(out.Deliveries, &sosv1.Delivery{
			ContactID: d.ContactID,
			Channel:   d.Channel,
			Kind:      string(d.Kind),
			Sequence:  d.Sequence,
			Attempt:   util.AsInt32(d.Attempt),
			Status:    string(d.Status),
			LastError: d.LastError,
			UpdatedAt: d.UpdatedAt,
		})
	}

	for _, f := range snap.Failures {
		out.Failures = append(out.Failures, &sosv1.DeliveryFailure{
			ContactID: f.ContactID,
			Kind:      string(f.Kind),
			Attempts:  util.AsInt32(f.Attempts),
			LastError: f.LastError,
		})
	}

	return out
}
