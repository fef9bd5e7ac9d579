package location

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/beacon/internal/models"
)

func TestMemorySourcePublish(t *testing.T) {
	src := NewMemorySource()

	var got []models.LocationSample
	cancel, err := src.OnSample("u1", func(s models.LocationSample) { got = append(got, s) })
	require.NoError(t, err)

	sample := models.LocationSample{Latitude: 1, Longitude: 2, CapturedAt: time.Now()}
	require.Equal(t, 1, src.Publish("u1", sample))
	require.Equal(t, 0, src.Publish("u2", sample))
	require.Len(t, got, 1)

	cancel()
	cancel()
	require.Equal(t, 0, src.Subscribers("u1"))
	require.Equal(t, 0, src.Publish("u1", sample))
	require.Len(t, got, 1)
}

func TestNATSSampleHandler(t *testing.T) {
	var got []models.LocationSample
	h := sampleHandler("sos.location.u1", func(s models.LocationSample) { got = append(got, s) })

	h(&nats.Msg{Data: []byte(`{"latitude":-33.86,"longitude":151.2,"accuracy":5,"captured_at":"2026-01-02T03:04:05Z"}`)})
	h(&nats.Msg{Data: []byte(`not json`)})
	h(&nats.Msg{Data: []byte(`{"latitude":1}`)})

	require.Len(t, got, 1)
	require.InDelta(t, -33.86, got[0].Latitude, 0.0001)
	require.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), got[0].CapturedAt.UTC())
}

func TestNATSSourceSubject(t *testing.T) {
	require.Equal(t, "sos.location.u1", NewNATSSource(nil, "").Subject("u1"))
	require.Equal(t, "dev.loc.u1", NewNATSSource(nil, "dev.loc.").Subject("u1"))

	_, err := NewNATSSource(nil, "").OnSample("", func(models.LocationSample) {})
	require.Error(t, err)
}

func TestNATSSourceRejectsWildcardUsers(t *testing.T) {
	src := NewNATSSource(nil, "")

	for _, userID := range []string{"*", ">", "alice.*", "a.b", "a b"} {
		_, err := src.OnSample(userID, func(models.LocationSample) {})
		require.ErrorIs(t, err, ErrInvalidUserID, userID)

		err = src.Publish(userID, models.LocationSample{CapturedAt: time.Now()})
		require.ErrorIs(t, err, ErrInvalidUserID, userID)
	}
}
