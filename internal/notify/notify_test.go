package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/beacon/internal/models"
)

var testContact = models.EmergencyContact{ID: "c1", Name: "Alice", Phone: "+15550100", IsPrimary: true}

func TestWebhookChannelDeliver(t *testing.T) {
	var (
		got    webhookPayload
		header http.Header
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, "secret")
	err := ch.Deliver(context.Background(), testContact, Message{
		Kind:      models.MessageAlert,
		SessionID: "s1",
		DedupKey:  "s1/c1",
		Text:      "EMERGENCY",
	})
	require.NoError(t, err)

	assert.Equal(t, "+15550100", got.To)
	assert.True(t, got.Primary)
	assert.Equal(t, "EMERGENCY", got.Message.Text)
	assert.Equal(t, "s1/c1", header.Get("Idempotency-Key"))
	assert.Equal(t, "secret", header.Get("Authorization"))
	assert.Equal(t, "webhook", ch.Name())
}

func TestWebhookChannelFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookChannel(srv.URL, "").Deliver(context.Background(), testContact, Message{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=502")
}

func TestWebhookChannelHonoursContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := NewWebhookChannel(srv.URL, "").Deliver(ctx, testContact, Message{})
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestLogChannel(t *testing.T) {
	require.NoError(t, LogChannel{}.Deliver(context.Background(), testContact, Message{Text: "hello"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, LogChannel{}.Deliver(ctx, testContact, Message{}))
}

func TestLogChannelMasksPhone(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	require.NoError(t, LogChannel{}.Deliver(context.Background(), testContact, Message{Text: "hello"}))

	require.NotContains(t, buf.String(), testContact.Phone)
	require.Contains(t, buf.String(), `"phone":"*******00"`)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "*******00", MaskPhone("+15550100"))
	assert.Equal(t, "**", MaskPhone("12"))
	assert.Equal(t, "", MaskPhone(""))
}

func TestChannelFunc(t *testing.T) {
	called := false
	ch := ChannelFunc(func(ctx context.Context, contact models.EmergencyContact, msg Message) error {
		called = true
		return nil
	})

	require.NoError(t, ch.Deliver(context.Background(), testContact, Message{}))
	require.True(t, called)
	require.Equal(t, "func", ch.Name())
}
