//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/beacon/internal/models"
	"github.com/wolfeidau/beacon/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*SessionStore, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	s, err := NewSessionStore(ctx, &SessionStoreConfig{
		ConnString:  connString,
		AutoMigrate: true,
	})
	require.NoError(t, err)

	cleanup := func() {
		s.Close()
		_ = container.Terminate(ctx)
	}

	return s, cleanup
}

func TestSessionStoreIntegration(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Microsecond)
	activated := now.Add(3 * time.Second)

	snap := models.SessionSnapshot{
		ID:             "s1",
		UserID:         "u1",
		State:          models.StateActive,
		TriggerType:    models.TriggerManual,
		CreatedAt:      now,
		ActivatedAt:    &activated,
		LatestLocation: &models.LocationSample{Latitude: -33.86, Longitude: 151.2, Accuracy: 5, CapturedAt: now},
		ClientIP:       "10.0.0.1",
		Version:        2,
		Deliveries: []models.NotificationDispatch{
			{SessionID: "s1", ContactID: "c1", Channel: "log", Kind: models.MessageAlert, Attempt: 1, Status: models.DispatchPending, UpdatedAt: now},
		},
	}

	t.Run("save and get", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, snap))

		got, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, models.StateActive, got.State)
		require.Equal(t, "10.0.0.1", got.ClientIP)
		require.NotNil(t, got.LatestLocation)
		require.InDelta(t, -33.86, got.LatestLocation.Latitude, 0.0001)
		require.True(t, activated.Equal(*got.ActivatedAt))
		require.Nil(t, got.DeactivatedAt)
		require.Len(t, got.Deliveries, 1)
		require.Empty(t, got.NotifiedContactIDs)
	})

	t.Run("newer version updates dispatches", func(t *testing.T) {
		deactivated := now.Add(time.Minute)
		next := snap
		next.State = models.StateDeactivated
		next.DeactivatedAt = &deactivated
		next.NotifiedContactIDs = []string{"c1"}
		next.Version = 5
		next.Deliveries = []models.NotificationDispatch{
			{SessionID: "s1", ContactID: "c1", Channel: "log", Kind: models.MessageAlert, Attempt: 1, Status: models.DispatchDelivered, UpdatedAt: now},
			{SessionID: "s1", ContactID: "c2", Channel: "log", Kind: models.MessageAlert, Attempt: 3, Status: models.DispatchFailed, LastError: "timeout", UpdatedAt: now},
		}
		require.NoError(t, s.Save(ctx, next))

		got, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, models.StateDeactivated, got.State)
		require.Equal(t, []string{"c1"}, got.NotifiedContactIDs)
		require.Len(t, got.Deliveries, 2)
		require.Equal(t, models.DispatchDelivered, got.Deliveries[0].Status)
		require.Len(t, got.Failures, 1)
		require.Equal(t, "c2", got.Failures[0].ContactID)
	})

	t.Run("stale version ignored", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, snap))

		got, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, models.StateDeactivated, got.State)
	})

	t.Run("list by user", func(t *testing.T) {
		second := models.SessionSnapshot{
			ID:          "s2",
			UserID:      "u1",
			State:       models.StateActive,
			TriggerType: models.TriggerTimer,
			CreatedAt:   now.Add(time.Hour),
			Version:     1,
		}
		require.NoError(t, s.Save(ctx, second))

		list, err := s.ListByUser(ctx, "u1", 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, "s2", list[0].ID)

		list, err = s.ListByUser(ctx, "u1", 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("invalid state rejected", func(t *testing.T) {
		bad := snap
		bad.ID = "s3"
		bad.State = "bogus"
		require.ErrorIs(t, s.Save(ctx, bad), store.ErrInvalidSession)
	})

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, runMigrations(ctx, s.pool))
	})
}
