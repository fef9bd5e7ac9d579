package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/nats-io/nats.go"
	sosv1 "github.com/wolfeidau/beacon/api/sosv1"
	"github.com/wolfeidau/beacon/internal/location"
	"github.com/wolfeidau/beacon/internal/models"
)

// LocationCmd reports a position fix. By default it calls IngestLocation on
// the server; with --nats-url it publishes on the user's location subject
// the way a device would.
type LocationCmd struct {
	ClientFlags `embed:""`

	SessionID string  `help:"Session to update (RPC mode)" default:""`
	UserID    string  `help:"User publishing the sample (NATS mode)" default:""`
	Lat       float64 `help:"Latitude in degrees" required:""`
	Lng       float64 `help:"Longitude in degrees" required:""`
	Accuracy  float64 `help:"Accuracy radius in metres" default:"10"`

	NATSURL       string `name:"nats-url" help:"publish through NATS instead of RPC" default:"" env:"BEACON_NATS_URL"`
	SubjectPrefix string `help:"NATS subject prefix" default:"sos.location."`
}

func (l *LocationCmd) Validate() error {
	if l.NATSURL != "" && l.UserID == "" {
		return errors.New("--user-id is required when publishing through NATS")
	}
	if l.NATSURL == "" && l.SessionID == "" {
		return errors.New("--session-id is required")
	}
	return nil
}

func (l *LocationCmd) Run(ctx context.Context, globals *Globals) error {
	capturedAt := time.Now().UTC()

	if l.NATSURL != "" {
		return l.publish(capturedAt)
	}

	clients, err := l.clients(globals)
	if err != nil {
		return err
	}

	resp, err := clients.SOS.IngestLocation(ctx, connect.NewRequest(&sosv1.IngestLocationRequest{
		SessionID: l.SessionID,
		Location: &sosv1.Location{
			Latitude:   l.Lat,
			Longitude:  l.Lng,
			Accuracy:   l.Accuracy,
			CapturedAt: capturedAt,
		},
	}))
	if err != nil {
		return fmt.Errorf("failed to send location: %w", err)
	}

	if resp.Msg.Accepted {
		fmt.Fprintln(stdout, "Location accepted")
	} else {
		fmt.Fprintln(stdout, "Location dropped (session not active or sample stale)")
	}
	return nil
}

func (l *LocationCmd) publish(capturedAt time.Time) error {
	conn, err := nats.Connect(l.NATSURL, nats.Name("beacon-cli"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer conn.Close()

	source := location.NewNATSSource(conn, l.SubjectPrefix)
	err = source.Publish(l.UserID, models.LocationSample{
		Latitude:   l.Lat,
		Longitude:  l.Lng,
		Accuracy:   l.Accuracy,
		CapturedAt: capturedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to publish location: %w", err)
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}

	fmt.Fprintf(stdout, "Location published on %s\n", source.Subject(l.UserID))
	return nil
}
