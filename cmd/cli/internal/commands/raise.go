package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	sosv1 "github.com/wolfeidau/beacon/api/sosv1"
	"github.com/wolfeidau/beacon/internal/server"
	"github.com/wolfeidau/beacon/internal/util"
)

type RaiseCmd struct {
	ClientFlags `embed:""`

	UserID    string `arg:"" help:"User raising the SOS"`
	Trigger   string `help:"Trigger type" default:"manual" enum:"manual,timer,voice,auto"`
	Countdown string `help:"Countdown before contacts are alerted, e.g. 10s; 0 alerts immediately. Defaults per trigger type." default:""`
	Name      string `help:"Display name to sign the alert with" default:""`
}

func (r *RaiseCmd) Run(ctx context.Context, globals *Globals) error {
	req := &sosv1.RaiseRequest{
		UserID:      r.UserID,
		TriggerType: r.Trigger,
		UserName:    r.Name,
	}

	if r.Countdown != "" {
		d, err := time.ParseDuration(r.Countdown)
		if err != nil {
			return fmt.Errorf("invalid countdown: %w", err)
		}
		seconds := util.Seconds32(d)
		req.CountdownSeconds = &seconds
	}

	clients, err := r.clients(globals)
	if err != nil {
		return err
	}

	resp, err := clients.SOS.Raise(ctx, connect.NewRequest(req))
	if err != nil {
		var cerr *connect.Error
		if errors.As(err, &cerr) && cerr.Code() == connect.CodeAlreadyExists {
			return fmt.Errorf("user %s already has an open SOS session %s", r.UserID, cerr.Meta().Get(server.ExistingSessionHeader))
		}
		return fmt.Errorf("failed to raise SOS: %w", err)
	}

	fmt.Fprintf(stdout, "SOS raised: %s (%s)\n", resp.Msg.SessionID, resp.Msg.State)
	return nil
}
