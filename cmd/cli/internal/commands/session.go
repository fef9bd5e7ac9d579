package commands

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	sosv1 "github.com/wolfeidau/beacon/api/sosv1"
)

type TriggerCmd struct {
	ClientFlags `embed:""`

	SessionID string `arg:"" help:"Session counting down"`
}

func (t *TriggerCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := t.clients(globals)
	if err != nil {
		return err
	}

	if _, err := clients.SOS.TriggerNow(ctx, connect.NewRequest(&sosv1.TriggerNowRequest{SessionID: t.SessionID})); err != nil {
		return fmt.Errorf("failed to trigger SOS: %w", err)
	}

	fmt.Fprintf(stdout, "SOS %s triggered, contacts are being alerted\n", t.SessionID)
	return nil
}

type CancelCmd struct {
	ClientFlags `embed:""`

	SessionID string `arg:"" help:"Session counting down"`
}

func (c *CancelCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := c.clients(globals)
	if err != nil {
		return err
	}

	if _, err := clients.SOS.Cancel(ctx, connect.NewRequest(&sosv1.CancelRequest{SessionID: c.SessionID})); err != nil {
		return fmt.Errorf("failed to cancel SOS: %w", err)
	}

	fmt.Fprintf(stdout, "SOS %s cancelled, no contacts were alerted\n", c.SessionID)
	return nil
}

type DeactivateCmd struct {
	ClientFlags `embed:""`

	SessionID string `arg:"" help:"Active session"`
}

func (d *DeactivateCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := d.clients(globals)
	if err != nil {
		return err
	}

	if _, err := clients.SOS.Deactivate(ctx, connect.NewRequest(&sosv1.DeactivateRequest{SessionID: d.SessionID})); err != nil {
		return fmt.Errorf("failed to deactivate SOS: %w", err)
	}

	fmt.Fprintf(stdout, "SOS %s deactivated\n", d.SessionID)
	return nil
}

type StatusCmd struct {
	ClientFlags `embed:""`

	SessionID string `arg:"" help:"Session to show"`
}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := s.clients(globals)
	if err != nil {
		return err
	}

	resp, err := clients.SOS.GetSession(ctx, connect.NewRequest(&sosv1.GetSessionRequest{SessionID: s.SessionID}))
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	printSession(stdout, resp.Msg.Session)
	return nil
}

type ActiveCmd struct {
	ClientFlags `embed:""`

	UserID string `arg:"" help:"User to look up"`
}

func (a *ActiveCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := a.clients(globals)
	if err != nil {
		return err
	}

	resp, err := clients.SOS.GetActiveSession(ctx, connect.NewRequest(&sosv1.GetActiveSessionRequest{UserID: a.UserID}))
	if err != nil {
		if connect.CodeOf(err) == connect.CodeNotFound {
			fmt.Fprintf(stdout, "No open SOS session for %s\n", a.UserID)
			return nil
		}
		return fmt.Errorf("failed to get active session: %w", err)
	}

	printSession(stdout, resp.Msg.Session)
	return nil
}

type HistoryCmd struct {
	ClientFlags `embed:""`

	UserID string `arg:"" help:"User to list"`
}

func (h *HistoryCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := h.clients(globals)
	if err != nil {
		return err
	}

	resp, err := clients.SOS.ListHistory(ctx, connect.NewRequest(&sosv1.ListHistoryRequest{UserID: h.UserID}))
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	printSessions(stdout, h.UserID, resp.Msg.Sessions)
	return nil
}
