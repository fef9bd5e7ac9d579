package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/beacon/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Raise      commands.RaiseCmd      `cmd:"" help:"Raise an SOS"`
		Trigger    commands.TriggerCmd    `cmd:"" help:"Skip the countdown and alert contacts now"`
		Cancel     commands.CancelCmd     `cmd:"" help:"Cancel an SOS during its countdown"`
		Deactivate commands.DeactivateCmd `cmd:"" help:"Resolve an active SOS"`
		Location   commands.LocationCmd   `cmd:"" help:"Report a location sample"`
		Status     commands.StatusCmd     `cmd:"" help:"Show a session"`
		Active     commands.ActiveCmd     `cmd:"" help:"Show a user's open session"`
		History    commands.HistoryCmd    `cmd:"" help:"List a user's past sessions"`
		Debug      bool                   `help:"Enable debug mode."`
		Version    kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
