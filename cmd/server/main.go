package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/switchboard/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"SWITCHBOARD_DEBUG"`
		Version kong.VersionFlag
		Serve   commands.ServeCmd   `cmd:"" help:"Start the inbox server (webhook + API)"`
		Migrate commands.MigrateCmd `cmd:"" help:"Apply database migrations"`
		Seed    commands.SeedCmd    `cmd:"" help:"Create or rename teams from a YAML file"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("switchboard"),
		kong.Description("Unified SMS and WhatsApp inbox."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
