package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"

	"github.com/devricklin/chatwarden/internal/mcp"
)

// warden-mcp exposes the chatwarden admin API as MCP tools over stdio.
// Nothing may be written to stdout besides protocol frames.
func main() {
	app := cli.App{
		Name:    "warden-mcp",
		Usage:   "MCP server for chatwarden moderation tools",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Usage:   "chatwarden admin API base URL",
				Value:   "http://127.0.0.1:9876",
				EnvVars: []string{"WARDEN_API_URL"},
			},
		},
		Action: func(cctx *cli.Context) error {
			ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			handler := mcp.NewHandler(mcp.NewClient(cctx.String("api")))
			server := mcp.NewServer(handler, versioninfo.Short())
			if err := mcp.Run(ctx, server); err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "[warden-mcp] server error: %v\n", err)
				return err
			}
			return nil
		},
	}
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}
