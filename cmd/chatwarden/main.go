package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/repo"
	"github.com/devricklin/chatwarden/internal/conf"
	"github.com/devricklin/chatwarden/internal/data"
	"github.com/devricklin/chatwarden/internal/infra/feishu"
	"github.com/devricklin/chatwarden/internal/infra/gateway"
	"github.com/devricklin/chatwarden/internal/infra/logger"
	"github.com/devricklin/chatwarden/internal/server"
)

func main() {
	app := cli.App{
		Name:    "chatwarden",
		Usage:   "group chat moderation and companion bot",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before reading configuration",
				Value: ".env",
			},
		},
		Before: func(cctx *cli.Context) error {
			if err := godotenv.Load(cctx.String("env-file")); err != nil && cctx.IsSet("env-file") {
				return fmt.Errorf("load %s: %w", cctx.String("env-file"), err)
			}
			return nil
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "connect the configured transports and process events",
			Action: runBot,
		},
		{
			Name:      "send",
			Usage:     "send a text message to a conversation",
			ArgsUsage: "<conversation-id> <text>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "account",
					Usage: "transport to send through (feishu or gateway)",
					Value: data.FeishuAccount,
				},
				&cli.StringSliceFlag{
					Name:  "mention",
					Usage: "actor id to mention, repeatable",
				},
			},
			Action: runSend,
		},
	}
	app.RunAndExitOnError()
}

func loadConfig() (*conf.Config, *zap.Logger, error) {
	cfg, err := conf.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func runBot(cctx *cli.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		return err
	}

	log.Info("starting chatwarden",
		zap.String("version", versioninfo.Short()),
		zap.Strings("accounts", srv.Accounts().Accounts()))
	srv.Start(ctx)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Stop(shutdownCtx)
	return nil
}

func runSend(cctx *cli.Context) error {
	if cctx.Args().Len() < 2 {
		return cli.Exit("usage: chatwarden send <conversation-id> <text>", 1)
	}
	conversationID := cctx.Args().Get(0)
	text := cctx.Args().Get(1)

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cctx.Context, 30*time.Second)
	defer cancel()

	var t repo.Transport
	switch cctx.String("account") {
	case data.FeishuAccount:
		if !cfg.Feishu.Enabled() {
			return cli.Exit("FEISHU_APP_ID and FEISHU_APP_SECRET must be set", 1)
		}
		t = data.NewFeishuTransport(feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, log), log)
	case data.GatewayAccount:
		if !cfg.Gateway.Enabled() {
			return cli.Exit("GATEWAY_URL must be set", 1)
		}
		client := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, log)
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("connect gateway: %w", err)
		}
		defer client.Close()
		t = data.NewGatewayTransport(client, log)
	default:
		return cli.Exit(fmt.Sprintf("unknown account %q", cctx.String("account")), 1)
	}

	msgID, err := t.SendText(ctx, conversationID, text, cctx.StringSlice("mention"))
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	fmt.Fprintf(os.Stdout, "sent %s\n", msgID)
	return nil
}
