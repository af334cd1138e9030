package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/glowire/internal/config"
	"github.com/nextlevelbuilder/glowire/internal/gateway"
	"github.com/nextlevelbuilder/glowire/internal/gateway/dingtalk"
	"github.com/nextlevelbuilder/glowire/internal/gateway/discord"
	"github.com/nextlevelbuilder/glowire/internal/gateway/feishu"
	"github.com/nextlevelbuilder/glowire/internal/gateway/telegram"
	"github.com/nextlevelbuilder/glowire/internal/gateway/wework"
	"github.com/nextlevelbuilder/glowire/internal/gateway/whatsapp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start all enabled gateways and run until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

// buildManager constructs an adapter for every enabled platform and
// registers it in a fixed order.
func buildManager(cfg *config.Config) (*gateway.Manager, error) {
	mgr := gateway.NewManager()

	if cfg.Gateways.DingTalk.Enabled {
		mgr.Add(dingtalk.New(cfg.Gateways.DingTalk))
	}
	if cfg.Gateways.Feishu.Enabled {
		mgr.Add(feishu.New(cfg.Gateways.Feishu))
	}
	if cfg.Gateways.Discord.Enabled {
		g, err := discord.New(cfg.Gateways.Discord)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		mgr.Add(g)
	}
	if cfg.Gateways.Telegram.Enabled {
		g, err := telegram.New(cfg.Gateways.Telegram)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		mgr.Add(g)
	}
	if cfg.Gateways.WeWork.Enabled {
		mgr.Add(wework.New(cfg.Gateways.WeWork))
	}
	if cfg.Gateways.WhatsApp.Enabled {
		mgr.Add(whatsapp.New(cfg.Gateways.WhatsApp))
	}

	return mgr, nil
}

func runServe() {
	setupLogging()
	cfg := loadConfig()

	mgr, err := buildManager(cfg)
	if err != nil {
		slog.Error("failed to build gateways", "error", err)
		os.Exit(1)
	}
	if len(mgr.Names()) == 0 {
		slog.Error("no gateways enabled; edit the config file or set credentials in the environment")
		os.Exit(1)
	}

	mgr.SetEventCallback(func(name string, ev gateway.Event) {
		switch ev.Type {
		case gateway.EventMessage:
			slog.Info("message received",
				"gateway", name,
				"channel", ev.Message.ChannelID,
				"user", ev.Message.UserName,
				"content", gateway.Truncate(ev.Message.Content, 120))
		case gateway.EventError:
			slog.Warn("gateway error", "gateway", name, "error", ev.Err)
		case gateway.EventConnected:
			slog.Info("gateway connected", "gateway", name)
		case gateway.EventDisconnected:
			slog.Info("gateway disconnected", "gateway", name)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr.StartAll(ctx)

	var monitor *gateway.NetworkMonitor
	if cfg.Monitor.Enabled {
		monitor = gateway.NewNetworkMonitor(mgr.Gateways)
		monitor.Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	if monitor != nil {
		monitor.Stop()
	}
	mgr.StopAll(context.Background())
}
