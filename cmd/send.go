package cmd

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var (
		gatewayName string
		to          string
		filePath    string
	)

	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Start one gateway, deliver a message, and exit",
		Run: func(cmd *cobra.Command, args []string) {
			runSend(gatewayName, to, filePath, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&gatewayName, "gateway", "", "gateway to send through (default: every connected gateway)")
	cmd.Flags().StringVar(&to, "to", "", "conversation ID (default: the gateway's last active conversation)")
	cmd.Flags().StringVar(&filePath, "file", "", "send a local file instead of text")
	return cmd
}

func runSend(gatewayName, to, filePath, text string) {
	setupLogging()
	cfg := loadConfig()

	mgr, err := buildManager(cfg)
	if err != nil {
		slog.Error("failed to build gateways", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if gatewayName == "" {
		mgr.StartAll(ctx)
		defer mgr.StopAll(context.Background())

		if err := mgr.SendNotification(ctx, text); err != nil {
			slog.Error("send failed", "error", err)
			os.Exit(1)
		}
		return
	}

	g, err := mgr.Get(gatewayName)
	if err != nil {
		slog.Error("send failed", "error", err)
		os.Exit(1)
	}
	if err := g.Start(ctx); err != nil {
		slog.Error("failed to start gateway", "gateway", gatewayName, "error", err)
		os.Exit(1)
	}
	defer g.Stop(context.Background())

	switch {
	case filePath != "":
		err = g.SendMediaMessage(ctx, to, filePath)
	case to != "":
		err = g.SendMessage(ctx, to, text)
	default:
		err = g.SendNotification(ctx, text)
	}
	if err != nil {
		slog.Error("send failed", "gateway", gatewayName, "error", err)
		os.Exit(1)
	}
	slog.Info("message delivered", "gateway", gatewayName)
}
