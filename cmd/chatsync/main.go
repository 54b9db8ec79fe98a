// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// chatsync keeps a live, reconnecting view of one messaging-gateway
// session: it ensures the backend session exists and is paired, opens
// the duplex message channel, and synchronizes conversations until
// interrupted.
//
// With --dlq-report it instead snapshots the gateway's dead-letter
// queue to a compressed JSON file and exits.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/chatsync/channel"
	"github.com/bureau-foundation/chatsync/chat"
	"github.com/bureau-foundation/chatsync/dlq"
	"github.com/bureau-foundation/chatsync/gateway"
	"github.com/bureau-foundation/chatsync/lib/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		sessionID  string
		create     bool
		dlqReport  string
		verbose    bool
	)

	flagSet := pflag.NewFlagSet("chatsync", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to chatsync.yaml (default: $CHATSYNC_CONFIG)")
	flagSet.StringVar(&sessionID, "session", "", "gateway session ID to synchronize")
	flagSet.BoolVar(&create, "create", false, "create the session on the gateway if it does not exist")
	flagSet.StringVar(&dlqReport, "dlq-report", "", "write a compressed DLQ report to this file and exit")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level := cfg.Logging.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dlqReport != "" {
		return writeDLQReport(ctx, cfg, logger, dlqReport)
	}

	if sessionID == "" {
		return fmt.Errorf("--session is required")
	}
	return sync(ctx, cfg, logger, sessionID, create)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// sync ensures the gateway session is paired, then runs the message
// channel until the context is cancelled.
func sync(ctx context.Context, cfg *config.Config, logger *slog.Logger, sessionID string, create bool) error {
	gw, err := gateway.NewClient(gateway.ClientConfig{
		BaseURL: cfg.Gateway.BaseURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if create {
		if _, err := gw.CreateSession(ctx, sessionID); err != nil {
			return err
		}
	}

	info, err := gw.Session(ctx, sessionID)
	switch {
	case gateway.IsNotFound(err):
		return fmt.Errorf("session %s does not exist on the gateway (use --create)", sessionID)
	case err != nil:
		return err
	}

	if info.Status != gateway.StatusConnected {
		// Unpaired sessions need the QR code scanned on the phone.
		if code, qrErr := gw.QRCode(ctx, sessionID); qrErr == nil && code != "" {
			logger.Info("session not paired; scan the QR code", "session_id", sessionID)
			fmt.Println(code)
		}
		pollInterval := config.Duration(cfg.Gateway.PollInterval)
		if pollInterval <= 0 {
			pollInterval = 2 * time.Second
		}
		if err := gw.AwaitConnected(ctx, sessionID, pollInterval); err != nil {
			return err
		}
	}
	logger.Info("gateway session connected", "session_id", sessionID)

	session, err := chat.NewSession(chat.SessionConfig{
		SessionID:       sessionID,
		Dial:            channel.Dial(cfg.Channel.URL),
		AddressSuffix:   cfg.Chat.AddressSuffix,
		Logger:          logger,
		RefreshInterval: config.Duration(cfg.Chat.RefreshInterval),
		LoadThrottle:    config.Duration(cfg.Chat.LoadThrottle),
		DispatchTimeout: config.Duration(cfg.Channel.DispatchTimeout),

		HeartbeatInterval:    config.Duration(cfg.Channel.HeartbeatInterval),
		ReconnectBase:        config.Duration(cfg.Channel.ReconnectBase),
		MaxReconnectAttempts: cfg.Channel.MaxReconnectAttempts,
	})
	if err != nil {
		return err
	}

	session.Start()
	defer session.Teardown()

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func writeDLQReport(ctx context.Context, cfg *config.Config, logger *slog.Logger, path string) error {
	client, err := dlq.NewClient(dlq.ClientConfig{
		BaseURL: cfg.Gateway.BaseURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := client.WriteReport(ctx, file, time.Now()); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	logger.Info("dlq report written", "path", path)
	return nil
}
