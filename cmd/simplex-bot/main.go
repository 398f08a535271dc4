// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/stephenmkbrady/simplex-bot/bot"
	"github.com/stephenmkbrady/simplex-bot/files"
	"github.com/stephenmkbrady/simplex-bot/lib/config"
	"github.com/stephenmkbrady/simplex-bot/lib/version"
	"github.com/stephenmkbrady/simplex-bot/plugin"
	"github.com/stephenmkbrady/simplex-bot/plugin/builtin"
	"github.com/stephenmkbrady/simplex-bot/supervisor"
	"github.com/stephenmkbrady/simplex-bot/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var verbose bool
	var showVersion bool

	flagSet := pflag.NewFlagSet("simplex-bot", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the config file (default: $BOT_CONFIG)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("simplex-bot %s\n", version.Full())
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	logger.Info("starting", "name", cfg.Name, "version", version.Short())

	// Message audit log, separate from the operational log.
	var audit *slog.Logger
	if cfg.MessageLog != "" {
		auditFile, err := os.OpenFile(cfg.MessageLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening message log: %w", err)
		}
		defer auditFile.Close()
		audit = slog.New(slog.NewJSONHandler(auditFile, nil))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	supervise, err := supervisor.New(supervisor.Config{
		Command:         cfg.Server.Command,
		Args:            cfg.Server.Args,
		DatabasePath:    cfg.Server.DatabasePath,
		Port:            cfg.Server.Port,
		ProbeInterval:   cfg.Server.ProbeInterval.Std(),
		ProbeAttempts:   cfg.Server.ProbeAttempts,
		StopGracePeriod: cfg.Server.StopGracePeriod.Std(),
		MaxRestarts:     cfg.Server.MaxRestarts,
		Logger:          logger.With("component", "supervisor"),
	})
	if err != nil {
		return err
	}

	correlation := transport.NewRegistry(transport.RegistryConfig{
		Timeout: cfg.Transport.RequestTimeout.Std(),
		Logger:  logger.With("component", "correlation"),
	})

	channel, err := transport.NewChannel(transport.ChannelConfig{
		URL:                  cfg.WebsocketURL,
		Registry:             correlation,
		Backend:              supervise,
		ReconnectMaxAttempts: cfg.Transport.ReconnectMaxAttempts,
		ReconnectBaseDelay:   cfg.Transport.ReconnectBaseDelay.Std(),
		ReconnectMaxDelay:    cfg.Transport.ReconnectMaxDelay.Std(),
		IdleTimeout:          cfg.Transport.IdleTimeout.Std(),
		Logger:               logger.With("component", "transport"),
	})
	if err != nil {
		return err
	}

	sender := bot.NewSender(channel, cfg.Transport.MaxMessageLength, audit)
	adapter := bot.NewAdapter(channel, sender, cfg.Name)

	plugins, err := plugin.NewRegistry(plugin.RegistryConfig{
		Adapter:   adapter,
		ConfigDir: cfg.Plugins.ConfigDir,
		Disabled:  cfg.Plugins.Disabled,
		Logger:    logger.With("component", "plugins"),
	})
	if err != nil {
		return err
	}

	startedAt := time.Now()
	status := func() string {
		return fmt.Sprintf("%s %s\nconnection: %s\nserver: %s\nuptime: %s",
			cfg.Name, version.Short(), channel.State(), supervise.State(),
			time.Since(startedAt).Round(time.Second))
	}
	if err := plugins.RegisterFactory("core", builtin.NewCoreFactory(builtin.CoreDeps{
		Registry: plugins,
		Status:   status,
	})); err != nil {
		return err
	}
	if err := plugins.RegisterFactory("admin", builtin.NewAdminFactory()); err != nil {
		return err
	}
	plugins.LoadAll()
	defer plugins.CleanupAll()

	dispatcher, err := bot.NewDispatcher(bot.DispatcherConfig{
		Plugins: plugins,
		Gate:    bot.NewAdminGate(cfg.Admin),
		Sender:  sender,
		Budget:  cfg.Dispatcher.CommandTimeout.Std(),
		Logger:  logger.With("component", "dispatcher"),
	})
	if err != nil {
		return err
	}

	var media *files.Manager
	if cfg.Media.Enabled {
		media, err = files.NewManager(files.Config{
			Root:         cfg.Media.DownloadPath,
			MaxSize:      int64(cfg.Media.MaxFileSize),
			AllowedKinds: cfg.Media.AllowedTypes,
			XFTPCommand:  cfg.Media.XFTPCommand,
			XFTPTimeout:  cfg.Media.XFTPTimeout.Std(),
			Logger:       logger.With("component", "files"),
		})
		if err != nil {
			return err
		}
	}

	chatbot, err := bot.New(bot.Options{
		Name:               cfg.Name,
		Events:             channel.Events(),
		Transport:          channel,
		Dispatcher:         dispatcher,
		Sender:             sender,
		Files:              media,
		AutoAcceptContacts: cfg.AutoAcceptContacts,
		Logger:             logger.With("component", "bot"),
	})
	if err != nil {
		return err
	}

	// The first fatal error from any component stops the rest.
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error("component failed", "component", name, "error", err)
				select {
				case errs <- fmt.Errorf("%s: %w", name, err):
				default:
				}
			}
		}()
	}

	start("supervisor", supervise.Run)
	start("correlation", func(ctx context.Context) error {
		correlation.Run(ctx, cfg.Transport.SweepInterval.Std())
		return nil
	})
	start("transport", channel.Run)
	if cfg.Plugins.HotReload && cfg.Plugins.ConfigDir != "" {
		start("plugin-watch", plugins.Watch)
	}
	start("bot", chatbot.Run)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errs:
	}
	stop()
	wg.Wait()

	logger.Info("stopped")
	return runErr
}
