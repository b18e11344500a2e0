package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dbehnke/caddxd/internal/client"
	"github.com/dbehnke/caddxd/internal/config"
	"github.com/dbehnke/caddxd/internal/logging"
	"github.com/dbehnke/caddxd/internal/lookup"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		configFile = flag.String("c", "caddxd.toml", "Configuration file path")
		host       = flag.String("H", "", "Gateway host:port (overrides config)")
		notify     = flag.String("n", "", "Command to run for each event (overrides config)")
		verbosity  = flag.Int("v", -1, "Verbosity 0-3 (overrides config)")
	)
	flag.Parse()

	cfg := config.NewConfig(*configFile)
	if err := cfg.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "caddx-mon: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.SetMonitorHost(*host)
	}
	if *notify != "" {
		cfg.SetNotifyCommand(*notify)
	}

	opts := logging.DefaultOptions("caddx-mon")
	opts.Level = logging.LevelFromVerbosity(2)
	if *verbosity >= 0 {
		opts.Level = logging.LevelFromVerbosity(*verbosity)
	}
	opts.Timestamp = cfg.GetLogTimestamp()
	if _, err := logging.Setup(opts); err != nil {
		fmt.Fprintf(os.Stderr, "caddx-mon: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("caddx-mon exiting")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	labels, closeLabels, err := lookup.Open(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("labels unavailable, using numbers")
	}
	defer closeLabels()

	conn, err := client.Dial(ctx, cfg.GetMonitorHost(), cfg.GetRequestTimeout())
	if err != nil {
		return err
	}
	defer conn.Close()

	var notifier *client.Notifier
	if cfg.GetNotifyCommand() != "" {
		notifier = client.NewNotifier(cfg.GetNotifyCommand(), labels)
	}

	log.Info().Str("host", cfg.GetMonitorHost()).Msg("monitoring")
	return client.NewMonitor(conn, notifier).Run(ctx)
}
