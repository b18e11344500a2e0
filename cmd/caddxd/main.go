package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/dbehnke/caddxd/internal/config"
	"github.com/dbehnke/caddxd/internal/gateway"
	"github.com/dbehnke/caddxd/internal/logging"
	"github.com/dbehnke/caddxd/internal/network"
	"github.com/rs/zerolog/log"
)

const VERSION = "1.0.0"

func main() {
	var (
		configFile = flag.String("c", getDefaultConfig(), "Configuration file path")
		device     = flag.String("t", "", "Serial device (overrides config)")
		baud       = flag.Int("b", 0, "Baud rate (overrides config)")
		listen     = flag.String("l", "", "Listen address host:port (overrides config)")
		verbosity  = flag.Int("v", -1, "Verbosity 0-3 (overrides config)")
		useSyslog  = flag.Bool("s", false, "Log to syslog")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("caddxd v%s\n", VERSION)
		return
	}

	cfg := config.NewConfig(*configFile)
	if err := cfg.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "caddxd: %v\n", err)
		os.Exit(1)
	}
	if *device != "" {
		cfg.SetSerialDevice(*device)
	}
	if *baud != 0 {
		cfg.SetBaudRate(*baud)
	}
	if *listen != "" {
		cfg.SetListenAddress(*listen)
	}
	if *useSyslog {
		cfg.SetLogSyslog(true)
	}

	if err := setupLogging(cfg, *verbosity); err != nil {
		fmt.Fprintf(os.Stderr, "caddxd: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Str("config", cfg.GetFilename()).Msg("invalid configuration")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("caddxd exiting")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	port, err := network.OpenSerial(cfg.GetSerialDevice(), cfg.GetBaudRate())
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.GetListenAddress())
	if err != nil {
		port.Close()
		return fmt.Errorf("listen %s: %w", cfg.GetListenAddress(), err)
	}

	log.Info().
		Str("version", VERSION).
		Str("device", cfg.GetSerialDevice()).
		Int("baud", cfg.GetBaudRate()).
		Str("listen", ln.Addr().String()).
		Msg("caddxd starting")

	gw := gateway.New(gateway.Config{
		SocketTimeout:  cfg.GetSocketTimeout(),
		TickInterval:   cfg.GetTickInterval(),
		ProbePeriod:    cfg.GetProbePeriod(),
		FrameTimeout:   cfg.GetFrameTimeout(),
		MaxSubscribers: cfg.GetMaxSubscribers(),
	}, port, ln)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return gw.Run(ctx)
}

func setupLogging(cfg *config.Config, verbosity int) error {
	opts := logging.DefaultOptions("caddxd")
	opts.Syslog = cfg.GetLogSyslog()
	opts.Timestamp = cfg.GetLogTimestamp()

	if verbosity >= 0 {
		opts.Level = logging.LevelFromVerbosity(verbosity)
	} else {
		lvl, err := logging.ParseLevel(cfg.GetLogLevel())
		if err != nil {
			return err
		}
		opts.Level = lvl
	}

	_, err := logging.Setup(opts)
	return err
}

// getDefaultConfig returns the default configuration file path
func getDefaultConfig() string {
	if _, err := os.Stat("caddxd.toml"); err == nil {
		return "caddxd.toml"
	}

	systemConfig := "/etc/caddxd.toml"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig
	}

	return "caddxd.toml"
}
