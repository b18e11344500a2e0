package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/dbehnke/caddxd/internal/client"
	"github.com/dbehnke/caddxd/internal/config"
	"github.com/dbehnke/caddxd/internal/database"
	"github.com/dbehnke/caddxd/internal/logging"
	"github.com/dbehnke/caddxd/internal/lookup"
	"github.com/dbehnke/caddxd/internal/protocol"
	"github.com/rs/zerolog/log"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: caddxctl [options] <command> [args]

Commands:
  arm-away <partition> [pin]
  arm-stay <partition> [pin]
  disarm <partition> [pin]
  secondary <function> <partition>
  bypass <zone> [on|off]
  zone <zone>
  partition <partition>
  info
  labels import <file>

Zones and partitions are numbered from 1.

Options:
`)
	flag.PrintDefaults()
}

func main() {
	var (
		configFile = flag.String("c", "caddxd.toml", "Configuration file path")
		host       = flag.String("H", "", "Gateway host:port (overrides config)")
		verbosity  = flag.Int("v", 1, "Verbosity 0-3")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg := config.NewConfig(*configFile)
	if err := cfg.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "caddxctl: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.SetMonitorHost(*host)
	}

	opts := logging.DefaultOptions("caddxctl")
	opts.Level = logging.LevelFromVerbosity(*verbosity)
	opts.Timestamp = false
	if _, err := logging.Setup(opts); err != nil {
		fmt.Fprintf(os.Stderr, "caddxctl: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, flag.Args()); err != nil {
		if client.IsTimeout(err) {
			fmt.Fprintf(os.Stderr, "caddxctl: no reply from gateway at %s within %v: %v\n",
				cfg.GetMonitorHost(), cfg.GetRequestTimeout(), err)
		} else {
			fmt.Fprintf(os.Stderr, "caddxctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(cfg *config.Config, args []string) error {
	if args[0] == "labels" {
		return importLabels(cfg, args[1:])
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetRequestTimeout())
	defer cancel()

	conn, err := client.Dial(ctx, cfg.GetMonitorHost(), cfg.GetRequestTimeout())
	if err != nil {
		return err
	}
	defer conn.Close()

	labels, closeLabels, err := lookup.Open(cfg)
	if err != nil {
		log.Debug().Err(err).Msg("labels unavailable")
	}
	defer closeLabels()

	zoneName := func(n int) string {
		if labels != nil {
			return labels.ZoneName(n)
		}
		return lookup.ZoneFallback(n)
	}
	partitionName := func(n int) string {
		if labels != nil {
			return labels.PartitionName(n)
		}
		return lookup.PartitionFallback(n)
	}

	switch cmd := args[0]; cmd {
	case "arm-away", "arm-stay", "disarm":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: %s <partition> [pin]", cmd)
		}
		partition, err := number(args[1])
		if err != nil {
			return err
		}
		pin := ""
		if len(args) == 3 {
			pin = args[2]
		}
		function := map[string]byte{
			"arm-away": protocol.CADDX_PRIMARY_ARM_AWAY,
			"arm-stay": protocol.CADDX_PRIMARY_ARM_STAY,
			"disarm":   protocol.CADDX_PRIMARY_DISARM,
		}[cmd]
		if err := client.Keypad(ctx, conn, function, partition, pin); err != nil {
			return err
		}
		fmt.Printf("%s: %s ok\n", partitionName(partition), cmd)

	case "secondary":
		if len(args) != 3 {
			return fmt.Errorf("usage: secondary <function> <partition>")
		}
		function, err := client.ParseSecondaryFunction(args[1])
		if err != nil {
			return err
		}
		partition, err := number(args[2])
		if err != nil {
			return err
		}
		if err := client.Secondary(ctx, conn, function, partition); err != nil {
			return err
		}
		fmt.Printf("%s: %s ok\n", partitionName(partition), args[1])

	case "bypass":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: bypass <zone> [on|off]")
		}
		zone, err := number(args[1])
		if err != nil {
			return err
		}
		var want *bool
		if len(args) == 3 {
			v := args[2] == "on"
			if !v && args[2] != "off" {
				return fmt.Errorf("bypass state must be on or off, got %q", args[2])
			}
			want = &v
		}
		changed, err := client.SetBypass(ctx, conn, zone, want)
		if err != nil {
			return err
		}
		if changed {
			fmt.Printf("%s: bypass toggled\n", zoneName(zone))
		} else {
			fmt.Printf("%s: bypass already %s\n", zoneName(zone), args[2])
		}

	case "zone":
		if len(args) != 2 {
			return fmt.Errorf("usage: zone <zone>")
		}
		zone, err := number(args[1])
		if err != nil {
			return err
		}
		status, err := client.ZoneStatus(ctx, conn, zone)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", zoneName(zone), status)

	case "partition":
		if len(args) != 2 {
			return fmt.Errorf("usage: partition <partition>")
		}
		partition, err := number(args[1])
		if err != nil {
			return err
		}
		status, err := client.PartitionStatus(ctx, conn, partition)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", partitionName(partition), status)

	case "info":
		report, err := client.InterfaceConfig(ctx, conn)
		if err != nil {
			return err
		}
		fmt.Println(report)
		for _, c := range client.Capabilities(report) {
			kind := "transition"
			if c.Command {
				kind = "command"
			}
			state := "disabled"
			if c.Enabled {
				state = "enabled"
			}
			fmt.Printf("  %-10s 0x%02X %-26s %s\n", kind, c.Code, c.Name, state)
		}

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func importLabels(cfg *config.Config, args []string) error {
	if len(args) != 2 || args[0] != "import" {
		return fmt.Errorf("usage: labels import <file>")
	}

	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	labels, err := lookup.ParseLabels(f)
	if err != nil {
		return err
	}

	zl := log.Logger.With().Str("component", "db").Logger()
	db, err := database.NewDB(database.Config{Path: cfg.GetDatabasePath()}, &zl)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := database.NewLabelRepository(db.GetDB()).UpsertBatch(labels.ZoneLabels(), labels.PartitionLabels())
	if err != nil {
		return err
	}
	fmt.Printf("imported %d labels into %s\n", n, cfg.GetDatabasePath())
	return nil
}

func number(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return n, nil
}
