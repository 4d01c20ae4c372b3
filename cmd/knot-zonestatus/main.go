// Command knot-zonestatus queries a Knot daemon once and prints per-zone
// status, either as Prometheus text exposition or as the raw field dump.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/haukened/knot-exporter/internal/knot/common/log"
	"github.com/haukened/knot-exporter/internal/knot/config"
	"github.com/haukened/knot-exporter/internal/knot/gateways/exposition"
	"github.com/haukened/knot-exporter/internal/knot/services/zonestatus"
)

const appName = "knot-zonestatus"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newCommand(stdout, stderr)
	if err := cmd.Run(ctx, args); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}
	return 0
}

func newCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      appName,
		Usage:     "Print per-zone status of a Knot DNS daemon",
		UsageText: appName + " [--socket PATH] [--raw] [--zone ZONE]",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Value:   config.DEFAULT_APP_CONFIG.Socket,
				Usage:   "path of the daemon control socket",
				Sources: cli.EnvVars(config.EnvPrefix + "SOCKET"),
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "print every reported field undecoded instead of metrics",
			},
			&cli.StringFlag{
				Name:    "zone",
				Aliases: []string{"z"},
				Usage:   "query a single zone",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: config.DEFAULT_APP_CONFIG.Timeout,
				Usage: "bound on the whole control exchange",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "error",
				Usage: "log verbosity on stderr: debug, info, warn or error",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, err := log.New("prod", cmd.String("log-level"))
			if err != nil {
				return err
			}
			return query(ctx, stdout, queryOptions{
				socket:  cmd.String("socket"),
				zone:    cmd.String("zone"),
				timeout: cmd.Duration("timeout"),
				raw:     cmd.Bool("raw"),
				logger:  logger,
			})
		},
	}
}

type queryOptions struct {
	socket  string
	zone    string
	timeout time.Duration
	raw     bool
	logger  log.Logger
}

func query(ctx context.Context, w io.Writer, opts queryOptions) error {
	collector, err := zonestatus.NewCollector(zonestatus.Options{
		Socket:  opts.socket,
		Zone:    opts.zone,
		Timeout: opts.timeout,
		Logger:  opts.logger,
	})
	if err != nil {
		return err
	}

	if opts.raw {
		dump, err := collector.Dump(ctx)
		if err != nil {
			return err
		}
		return writeDump(w, dump)
	}

	reg, err := collector.Collect(ctx)
	if err != nil {
		return err
	}
	return exposition.Render(w, reg)
}

// writeDump prints one line per zone, zones and labels sorted:
//
//	[example.com.] refresh: +23h57m29s | serial: 42
func writeDump(w io.Writer, dump map[string]map[string]string) error {
	zones := make([]string, 0, len(dump))
	for z := range dump {
		zones = append(zones, z)
	}
	sort.Strings(zones)

	for _, zone := range zones {
		fields := dump[zone]
		labels := make([]string, 0, len(fields))
		for l := range fields {
			labels = append(labels, l)
		}
		sort.Strings(labels)

		parts := make([]string, len(labels))
		for i, l := range labels {
			parts[i] = l + ": " + fields[l]
		}
		if _, err := fmt.Fprintf(w, "[%s] %s\n", zone, strings.Join(parts, " | ")); err != nil {
			return err
		}
	}
	return nil
}
