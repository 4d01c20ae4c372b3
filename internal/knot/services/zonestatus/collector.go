// Package zonestatus queries per-zone state from the daemon and turns the
// zone-status reply into numeric per-zone metrics.
package zonestatus

import (
	"context"
	"fmt"
	"time"

	"github.com/haukened/knot-exporter/internal/knot/common/clock"
	"github.com/haukened/knot-exporter/internal/knot/common/log"
	"github.com/haukened/knot-exporter/internal/knot/common/utils"
	"github.com/haukened/knot-exporter/internal/knot/domain"
	"github.com/haukened/knot-exporter/internal/knot/gateways/control"
)

// Command is the control command this package issues.
const Command = "zone-status"

// ExchangeFunc performs one complete control exchange. control.Exchange
// satisfies it.
type ExchangeFunc func(ctx context.Context, opts control.Options, path string, req control.Request, fn control.RecordFunc) error

// Collector runs zone-status exchanges. It holds configuration only; every
// call opens its own session, so one Collector may serve concurrent scrapes.
type Collector struct {
	socket   string
	zone     string
	session  control.Options
	exchange ExchangeFunc
	clock    clock.Clock
	logger   log.Logger
}

// Options configures a Collector.
type Options struct {
	Socket  string
	Zone    string
	Timeout time.Duration
	// options to inject for testing purposes
	Dial     control.DialFunc
	Exchange ExchangeFunc
	Clock    clock.Clock
	Logger   log.Logger
}

// NewCollector returns a Collector for the control socket in opts. A
// non-empty Zone restricts every query to that zone, in canonical form.
func NewCollector(opts Options) (*Collector, error) {
	if opts.Socket == "" {
		return nil, fmt.Errorf("control socket path is required")
	}
	if opts.Exchange == nil {
		opts.Exchange = control.Exchange
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Collector{
		socket: opts.Socket,
		zone:   utils.CanonicalZoneName(opts.Zone),
		session: control.Options{
			Timeout: opts.Timeout,
			Dial:    opts.Dial,
			Logger:  opts.Logger,
		},
		exchange: opts.Exchange,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}, nil
}

// Socket returns the control socket path.
func (c *Collector) Socket() string {
	return c.socket
}

func (c *Collector) request() control.Request {
	return control.Request{Command: Command, Zone: c.zone}
}

// Collect performs one zone-status exchange and returns the decoded
// registry. On any exchange or protocol error no registry is returned.
func (c *Collector) Collect(ctx context.Context) (*domain.MetricRegistry, error) {
	start := c.clock.Now()
	b := NewBuilder(c.logger)

	if err := c.exchange(ctx, c.session, c.socket, c.request(), b.Add); err != nil {
		c.logger.Error(map[string]any{
			"socket": c.socket,
			"error":  err,
		}, "Zone-status exchange failed")
		return nil, fmt.Errorf("zone-status: %w", err)
	}

	reg := b.Registry()
	c.logger.Debug(map[string]any{
		"socket":   c.socket,
		"families": len(reg.Families()),
		"series":   reg.Len(),
		"skipped":  b.Skipped(),
		"duration": clock.Since(c.clock, start).String(),
	}, "Zone-status collected")
	return reg, nil
}

// Dump performs one zone-status exchange and returns every field the daemon
// reported, undecoded, as zone -> label -> value.
func (c *Collector) Dump(ctx context.Context) (map[string]map[string]string, error) {
	var router Router
	out := make(map[string]map[string]string)

	err := c.exchange(ctx, c.session, c.socket, c.request(), func(rec domain.ControlRecord) error {
		e, err := router.Route(rec)
		if err != nil {
			return err
		}
		fields, ok := out[e.zone]
		if !ok {
			fields = make(map[string]string)
			out[e.zone] = fields
		}
		fields[e.label] = e.value
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("zone-status: %w", err)
	}
	return out, nil
}
