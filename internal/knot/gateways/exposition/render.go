// Package exposition renders per-zone metric registries in the Prometheus
// text format and serves them over HTTP.
package exposition

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/haukened/knot-exporter/internal/knot/domain"
)

// NewGatherer builds a fresh prometheus registry holding one gauge vector per
// family of reg, labelled by zone. Nothing is shared between calls.
func NewGatherer(reg *domain.MetricRegistry) (*prometheus.Registry, error) {
	pr := prometheus.NewRegistry()
	if reg == nil {
		return pr, nil
	}

	for _, fam := range reg.Families() {
		gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: fam.Namespace,
			Subsystem: fam.Subsystem,
			Name:      fam.Name,
			Help:      fam.Help,
		}, []string{domain.ZoneLabel})

		if err := pr.Register(gv); err != nil {
			return nil, fmt.Errorf("registering %s: %w", fam.Name, err)
		}
		for _, zone := range fam.Zones() {
			gv.WithLabelValues(zone).Set(float64(fam.Values[zone]))
		}
	}
	return pr, nil
}

// Render writes reg to w in the Prometheus text exposition format. An empty
// registry writes nothing.
func Render(w io.Writer, reg *domain.MetricRegistry) error {
	pr, err := NewGatherer(reg)
	if err != nil {
		return err
	}
	mfs, err := pr.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
