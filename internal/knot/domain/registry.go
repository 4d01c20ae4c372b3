package domain

import (
	"fmt"
	"sort"
)

// MetricFamily groups the per-zone values of one metric name.
type MetricFamily struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	Values    map[string]int64
}

// Zones returns the zones of the family in sorted order.
func (f *MetricFamily) Zones() []string {
	zones := make([]string, 0, len(f.Values))
	for z := range f.Values {
		zones = append(zones, z)
	}
	sort.Strings(zones)
	return zones
}

// MetricRegistry accumulates the observations of a single scrape. It is not
// safe for concurrent use; every scrape owns its own registry.
type MetricRegistry struct {
	families map[string]*MetricFamily
	series   int
}

// NewMetricRegistry returns an empty registry.
func NewMetricRegistry() *MetricRegistry {
	return &MetricRegistry{families: make(map[string]*MetricFamily)}
}

// Register adds m as a new series. A (name, zone) pair can be registered
// once; a name keeps the help text it was first registered with.
func (r *MetricRegistry) Register(m ZoneMetric) error {
	if err := m.Validate(); err != nil {
		return err
	}

	fam, ok := r.families[m.Name]
	if !ok {
		fam = &MetricFamily{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      m.Name,
			Help:      m.Label,
			Values:    make(map[string]int64),
		}
		r.families[m.Name] = fam
	} else if fam.Help != m.Label {
		return fmt.Errorf("%w: %s has help %q, got %q", ErrInconsistentFamily, m.Name, fam.Help, m.Label)
	}

	if _, dup := fam.Values[m.Zone]; dup {
		return fmt.Errorf("%w: %s{zone=%q}", ErrDuplicateSeries, m.FQName(), m.Zone)
	}
	fam.Values[m.Zone] = m.Value
	r.series++
	return nil
}

// Family returns the family registered under name.
func (r *MetricRegistry) Family(name string) (*MetricFamily, bool) {
	f, ok := r.families[name]
	return f, ok
}

// Value returns the value registered for (name, zone).
func (r *MetricRegistry) Value(name, zone string) (int64, bool) {
	f, ok := r.families[name]
	if !ok {
		return 0, false
	}
	v, ok := f.Values[zone]
	return v, ok
}

// Families returns all families sorted by name.
func (r *MetricRegistry) Families() []*MetricFamily {
	out := make([]*MetricFamily, 0, len(r.families))
	for _, f := range r.families {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered series.
func (r *MetricRegistry) Len() int {
	return r.series
}
