package domain

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// Namespace and Subsystem prefix every exported metric name.
	Namespace = "knot"
	Subsystem = "dns"

	// ZoneLabel is the label carrying the zone of a series.
	ZoneLabel = "zone"

	// UnknownValue is exported when a field value cannot be decoded.
	UnknownValue int64 = -1
)

var metricNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var labelReplacer = strings.NewReplacer(" ", "_", "/", "_", "-", "_")

// NormalizeLabel derives a metric name from a zone-status field label:
// lowercase, with spaces, slashes and hyphens turned into underscores.
func NormalizeLabel(label string) string {
	return labelReplacer.Replace(strings.ToLower(label))
}

// IsValidMetricName reports whether name is a lowercase identifier token.
func IsValidMetricName(name string) bool {
	return metricNameRe.MatchString(name)
}

// ZoneMetric is one decoded observation for one zone.
type ZoneMetric struct {
	Zone     string
	Name     string
	Label    string
	Value    int64
	Duration bool
}

// Validate checks that the metric can be registered.
func (m ZoneMetric) Validate() error {
	if m.Zone == "" {
		return fmt.Errorf("%w: empty zone for %q", ErrInvalidMetric, m.Name)
	}
	if !IsValidMetricName(m.Name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidMetric, m.Name)
	}
	return nil
}

// FQName returns the fully qualified metric name, e.g. knot_dns_serial.
func (m ZoneMetric) FQName() string {
	return Namespace + "_" + Subsystem + "_" + m.Name
}
