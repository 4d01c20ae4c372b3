package zonestatus

import (
	"fmt"

	"github.com/haukened/knot-exporter/internal/knot/common/log"
	"github.com/haukened/knot-exporter/internal/knot/domain"
)

// Field describes one tracked zone-status field.
type Field struct {
	Label   string
	Name    string
	Decoder Decoder
}

// Fields is the allow-list of zone-status fields that become metrics. Labels
// the daemon reports that are missing here are ignored, so new daemon fields
// never change the exported series set on their own.
var Fields = []Field{
	{Label: "serial", Name: "serial", Decoder: Counter},
	{Label: "transaction", Name: "transaction", Decoder: Boolean},
	{Label: "freeze", Name: "freeze", Decoder: Boolean},
	{Label: "XFR freeze", Name: "xfr_freeze", Decoder: Boolean},
	{Label: "load", Name: "load", Decoder: Duration},
	{Label: "refresh", Name: "refresh", Decoder: Duration},
	{Label: "update", Name: "update", Decoder: Duration},
	{Label: "expiration", Name: "expiration", Decoder: Duration},
	{Label: "journal flush", Name: "journal_flush", Decoder: Duration},
	{Label: "flush", Name: "flush", Decoder: Duration},
	{Label: "backup/restore", Name: "backup_restore", Decoder: Duration},
	{Label: "notify", Name: "notify", Decoder: Duration},
	{Label: "DNSSEC re-sign", Name: "dnssec_re_sign", Decoder: Duration},
	{Label: "NSEC3 resalt", Name: "nsec3_resalt", Decoder: Duration},
	{Label: "parent DS query", Name: "parent_ds_query", Decoder: Duration},
	{Label: "DS check", Name: "ds_check", Decoder: Duration},
	{Label: "DS push", Name: "ds_push", Decoder: Duration},
	{Label: "update freeze", Name: "update_freeze", Decoder: Duration},
	{Label: "update thaw", Name: "update_thaw", Decoder: Duration},
}

var fieldsByLabel = indexFields(Fields)

func indexFields(fields []Field) map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Label] = f
	}
	return m
}

// Lookup returns the tracked field for a zone-status label.
func Lookup(label string) (Field, bool) {
	f, ok := fieldsByLabel[label]
	return f, ok
}

// entry is the ZONE/TYPE/DATA triple every zone-status record carries.
type entry struct {
	zone  string
	label string
	value string
}

// Router turns the record stream of one zone-status reply into entries. It
// keeps the zone of the last DATA record so EXTRA records that omit it can
// be attributed. A Router belongs to a single exchange.
type Router struct {
	zone string
}

// Route validates rec and extracts its entry. Records carrying the ERROR
// slot yield domain.ErrDaemon; missing mandatory fields yield
// domain.ErrProtocol.
func (r *Router) Route(rec domain.ControlRecord) (entry, error) {
	if msg, ok := rec.Get(domain.FieldError); ok {
		zone, _ := rec.Get(domain.FieldZone)
		return entry{}, fmt.Errorf("%w: zone %q: %s", domain.ErrDaemon, zone, msg)
	}

	zone, ok := rec.Get(domain.FieldZone)
	switch {
	case ok && zone != "":
		if rec.Type == domain.FrameData {
			r.zone = zone
		}
	case rec.Type == domain.FrameExtra && r.zone != "":
		zone = r.zone
	default:
		return entry{}, fmt.Errorf("%w: %s record without ZONE", domain.ErrProtocol, rec.Type)
	}

	label, ok := rec.Get(domain.FieldType)
	if !ok {
		return entry{}, fmt.Errorf("%w: %s record for %q without TYPE", domain.ErrProtocol, rec.Type, zone)
	}
	value, ok := rec.Get(domain.FieldData)
	if !ok {
		return entry{}, fmt.Errorf("%w: %s record for %q/%q without DATA", domain.ErrProtocol, rec.Type, zone, label)
	}
	return entry{zone: zone, label: label, value: value}, nil
}

// Builder decodes routed entries into a MetricRegistry.
type Builder struct {
	router   Router
	registry *domain.MetricRegistry
	logger   log.Logger
	skipped  int
}

// NewBuilder returns a builder filling a fresh registry.
func NewBuilder(logger log.Logger) *Builder {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Builder{
		registry: domain.NewMetricRegistry(),
		logger:   logger,
	}
}

// Add consumes one record of the reply.
func (b *Builder) Add(rec domain.ControlRecord) error {
	e, err := b.router.Route(rec)
	if err != nil {
		return err
	}

	field, ok := Lookup(e.label)
	if !ok {
		b.skipped++
		b.logger.Debug(map[string]any{
			"zone":  e.zone,
			"label": e.label,
		}, "Skipping untracked zone-status field")
		return nil
	}

	value := field.Decoder.Decode(e.value)
	if value == domain.UnknownValue {
		b.logger.Debug(map[string]any{
			"zone":    e.zone,
			"label":   e.label,
			"value":   e.value,
			"decoder": field.Decoder.String(),
		}, "Zone-status value not decodable")
	}

	return b.registry.Register(domain.ZoneMetric{
		Zone:     e.zone,
		Name:     field.Name,
		Label:    field.Label,
		Value:    value,
		Duration: field.Decoder == Duration,
	})
}

// Registry returns the accumulated registry.
func (b *Builder) Registry() *domain.MetricRegistry {
	return b.registry
}

// Skipped returns how many untracked fields were ignored.
func (b *Builder) Skipped() int {
	return b.skipped
}
