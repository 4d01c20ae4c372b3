package domain

import "strings"

// Field is one populated slot of a ControlRecord.
type Field struct {
	Index FieldIndex
	Value string
}

// ControlRecord is one decoded frame: its type plus the optional values of the
// fixed field table. A slot that was not transmitted is absent, which is
// distinct from a slot carrying the empty string.
type ControlRecord struct {
	Type   FrameType
	values [FieldCount]string
	set    [FieldCount]bool
}

// NewControlRecord builds a record of type t from fields. Later fields win
// when an index repeats; indexes outside the table are ignored.
func NewControlRecord(t FrameType, fields ...Field) ControlRecord {
	r := ControlRecord{Type: t}
	for _, f := range fields {
		if !f.Index.IsValid() {
			continue
		}
		r.values[f.Index] = f.Value
		r.set[f.Index] = true
	}
	return r
}

// Get returns the value of slot i and whether it was present.
func (r ControlRecord) Get(i FieldIndex) (string, bool) {
	if !i.IsValid() || !r.set[i] {
		return "", false
	}
	return r.values[i], true
}

// Has reports whether slot i is present.
func (r ControlRecord) Has(i FieldIndex) bool {
	return i.IsValid() && r.set[i]
}

// Fields returns the present slots in table order.
func (r ControlRecord) Fields() []Field {
	var out []Field
	for i := FieldIndex(0); i < FieldCount; i++ {
		if r.set[i] {
			out = append(out, Field{Index: i, Value: r.values[i]})
		}
	}
	return out
}

// Len returns the number of present slots.
func (r ControlRecord) Len() int {
	n := 0
	for _, ok := range r.set {
		if ok {
			n++
		}
	}
	return n
}

// String renders the record for debug logs, e.g. DATA{ZONE=example.com. TYPE=serial}.
func (r ControlRecord) String() string {
	var b strings.Builder
	b.WriteString(r.Type.String())
	b.WriteByte('{')
	for n, f := range r.Fields() {
		if n > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.Index.String())
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	b.WriteByte('}')
	return b.String()
}
