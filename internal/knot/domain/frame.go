package domain

import "fmt"

// FrameType is the kind of a control protocol frame.
type FrameType uint8

const (
	// FrameEnd terminates the whole control session.
	FrameEnd FrameType = 0
	// FrameData carries one complete logical record.
	FrameData FrameType = 1
	// FrameExtra continues the most recent FrameData record.
	FrameExtra FrameType = 2
	// FrameBlock ends a request or a response.
	FrameBlock FrameType = 3
)

// IsValid reports whether t is one of the four protocol frame types.
func (t FrameType) IsValid() bool {
	return t <= FrameBlock
}

// HasPayload reports whether frames of this type may carry fields.
func (t FrameType) HasPayload() bool {
	return t == FrameData || t == FrameExtra
}

func (t FrameType) String() string {
	switch t {
	case FrameEnd:
		return "END"
	case FrameData:
		return "DATA"
	case FrameExtra:
		return "EXTRA"
	case FrameBlock:
		return "BLOCK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// FieldIndex addresses one slot of the fixed field table carried by DATA and
// EXTRA frames. The numeric values are part of the wire format.
type FieldIndex uint8

const (
	FieldCmd FieldIndex = iota
	FieldFlags
	FieldError
	FieldSection
	FieldItem
	FieldID
	FieldZone
	FieldOwner
	FieldTTL
	FieldType
	FieldData
	FieldFilter

	// FieldCount is the size of the field table.
	FieldCount
)

var fieldNames = [FieldCount]string{
	FieldCmd:     "CMD",
	FieldFlags:   "FLAGS",
	FieldError:   "ERROR",
	FieldSection: "SECTION",
	FieldItem:    "ITEM",
	FieldID:      "ID",
	FieldZone:    "ZONE",
	FieldOwner:   "OWNER",
	FieldTTL:     "TTL",
	FieldType:    "TYPE",
	FieldData:    "DATA",
	FieldFilter:  "FILTER",
}

// IsValid reports whether i addresses a slot of the field table.
func (i FieldIndex) IsValid() bool {
	return i < FieldCount
}

func (i FieldIndex) String() string {
	if !i.IsValid() {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(i))
	}
	return fieldNames[i]
}
