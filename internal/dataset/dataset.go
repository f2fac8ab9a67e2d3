package dataset

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"meshcop/internal/timestamp"
)

// Kind selects one of the two datasets a node holds.
type Kind uint8

const (
	// Active is the dataset currently in use.
	Active Kind = iota
	// Pending is a dataset scheduled to replace the active one.
	Pending
)

// Kinds lists every dataset kind.
var Kinds = []Kind{Active, Pending}

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case Active:
		return "ACTIVE"
	case Pending:
		return "PENDING"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// ParseKind converts a name produced by String back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "active", "ACTIVE":
		return Active, nil
	case "pending", "PENDING":
		return Pending, nil
	}
	return 0, fmt.Errorf("unknown dataset kind %q", s)
}

// Dataset is a versioned configuration payload.
type Dataset struct {
	Timestamp timestamp.Timestamp
	Payload   []byte
}

// Copy returns a deep copy of the dataset.
func (d *Dataset) Copy() *Dataset {
	if d == nil {
		return nil
	}
	return &Dataset{
		Timestamp: d.Timestamp,
		Payload:   append([]byte(nil), d.Payload...),
	}
}

// Version returns a pointer to a copy of the timestamp, or nil for a nil
// dataset, for use with timestamp.CompareOptional.
func (d *Dataset) Version() *timestamp.Timestamp {
	if d == nil {
		return nil
	}
	ts := d.Timestamp
	return &ts
}

// SamePayload reports whether both datasets carry identical payloads.
func (d *Dataset) SamePayload(other *Dataset) bool {
	return bytes.Equal(d.Payload, other.Payload)
}

// Stored record layout: seconds (8 bytes), ticks (2 bytes), flags (1 byte),
// payload. Unlike the packed TLV form every field keeps its full width, so
// a stored timestamp compares exactly like the one that was accepted.
const (
	recordHeaderSize = 8 + 2 + 1

	flagAuthoritative = 1 << 0
)

// encode serializes the dataset for the store.
func encode(d *Dataset) []byte {
	var r timestamp.Record
	d.Timestamp.ConvertTo(&r)

	buf := make([]byte, recordHeaderSize, recordHeaderSize+len(d.Payload))
	binary.BigEndian.PutUint64(buf[0:8], r.Seconds)
	binary.BigEndian.PutUint16(buf[8:10], r.Ticks)
	if r.Authoritative {
		buf[10] |= flagAuthoritative
	}
	return append(buf, d.Payload...)
}

// decode is the inverse of encode.
func decode(data []byte) (*Dataset, error) {
	if len(data) < recordHeaderSize {
		return nil, fmt.Errorf("dataset record too short: %d bytes", len(data))
	}
	flags := data[10]
	if flags&^flagAuthoritative != 0 {
		return nil, fmt.Errorf("dataset record has unknown flags %#02x", flags)
	}

	d := &Dataset{}
	d.Timestamp.SetFromTimestamp(timestamp.Record{
		Seconds:       binary.BigEndian.Uint64(data[0:8]),
		Ticks:         binary.BigEndian.Uint16(data[8:10]),
		Authoritative: flags&flagAuthoritative != 0,
	})
	d.Payload = append([]byte(nil), data[recordHeaderSize:]...)
	return d, nil
}
