package rpc

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"meshcop/internal/dataset"
	"meshcop/internal/timestamp"
)

// ErrTicksOverflow is returned for a ticks field that does not fit in 16 bits.
var ErrTicksOverflow = errors.New("timestamp ticks overflow 16 bits")

// Field numbers of the timestamp record. Peers rely on these.
const (
	recordSecondsField       protowire.Number = 1
	recordTicksField         protowire.Number = 2
	recordAuthoritativeField protowire.Number = 3
)

// AnnounceStatus reports what the receiver did with an announced dataset.
type AnnounceStatus uint32

const (
	AnnounceAccepted AnnounceStatus = iota
	AnnounceDuplicate
	AnnounceConflict
	AnnounceStale
)

// String returns the string representation of AnnounceStatus.
func (s AnnounceStatus) String() string {
	switch s {
	case AnnounceAccepted:
		return "ACCEPTED"
	case AnnounceDuplicate:
		return "DUPLICATE"
	case AnnounceConflict:
		return "CONFLICT"
	case AnnounceStale:
		return "STALE"
	default:
		return "UNKNOWN"
	}
}

// StatusFromOutcome maps a dataset.Outcome to its wire status.
func StatusFromOutcome(o dataset.Outcome) AnnounceStatus {
	switch o {
	case dataset.Accepted:
		return AnnounceAccepted
	case dataset.Duplicate:
		return AnnounceDuplicate
	case dataset.Conflict:
		return AnnounceConflict
	default:
		return AnnounceStale
	}
}

// DatasetMessage is the wire form of a dataset.
type DatasetMessage struct {
	Kind      dataset.Kind
	Timestamp timestamp.Record
	Payload   []byte
}

// FromDataset converts a dataset for the wire. It returns nil for nil.
func FromDataset(kind dataset.Kind, d *dataset.Dataset) *DatasetMessage {
	if d == nil {
		return nil
	}
	msg := &DatasetMessage{
		Kind:    kind,
		Payload: append([]byte(nil), d.Payload...),
	}
	d.Timestamp.ConvertTo(&msg.Timestamp)
	return msg
}

// Dataset converts the message back. It returns nil for a nil message.
func (m *DatasetMessage) Dataset() *dataset.Dataset {
	if m == nil {
		return nil
	}
	d := &dataset.Dataset{Payload: append([]byte(nil), m.Payload...)}
	d.Timestamp.SetFromTimestamp(m.Timestamp)
	return d
}

func (m *DatasetMessage) appendWire(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, appendRecord(nil, m.Timestamp))
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Payload)
	return b
}

// MarshalWire encodes the message.
func (m *DatasetMessage) MarshalWire() ([]byte, error) {
	return m.appendWire(nil), nil
}

// UnmarshalWire decodes the message.
func (m *DatasetMessage) UnmarshalWire(data []byte) error {
	*m = DatasetMessage{}
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var v uint64
			n := consumeVarint(typ, b, &v)
			m.Kind = dataset.Kind(v)
			return n, nil
		case 2:
			var raw []byte
			n := consumeBytes(typ, b, &raw)
			if n <= 0 {
				return n, nil
			}
			r, err := consumeRecord(raw)
			if err != nil {
				return 0, fmt.Errorf("timestamp: %w", err)
			}
			m.Timestamp = r
			return n, nil
		case 3:
			return consumeBytes(typ, b, &m.Payload), nil
		}
		return 0, nil
	})
}

// AnnounceRequest offers the sender's dataset to a peer.
type AnnounceRequest struct {
	FromID  string
	Dataset *DatasetMessage
}

// MarshalWire encodes the message.
func (m *AnnounceRequest) MarshalWire() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.FromID)
	if m.Dataset != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Dataset.appendWire(nil))
	}
	return b, nil
}

// UnmarshalWire decodes the message.
func (m *AnnounceRequest) UnmarshalWire(data []byte) error {
	*m = AnnounceRequest{}
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.FromID), nil
		case 2:
			return consumeDataset(typ, b, &m.Dataset)
		}
		return 0, nil
	})
}

// AnnounceResponse tells the sender what happened and carries the dataset
// the receiver holds afterwards.
type AnnounceResponse struct {
	Status      AnnounceStatus
	ResponderID string
	Current     *DatasetMessage
}

// MarshalWire encodes the message.
func (m *AnnounceResponse) MarshalWire() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Status))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, m.ResponderID)
	if m.Current != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Current.appendWire(nil))
	}
	return b, nil
}

// UnmarshalWire decodes the message.
func (m *AnnounceResponse) UnmarshalWire(data []byte) error {
	*m = AnnounceResponse{}
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var v uint64
			n := consumeVarint(typ, b, &v)
			m.Status = AnnounceStatus(v)
			return n, nil
		case 2:
			return consumeString(typ, b, &m.ResponderID), nil
		case 3:
			return consumeDataset(typ, b, &m.Current)
		}
		return 0, nil
	})
}

// GetRequest asks a peer for its dataset of the given kind.
type GetRequest struct {
	Kind dataset.Kind
}

// MarshalWire encodes the message.
func (m *GetRequest) MarshalWire() ([]byte, error) {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(m.Kind)), nil
}

// UnmarshalWire decodes the message.
func (m *GetRequest) UnmarshalWire(data []byte) error {
	*m = GetRequest{}
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		var v uint64
		n := consumeVarint(typ, b, &v)
		m.Kind = dataset.Kind(v)
		return n, nil
	})
}

// GetResponse carries the peer's dataset; Dataset is nil when the peer
// holds none.
type GetResponse struct {
	NodeID  string
	Dataset *DatasetMessage
}

// MarshalWire encodes the message.
func (m *GetResponse) MarshalWire() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.NodeID)
	if m.Dataset != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Dataset.appendWire(nil))
	}
	return b, nil
}

// UnmarshalWire decodes the message.
func (m *GetResponse) UnmarshalWire(data []byte) error {
	*m = GetResponse{}
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.NodeID), nil
		case 2:
			return consumeDataset(typ, b, &m.Dataset)
		}
		return 0, nil
	})
}

// appendRecord encodes a timestamp record as a protobuf message body.
func appendRecord(b []byte, r timestamp.Record) []byte {
	b = protowire.AppendTag(b, recordSecondsField, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Seconds)
	b = protowire.AppendTag(b, recordTicksField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Ticks))
	b = protowire.AppendTag(b, recordAuthoritativeField, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(r.Authoritative))
	return b
}

// consumeRecord decodes a timestamp record. Values are taken verbatim, but a
// ticks value wider than the field is rejected rather than truncated.
func consumeRecord(data []byte) (timestamp.Record, error) {
	var r timestamp.Record
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var v uint64
		var n int
		switch num {
		case recordSecondsField:
			n = consumeVarint(typ, b, &v)
			r.Seconds = v
		case recordTicksField:
			n = consumeVarint(typ, b, &v)
			if n > 0 && v > math.MaxUint16 {
				return 0, fmt.Errorf("%w: %d", ErrTicksOverflow, v)
			}
			r.Ticks = uint16(v)
		case recordAuthoritativeField:
			n = consumeVarint(typ, b, &v)
			r.Authoritative = protowire.DecodeBool(v)
		}
		return n, nil
	})
	return r, err
}

// consumeFields walks every field in data. field returns the number of bytes
// it consumed, or 0 to have the field skipped.
func consumeFields(data []byte, field func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		m, err := field(num, typ, data)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, data)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		data = data[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*dst = v
	}
	return n
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n > 0 {
		*dst = append([]byte(nil), v...)
	}
	return n
}

func consumeString(typ protowire.Type, b []byte, dst *string) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeString(b)
	if n > 0 {
		*dst = v
	}
	return n
}

func consumeDataset(typ protowire.Type, b []byte, dst **DatasetMessage) (int, error) {
	var raw []byte
	n := consumeBytes(typ, b, &raw)
	if n <= 0 {
		return n, nil
	}
	msg := &DatasetMessage{}
	if err := msg.UnmarshalWire(raw); err != nil {
		return 0, fmt.Errorf("dataset: %w", err)
	}
	*dst = msg
	return n, nil
}
