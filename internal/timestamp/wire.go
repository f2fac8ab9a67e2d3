package timestamp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Size is the length of the packed wire form: 48-bit seconds followed by a
// 16-bit word holding ticks in the upper 15 bits and the authoritative flag
// in bit 0. All fields are big-endian.
const Size = 8

const (
	ticksOffset       = 1
	ticksMask         = MaxTicks << ticksOffset
	authoritativeMask = uint16(1)
	maxSeconds        = uint64(1)<<48 - 1
)

var (
	// ErrInvalidLength is returned when a packed timestamp is not Size bytes.
	ErrInvalidLength = errors.New("timestamp: invalid packed length")
	// ErrInvalidFormat is returned by Parse for malformed input.
	ErrInvalidFormat = errors.New("timestamp: invalid format")
)

// AppendBinary appends the packed form of ts to b. Seconds beyond 48 bits and
// ticks beyond MaxTicks are truncated to fit their fields.
func (ts Timestamp) AppendBinary(b []byte) ([]byte, error) {
	var buf [Size]byte
	secs := ts.seconds & maxSeconds
	binary.BigEndian.PutUint16(buf[0:2], uint16(secs>>32))
	binary.BigEndian.PutUint32(buf[2:6], uint32(secs))

	word := (ts.ticks << ticksOffset) & ticksMask
	if ts.authoritative {
		word |= authoritativeMask
	}
	binary.BigEndian.PutUint16(buf[6:8], word)

	return append(b, buf[:]...), nil
}

// MarshalBinary returns the packed form of ts.
func (ts Timestamp) MarshalBinary() ([]byte, error) {
	return ts.AppendBinary(make([]byte, 0, Size))
}

// UnmarshalBinary decodes a packed timestamp.
func (ts *Timestamp) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidLength, len(data), Size)
	}

	hi := uint64(binary.BigEndian.Uint16(data[0:2]))
	lo := uint64(binary.BigEndian.Uint32(data[2:6]))
	word := binary.BigEndian.Uint16(data[6:8])

	ts.seconds = hi<<32 | lo
	ts.ticks = (word & ticksMask) >> ticksOffset
	ts.authoritative = word&authoritativeMask != 0
	return nil
}

// Parse reads the format produced by String: "seconds.ticks" with an
// optional trailing "a" for authoritative timestamps.
func Parse(s string) (Timestamp, error) {
	var ts Timestamp

	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "a") {
		ts.authoritative = true
		s = strings.TrimSuffix(s, "a")
	}

	secPart, tickPart, hasTicks := strings.Cut(s, ".")
	seconds, err := strconv.ParseUint(secPart, 10, 64)
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: seconds %q: %v", ErrInvalidFormat, secPart, err)
	}
	ts.seconds = seconds

	if hasTicks {
		ticks, err := strconv.ParseUint(tickPart, 10, 16)
		if err != nil || ticks > uint64(MaxTicks) {
			return Timestamp{}, fmt.Errorf("%w: ticks %q", ErrInvalidFormat, tickPart)
		}
		ts.ticks = uint16(ticks)
	}

	return ts, nil
}
