package timestamp

import (
	"cmp"
	"fmt"

	"meshcop/internal/random"
)

// MaxTicks is the largest valid value of the sub-second tick counter.
const MaxTicks uint16 = 0x7fff

// Record is the plain external form of a Timestamp used at the wire and
// storage boundary.
type Record struct {
	Seconds       uint64
	Ticks         uint16
	Authoritative bool
}

// Timestamp versions a dataset. The zero value is 0.0, non-authoritative.
// Timestamps are values: copy them, never share pointers between holders.
type Timestamp struct {
	seconds       uint64
	ticks         uint16
	authoritative bool
}

// New creates a timestamp from its three fields.
func New(seconds uint64, ticks uint16, authoritative bool) Timestamp {
	return Timestamp{seconds: seconds, ticks: ticks, authoritative: authoritative}
}

// FromRecord creates a timestamp from an external record.
func FromRecord(r Record) Timestamp {
	var ts Timestamp
	ts.SetFromTimestamp(r)
	return ts
}

// Seconds returns the seconds field.
func (ts Timestamp) Seconds() uint64 { return ts.seconds }

// SetSeconds sets the seconds field.
func (ts *Timestamp) SetSeconds(seconds uint64) { ts.seconds = seconds }

// Ticks returns the tick counter.
func (ts Timestamp) Ticks() uint16 { return ts.ticks }

// SetTicks sets the tick counter. Callers keep it within [0, MaxTicks].
func (ts *Timestamp) SetTicks(ticks uint16) { ts.ticks = ticks }

// Authoritative reports whether the timestamp was set by an authoritative source.
func (ts Timestamp) Authoritative() bool { return ts.authoritative }

// SetAuthoritative sets the authoritative flag.
func (ts *Timestamp) SetAuthoritative(authoritative bool) { ts.authoritative = authoritative }

// ConvertTo copies the timestamp into r.
func (ts Timestamp) ConvertTo(r *Record) {
	r.Seconds = ts.seconds
	r.Ticks = ts.ticks
	r.Authoritative = ts.authoritative
}

// Record returns the external form of the timestamp.
func (ts Timestamp) Record() Record {
	var r Record
	ts.ConvertTo(&r)
	return r
}

// SetFromTimestamp copies r into the timestamp. r.Ticks is taken as is;
// keeping it within MaxTicks is the sender's obligation.
func (ts *Timestamp) SetFromTimestamp(r Record) {
	ts.SetSeconds(r.Seconds)
	ts.SetTicks(r.Ticks)
	ts.SetAuthoritative(r.Authoritative)
}

// IsOrphan reports whether the timestamp marks an orphan announce
// (zero seconds and ticks, authoritative).
func (ts Timestamp) IsOrphan() bool {
	return ts.seconds == 0 && ts.ticks == 0 && ts.authoritative
}

// Compare returns -1, 0 or +1 as a sorts before, equal to or after b.
//
// Fields are compared in the order seconds, ticks, authoritative, and the
// first difference decides. A non-authoritative timestamp sorts before an
// otherwise identical authoritative one.
func Compare(a, b Timestamp) int {
	return cmp.Or(
		cmp.Compare(a.seconds, b.seconds),
		cmp.Compare(a.ticks, b.ticks),
		compareBool(a.authoritative, b.authoritative),
	)
}

// CompareOptional compares two timestamps where nil means absent. Absent
// sorts before any present timestamp and two absent timestamps are equal.
func CompareOptional(a, b *Timestamp) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return Compare(*a, *b)
}

// Newest returns the greatest of the given timestamps under CompareOptional,
// or nil if all are absent.
func Newest(ts ...*Timestamp) *Timestamp {
	var newest *Timestamp
	for _, t := range ts {
		if CompareOptional(t, newest) > 0 {
			newest = t
		}
	}
	return newest
}

// After reports whether ts sorts strictly after other.
func (ts Timestamp) After(other Timestamp) bool {
	return Compare(ts, other) > 0
}

// AdvanceRandomTicks moves the timestamp forward by a random, nonzero number
// of ticks in [1, MaxTicks+1], carrying into seconds when the counter wraps.
// src is drawn from exactly once.
func (ts *Timestamp) AdvanceRandomTicks(src random.Source) {
	ts.advanceTicks(MaxTicks, src)
}

func (ts *Timestamp) advanceTicks(maxTicks uint16, src random.Source) {
	ticks := uint32(ts.ticks) + src.Uint32InRange(1, uint32(maxTicks)+1)

	if ticks > uint32(maxTicks) {
		ticks -= uint32(maxTicks) + 1
		ts.seconds++
	}

	ts.ticks = uint16(ticks)
}

// String formats the timestamp as seconds.ticks, with an "a" suffix when
// authoritative.
func (ts Timestamp) String() string {
	s := fmt.Sprintf("%d.%d", ts.seconds, ts.ticks)
	if ts.authoritative {
		s += "a"
	}
	return s
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}
