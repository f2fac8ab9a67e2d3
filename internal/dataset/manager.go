package dataset

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"meshcop/internal/random"
	"meshcop/internal/timestamp"
)

// ErrNotNewer is returned when a local update does not sort after the
// dataset already held.
var ErrNotNewer = errors.New("dataset timestamp is not newer than the current one")

// Outcome is the result of offering a received dataset to the Manager.
type Outcome int

const (
	// Accepted means the incoming dataset was newer and replaced the local one.
	Accepted Outcome = iota
	// Duplicate means the incoming dataset equals the local one.
	Duplicate
	// Conflict means both carry the same timestamp but different payloads.
	Conflict
	// Stale means the local dataset is newer than the incoming one.
	Stale
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "ACCEPTED"
	case Duplicate:
		return "DUPLICATE"
	case Conflict:
		return "CONFLICT"
	case Stale:
		return "STALE"
	default:
		return "UNKNOWN"
	}
}

// Manager serializes access to a Store and applies the timestamp order to
// every update.
type Manager struct {
	mu    sync.Mutex
	store Store
	rng   random.Source
	log   zerolog.Logger
}

// NewManager creates a manager over store. rng is used by Bump.
func NewManager(store Store, rng random.Source, log zerolog.Logger) *Manager {
	return &Manager{
		store: store,
		rng:   rng,
		log:   log,
	}
}

// Current returns a copy of the local dataset, or nil if none is held.
func (m *Manager) Current(kind Kind) (*Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Get(kind)
}

// Configure installs a locally configured dataset. It fails with ErrNotNewer
// unless d sorts strictly after the dataset already held.
func (m *Manager) Configure(kind Kind, d *Dataset) error {
	if d == nil {
		return fmt.Errorf("configure %s: nil dataset", kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.store.Get(kind)
	if err != nil {
		return err
	}
	if current != nil && !d.Timestamp.After(current.Timestamp) {
		return fmt.Errorf("configure %s at %s (have %s): %w", kind, d.Timestamp, versionString(current), ErrNotNewer)
	}

	if err := m.store.Put(kind, d); err != nil {
		return err
	}
	m.log.Info().Stringer("kind", kind).Stringer("timestamp", d.Timestamp).Msg("Dataset configured")
	return nil
}

// Receive offers a dataset learned from a peer. The local dataset is
// replaced only when the incoming one sorts strictly later. The returned
// dataset is the one held after the call.
//
// An orphan timestamp comes from a node that lost its dataset and asks to
// be sent one. It is never stored and is answered as Stale.
func (m *Manager) Receive(kind Kind, d *Dataset) (Outcome, *Dataset, error) {
	if d == nil {
		return Stale, nil, fmt.Errorf("receive %s: nil dataset", kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.store.Get(kind)
	if err != nil {
		return Stale, nil, err
	}

	if d.Timestamp.IsOrphan() {
		m.log.Debug().
			Stringer("kind", kind).
			Str("current", versionString(current)).
			Msg("Orphan announce")
		return Stale, current, nil
	}

	switch c := timestamp.CompareOptional(d.Version(), current.Version()); {
	case c > 0:
		if err := m.store.Put(kind, d); err != nil {
			return Stale, nil, err
		}
		m.log.Info().
			Stringer("kind", kind).
			Stringer("timestamp", d.Timestamp).
			Str("previous", versionString(current)).
			Msg("Dataset accepted")
		return Accepted, d.Copy(), nil
	case c < 0:
		m.log.Debug().
			Stringer("kind", kind).
			Stringer("timestamp", d.Timestamp).
			Stringer("current", current.Timestamp).
			Msg("Ignoring stale dataset")
		return Stale, current, nil
	}

	if d.SamePayload(current) {
		return Duplicate, current, nil
	}

	m.log.Warn().
		Stringer("kind", kind).
		Stringer("timestamp", d.Timestamp).
		Msg("Conflicting dataset with equal timestamp")
	return Conflict, current, nil
}

// Bump advances the local dataset timestamp by a random number of ticks so
// it sorts strictly after any copy carrying the previous timestamp.
func (m *Manager) Bump(kind Kind) (*Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.store.Get(kind)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("bump %s: no dataset held", kind)
	}

	previous := current.Timestamp
	current.Timestamp.AdvanceRandomTicks(m.rng)
	if err := m.store.Put(kind, current); err != nil {
		return nil, err
	}

	m.log.Info().
		Stringer("kind", kind).
		Stringer("previous", previous).
		Stringer("timestamp", current.Timestamp).
		Msg("Dataset timestamp advanced")
	return current.Copy(), nil
}

func versionString(d *Dataset) string {
	if d == nil {
		return "none"
	}
	return d.Timestamp.String()
}
