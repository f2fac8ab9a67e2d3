package repair

import (
	"meshcop/internal/dataset"
	"meshcop/internal/timestamp"
)

// Replica is the dataset one node reported. Dataset is nil when the node
// holds none.
type Replica struct {
	NodeID  string
	Dataset *dataset.Dataset
}

// Result represents the result of reconciling replicas.
type Result struct {
	// Winner is the newest replica, or nil if no replica holds a dataset.
	Winner *Replica

	// Stale maps node ID to the replica that sorts strictly before Winner.
	Stale map[string]Replica

	// Conflicts lists replicas that share Winner's timestamp but carry a
	// different payload.
	Conflicts []Replica
}

// Reconcile picks the newest replica by timestamp order. On equal timestamps
// the first replica listed wins.
func Reconcile(replicas []Replica) Result {
	result := Result{Stale: make(map[string]Replica)}

	for i := range replicas {
		if replicas[i].Dataset == nil {
			continue
		}
		if result.Winner == nil || timestamp.CompareOptional(replicas[i].Dataset.Version(), result.Winner.Dataset.Version()) > 0 {
			result.Winner = &replicas[i]
		}
	}

	if result.Winner == nil {
		return result
	}

	winner := result.Winner.Dataset.Version()
	for _, r := range replicas {
		switch c := timestamp.CompareOptional(r.Dataset.Version(), winner); {
		case c < 0:
			result.Stale[r.NodeID] = r
		case c == 0 && !r.Dataset.SamePayload(result.Winner.Dataset):
			result.Conflicts = append(result.Conflicts, r)
		}
	}

	return result
}

// HasConflict returns true if replicas disagree at the winning timestamp.
func (r *Result) HasConflict() bool {
	return len(r.Conflicts) > 0
}

// IsNotFound returns true if no replica holds a dataset.
func (r *Result) IsNotFound() bool {
	return r.Winner == nil
}
