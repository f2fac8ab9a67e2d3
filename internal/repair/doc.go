// Package repair reconciles the dataset copies reported by several nodes.
// Timestamps are totally ordered, so reconciliation always yields a single
// winner; replicas holding an older copy, or none, are stale and can be
// brought forward by pushing the winner to them.
package repair
