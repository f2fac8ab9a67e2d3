// Package node runs a mesh node: it serves the dataset service, announces
// its datasets to peers on a timer, and reconciles diverging copies by
// timestamp order. When two nodes hold different datasets under the same
// timestamp, the announcing node jitters its timestamp forward so that one
// copy wins without further coordination.
package node
