package node

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"meshcop/internal/dataset"
	"meshcop/internal/rpc"
)

// server implements the dataset gRPC service on behalf of a Node.
type server struct {
	node *Node
}

// Announce offers a peer's dataset to the local manager.
func (s *server) Announce(ctx context.Context, req *rpc.AnnounceRequest) (*rpc.AnnounceResponse, error) {
	if req.Dataset == nil {
		return nil, status.Error(codes.InvalidArgument, "dataset is required")
	}
	if err := validKind(req.Dataset.Kind); err != nil {
		return nil, err
	}

	incoming := req.Dataset.Dataset()
	outcome, held, err := s.node.manager.Receive(req.Dataset.Kind, incoming)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "receive dataset: %v", err)
	}

	s.node.log.Debug().
		Str("from", req.FromID).
		Stringer("kind", req.Dataset.Kind).
		Stringer("timestamp", incoming.Timestamp).
		Stringer("outcome", outcome).
		Msg("Announce received")

	return &rpc.AnnounceResponse{
		Status:      rpc.StatusFromOutcome(outcome),
		ResponderID: s.node.ID(),
		Current:     rpc.FromDataset(req.Dataset.Kind, held),
	}, nil
}

// Get returns the local dataset of the requested kind.
func (s *server) Get(ctx context.Context, req *rpc.GetRequest) (*rpc.GetResponse, error) {
	if err := validKind(req.Kind); err != nil {
		return nil, err
	}

	d, err := s.node.manager.Current(req.Kind)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "read dataset: %v", err)
	}
	return &rpc.GetResponse{
		NodeID:  s.node.ID(),
		Dataset: rpc.FromDataset(req.Kind, d),
	}, nil
}

func validKind(kind dataset.Kind) error {
	for _, k := range dataset.Kinds {
		if k == kind {
			return nil
		}
	}
	return status.Errorf(codes.InvalidArgument, "unknown dataset kind %d", uint8(kind))
}
