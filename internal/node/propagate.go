package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"meshcop/internal/config"
	"meshcop/internal/dataset"
	"meshcop/internal/repair"
	"meshcop/internal/rpc"
)

// Broadcast announces the local dataset of the given kind to every peer.
// A newer dataset returned by a peer is adopted. If any peer holds a
// different dataset under the same timestamp, the local timestamp is
// advanced by a random number of ticks and announced once more.
func (n *Node) Broadcast(ctx context.Context, kind dataset.Kind) error {
	local, err := n.manager.Current(kind)
	if err != nil {
		return err
	}
	if local == nil {
		return nil
	}

	conflict, err := n.announceAll(ctx, kind, local)
	if !conflict {
		return err
	}

	bumped, bumpErr := n.manager.Bump(kind)
	if bumpErr != nil {
		return errors.Join(err, bumpErr)
	}
	_, err = n.announceAll(ctx, kind, bumped)
	return err
}

// announceAll sends d to every peer and reports whether any peer answered
// with a conflict. Peer failures are joined into the returned error.
func (n *Node) announceAll(ctx context.Context, kind dataset.Kind, d *dataset.Dataset) (bool, error) {
	req := &rpc.AnnounceRequest{FromID: n.ID(), Dataset: rpc.FromDataset(kind, d)}

	var (
		mu       sync.Mutex
		conflict bool
		errs     []error
	)

	g := new(errgroup.Group)
	g.SetLimit(maxFanout)
	for _, peer := range n.cfg.RemotePeers() {
		g.Go(func() error {
			resp, err := n.announce(ctx, peer, req)
			if err != nil {
				n.log.Debug().Err(err).Str("peer", peer.ID).Msg("Announce failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("announce to %s: %w", peer.ID, err))
				mu.Unlock()
				return nil
			}

			switch resp.Status {
			case rpc.AnnounceConflict:
				mu.Lock()
				conflict = true
				mu.Unlock()
			case rpc.AnnounceStale:
				n.adopt(kind, resp.ResponderID, resp.Current)
			}
			return nil
		})
	}
	_ = g.Wait()

	return conflict, errors.Join(errs...)
}

func (n *Node) announce(ctx context.Context, peer config.Peer, req *rpc.AnnounceRequest) (*rpc.AnnounceResponse, error) {
	client, err := n.clientMgr.GetClient(peer.Addr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.RPCTimeout)
	defer cancel()
	return client.Announce(ctx, req)
}

// adopt offers a dataset learned from a peer to the local manager.
func (n *Node) adopt(kind dataset.Kind, from string, msg *rpc.DatasetMessage) {
	if msg == nil {
		return
	}
	outcome, _, err := n.manager.Receive(kind, msg.Dataset())
	if err != nil {
		n.log.Warn().Err(err).Str("peer", from).Msg("Adopting newer dataset failed")
		return
	}
	n.log.Debug().Str("peer", from).Stringer("outcome", outcome).Msg("Offered peer dataset")
}

// Reconcile pulls the dataset of the given kind from every peer, adopts the
// newest one and pushes it to peers holding an older copy or none. Peers
// that cannot be reached are left out.
func (n *Node) Reconcile(ctx context.Context, kind dataset.Kind) (repair.Result, error) {
	return n.reconcile(ctx, kind, false)
}

// reconcile is Reconcile. With background set the push to stale peers is
// not waited for.
func (n *Node) reconcile(ctx context.Context, kind dataset.Kind, background bool) (repair.Result, error) {
	local, err := n.manager.Current(kind)
	if err != nil {
		return repair.Result{}, err
	}

	peers := n.cfg.RemotePeers()
	fetched := make([]*repair.Replica, len(peers))

	g := new(errgroup.Group)
	g.SetLimit(maxFanout)
	for i, peer := range peers {
		g.Go(func() error {
			d, err := n.fetch(ctx, peer, kind)
			if err != nil {
				n.log.Debug().Err(err).Str("peer", peer.ID).Msg("Fetch failed")
				return nil
			}
			fetched[i] = &repair.Replica{NodeID: peer.ID, Dataset: d}
			return nil
		})
	}
	_ = g.Wait()

	replicas := []repair.Replica{{NodeID: n.ID(), Dataset: local}}
	for _, r := range fetched {
		if r != nil {
			replicas = append(replicas, *r)
		}
	}

	result := repair.Reconcile(replicas)
	if result.IsNotFound() {
		return result, nil
	}

	if result.Winner.NodeID != n.ID() {
		n.adopt(kind, result.Winner.NodeID, rpc.FromDataset(kind, result.Winner.Dataset))
	}
	delete(result.Stale, n.ID())

	if result.HasConflict() {
		n.log.Warn().Stringer("kind", kind).Int("conflicts", len(result.Conflicts)).Msg("Replicas disagree at the newest timestamp")
		return result, n.Broadcast(ctx, kind)
	}

	if background {
		n.pusher.PushAsync(kind, result.Winner.Dataset, result.Stale, n.cfg.PeerAddrs())
	} else {
		n.pusher.Push(ctx, kind, result.Winner.Dataset, result.Stale, n.cfg.PeerAddrs())
	}
	return result, nil
}

func (n *Node) fetch(ctx context.Context, peer config.Peer, kind dataset.Kind) (*dataset.Dataset, error) {
	client, err := n.clientMgr.GetClient(peer.Addr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.RPCTimeout)
	defer cancel()

	resp, err := client.Get(ctx, &rpc.GetRequest{Kind: kind})
	if err != nil {
		return nil, err
	}
	return resp.Dataset.Dataset(), nil
}
