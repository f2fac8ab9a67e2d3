package node

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"meshcop/internal/config"
	"meshcop/internal/dataset"
	"meshcop/internal/logging"
	"meshcop/internal/random"
	"meshcop/internal/repair"
	"meshcop/internal/rpc"
)

// maxFanout bounds concurrent calls to peers.
const maxFanout = 8

// Node represents a single node holding a copy of the mesh datasets.
type Node struct {
	cfg        *config.Config
	log        zerolog.Logger
	store      dataset.Store
	manager    *dataset.Manager
	clientMgr  *rpc.ClientManager
	pusher     *repair.Pusher
	grpcServer *grpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a node over store. dialOpts are passed to every peer
// connection.
func New(cfg *config.Config, store dataset.Store, rng random.Source, log zerolog.Logger, dialOpts ...grpc.DialOption) *Node {
	log = log.With().Str("node", cfg.NodeID).Logger()
	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		cfg:       cfg,
		log:       log,
		store:     store,
		manager:   dataset.NewManager(store, rng, logging.Component(log, "dataset")),
		clientMgr: rpc.NewClientManager(dialOpts...),
		ctx:       ctx,
		cancel:    cancel,
	}
	n.pusher = repair.NewPusher(cfg.NodeID, n.clientMgr.GetClient, cfg.RPCTimeout, logging.Component(log, "repair"))
	return n
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.cfg.NodeID
}

// Manager returns the dataset manager of this node.
func (n *Node) Manager() *dataset.Manager {
	return n.manager
}

// Start listens on the configured address and serves.
func (n *Node) Start() error {
	lis, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr, err)
	}
	n.Serve(lis)
	return nil
}

// Serve serves the dataset service on lis and starts the rebroadcast loop.
// It returns immediately.
func (n *Node) Serve(lis net.Listener) {
	n.grpcServer = grpc.NewServer()
	rpc.RegisterDatasetServer(n.grpcServer, &server{node: n})

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.log.Info().Str("addr", lis.Addr().String()).Msg("Dataset service listening")
		if err := n.grpcServer.Serve(lis); err != nil {
			n.log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	if n.cfg.RebroadcastInterval > 0 {
		n.wg.Add(1)
		go n.rebroadcastLoop()
	}
}

// Stop stops serving, waits for background work and closes the store.
func (n *Node) Stop() {
	n.cancel()
	if n.grpcServer != nil {
		n.grpcServer.GracefulStop()
	}
	n.wg.Wait()

	if err := n.clientMgr.Close(); err != nil {
		n.log.Warn().Err(err).Msg("Closing peer connections")
	}
	if err := n.store.Close(); err != nil {
		n.log.Warn().Err(err).Msg("Closing dataset store")
	}
}

func (n *Node) rebroadcastLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.cfg.RebroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			for _, kind := range dataset.Kinds {
				if err := n.refresh(kind); err != nil {
					n.log.Warn().Err(err).Stringer("kind", kind).Msg("Rebroadcast failed")
				}
			}
		}
	}
}

// refresh announces the local dataset, or pulls one from the peers when
// none is held. Repairs found while pulling are pushed in the background.
func (n *Node) refresh(kind dataset.Kind) error {
	local, err := n.manager.Current(kind)
	if err != nil {
		return err
	}
	if local != nil {
		return n.Broadcast(n.ctx, kind)
	}
	_, err = n.reconcile(n.ctx, kind, true)
	return err
}
