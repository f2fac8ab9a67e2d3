package node

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"meshcop/internal/config"
	"meshcop/internal/dataset"
	"meshcop/internal/random"
	"meshcop/internal/rpc"
	"meshcop/internal/timestamp"
)

// mesh runs several nodes in-process over bufconn listeners.
type mesh struct {
	mu        sync.Mutex
	listeners map[string]*bufconn.Listener
	nodes     map[string]*Node
}

func (m *mesh) dial(ctx context.Context, addr string) (net.Conn, error) {
	m.mu.Lock()
	lis, ok := m.listeners[addr]
	m.mu.Unlock()
	if !ok {
		return nil, &net.OpError{Op: "dial", Net: "bufconn", Err: net.UnknownNetworkError(addr)}
	}
	return lis.DialContext(ctx)
}

func addrOf(id string) string {
	return "passthrough:///" + id
}

// newMesh starts one node per ID. Every node lists all others as peers.
// Nodes listed in down get an address but no listener.
func newMesh(t *testing.T, rngs map[string]random.Source, ids []string, down ...string) *mesh {
	t.Helper()
	m := &mesh{listeners: make(map[string]*bufconn.Listener), nodes: make(map[string]*Node)}

	var peers []config.Peer
	for _, id := range append(append([]string{}, ids...), down...) {
		peers = append(peers, config.Peer{ID: id, Addr: addrOf(id)})
	}

	for _, id := range ids {
		cfg := &config.Config{
			NodeID:     id,
			ListenAddr: addrOf(id),
			Peers:      peers,
			RPCTimeout: time.Second,
		}
		rng := rngs[id]
		if rng == nil {
			rng = random.NewSeeded(1, uint64(len(id)))
		}
		m.start(t, cfg, rng)
	}
	return m
}

// start serves a node for cfg on a fresh bufconn listener.
func (m *mesh) start(t *testing.T, cfg *config.Config, rng random.Source) *Node {
	t.Helper()
	n := New(cfg, dataset.NewInMemoryStore(), rng, zerolog.Nop(), grpc.WithContextDialer(m.dial))

	lis := bufconn.Listen(1 << 20)
	m.mu.Lock()
	m.listeners[cfg.NodeID] = lis
	m.mu.Unlock()
	n.Serve(lis)
	m.nodes[cfg.NodeID] = n
	t.Cleanup(n.Stop)
	return n
}

func current(t *testing.T, n *Node, kind dataset.Kind) *dataset.Dataset {
	t.Helper()
	d, err := n.Manager().Current(kind)
	require.NoError(t, err)
	return d
}

func ds(seconds uint64, ticks uint16, auth bool, payload string) *dataset.Dataset {
	return &dataset.Dataset{Timestamp: timestamp.New(seconds, ticks, auth), Payload: []byte(payload)}
}

func TestBroadcast_PropagatesNewer(t *testing.T) {
	m := newMesh(t, nil, []string{"n1", "n2", "n3"})
	ctx := context.Background()

	require.NoError(t, m.nodes["n1"].Manager().Configure(dataset.Active, ds(100, 0, true, "config-a")))
	require.NoError(t, m.nodes["n1"].Broadcast(ctx, dataset.Active))

	for _, id := range []string{"n2", "n3"} {
		d := current(t, m.nodes[id], dataset.Active)
		require.NotNil(t, d, "node %s should hold the dataset", id)
		assert.Equal(t, timestamp.New(100, 0, true), d.Timestamp)
		assert.Equal(t, "config-a", string(d.Payload))
	}
	assert.Nil(t, current(t, m.nodes["n2"], dataset.Pending))
}

func TestBroadcast_AdoptsNewerFromPeer(t *testing.T) {
	m := newMesh(t, nil, []string{"n1", "n2"})
	ctx := context.Background()

	require.NoError(t, m.nodes["n1"].Manager().Configure(dataset.Active, ds(100, 0, false, "old")))
	require.NoError(t, m.nodes["n2"].Manager().Configure(dataset.Active, ds(100, 0, true, "new")))

	require.NoError(t, m.nodes["n1"].Broadcast(ctx, dataset.Active))

	d := current(t, m.nodes["n1"], dataset.Active)
	assert.Equal(t, "new", string(d.Payload))
	assert.True(t, d.Timestamp.Authoritative())
}

func TestBroadcast_ConflictBumpsTimestamp(t *testing.T) {
	seq := random.NewSequence(5)
	m := newMesh(t, map[string]random.Source{"n1": seq}, []string{"n1", "n2"})
	ctx := context.Background()

	require.NoError(t, m.nodes["n1"].Manager().Configure(dataset.Active, ds(100, timestamp.MaxTicks-2, false, "mine")))
	require.NoError(t, m.nodes["n2"].Manager().Configure(dataset.Active, ds(100, timestamp.MaxTicks-2, false, "theirs")))

	require.NoError(t, m.nodes["n1"].Broadcast(ctx, dataset.Active))

	// MaxTicks-2 + 5 wraps to tick 2 of the next second
	want := timestamp.New(101, 2, false)
	assert.Equal(t, 1, seq.Calls())
	assert.Equal(t, want, current(t, m.nodes["n1"], dataset.Active).Timestamp)

	d := current(t, m.nodes["n2"], dataset.Active)
	assert.Equal(t, want, d.Timestamp)
	assert.Equal(t, "mine", string(d.Payload))
}

func TestBroadcast_NothingToAnnounce(t *testing.T) {
	m := newMesh(t, nil, []string{"n1", "n2"})
	assert.NoError(t, m.nodes["n1"].Broadcast(context.Background(), dataset.Active))
	assert.Nil(t, current(t, m.nodes["n2"], dataset.Active))
}

func TestBroadcast_ReportsUnreachablePeer(t *testing.T) {
	m := newMesh(t, nil, []string{"n1", "n2"}, "n3")
	require.NoError(t, m.nodes["n1"].Manager().Configure(dataset.Active, ds(1, 0, false, "x")))

	err := m.nodes["n1"].Broadcast(context.Background(), dataset.Active)
	assert.Error(t, err)
	assert.NotNil(t, current(t, m.nodes["n2"], dataset.Active), "reachable peer still updated")
}

func TestReconcile_PullsAndPushes(t *testing.T) {
	m := newMesh(t, nil, []string{"n1", "n2", "n3"})
	ctx := context.Background()

	require.NoError(t, m.nodes["n2"].Manager().Configure(dataset.Pending, ds(50, 10, false, "newest")))
	require.NoError(t, m.nodes["n3"].Manager().Configure(dataset.Pending, ds(50, 9, true, "older")))

	result, err := m.nodes["n1"].Reconcile(ctx, dataset.Pending)
	require.NoError(t, err)
	require.False(t, result.IsNotFound())
	assert.Equal(t, "n2", result.Winner.NodeID)
	assert.NotContains(t, result.Stale, "n1")
	assert.Contains(t, result.Stale, "n3")

	for _, id := range []string{"n1", "n3"} {
		d := current(t, m.nodes[id], dataset.Pending)
		require.NotNil(t, d)
		assert.Equal(t, "newest", string(d.Payload), "node %s", id)
	}
}

func TestReconcile_NoDatasets(t *testing.T) {
	m := newMesh(t, nil, []string{"n1", "n2"})
	result, err := m.nodes["n1"].Reconcile(context.Background(), dataset.Active)
	require.NoError(t, err)
	assert.True(t, result.IsNotFound())
}

func TestServer_RejectsBadRequests(t *testing.T) {
	m := newMesh(t, nil, []string{"n1"})
	s := &server{node: m.nodes["n1"]}
	ctx := context.Background()

	_, err := s.Announce(ctx, &rpc.AnnounceRequest{FromID: "x"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.Announce(ctx, &rpc.AnnounceRequest{FromID: "x", Dataset: &rpc.DatasetMessage{Kind: dataset.Kind(9)}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.Get(ctx, &rpc.GetRequest{Kind: dataset.Kind(9)})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_AnnounceReportsOutcome(t *testing.T) {
	m := newMesh(t, nil, []string{"n1"})
	s := &server{node: m.nodes["n1"]}
	ctx := context.Background()

	resp, err := s.Announce(ctx, &rpc.AnnounceRequest{FromID: "x", Dataset: rpc.FromDataset(dataset.Active, ds(5, 0, false, "a"))})
	require.NoError(t, err)
	assert.Equal(t, rpc.AnnounceAccepted, resp.Status)
	assert.Equal(t, "n1", resp.ResponderID)

	resp, err = s.Announce(ctx, &rpc.AnnounceRequest{FromID: "x", Dataset: rpc.FromDataset(dataset.Active, ds(4, 0, true, "b"))})
	require.NoError(t, err)
	assert.Equal(t, rpc.AnnounceStale, resp.Status)
	assert.Equal(t, "a", string(resp.Current.Payload))
}

func TestRebroadcastLoop(t *testing.T) {
	m := &mesh{listeners: make(map[string]*bufconn.Listener), nodes: make(map[string]*Node)}
	peers := []config.Peer{{ID: "n1", Addr: addrOf("n1")}, {ID: "n2", Addr: addrOf("n2")}}

	for _, id := range []string{"n1", "n2"} {
		cfg := &config.Config{
			NodeID:              id,
			ListenAddr:          addrOf(id),
			Peers:               peers,
			RPCTimeout:          time.Second,
			RebroadcastInterval: 20 * time.Millisecond,
		}
		m.start(t, cfg, random.NewSeeded(2, 3))
	}

	require.NoError(t, m.nodes["n1"].Manager().Configure(dataset.Active, ds(7, 7, true, "looped")))

	assert.Eventually(t, func() bool {
		d, err := m.nodes["n2"].Manager().Current(dataset.Active)
		return err == nil && d != nil && string(d.Payload) == "looped"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRebroadcastLoop_EmptyNodeCatchesUp(t *testing.T) {
	m := &mesh{listeners: make(map[string]*bufconn.Listener), nodes: make(map[string]*Node)}
	var peers []config.Peer
	for _, id := range []string{"n1", "n2", "n3"} {
		peers = append(peers, config.Peer{ID: id, Addr: addrOf(id)})
	}

	// Only n2 runs the loop. It holds nothing, so it pulls from n1 and
	// repairs n3 in the background.
	for _, id := range []string{"n1", "n2", "n3"} {
		cfg := &config.Config{NodeID: id, ListenAddr: addrOf(id), Peers: peers, RPCTimeout: time.Second}
		if id == "n2" {
			cfg.RebroadcastInterval = 20 * time.Millisecond
		}
		m.start(t, cfg, random.NewSeeded(4, 5))
	}
	require.NoError(t, m.nodes["n1"].Manager().Configure(dataset.Pending, ds(42, 1, false, "catch-up")))

	for _, id := range []string{"n2", "n3"} {
		assert.Eventually(t, func() bool {
			d, err := m.nodes[id].Manager().Current(dataset.Pending)
			return err == nil && d != nil && string(d.Payload) == "catch-up"
		}, 2*time.Second, 10*time.Millisecond, "node %s", id)
	}
}
