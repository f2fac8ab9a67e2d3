package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"meshcop/internal/dataset"
	"meshcop/internal/timestamp"
)

type echoServer struct {
	lastFrom string
}

func (s *echoServer) Announce(ctx context.Context, req *AnnounceRequest) (*AnnounceResponse, error) {
	s.lastFrom = req.FromID
	return &AnnounceResponse{Status: AnnounceAccepted, ResponderID: "server", Current: req.Dataset}, nil
}

func (s *echoServer) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	if req.Kind == dataset.Pending {
		return &GetResponse{NodeID: "server"}, nil
	}
	return &GetResponse{
		NodeID:  "server",
		Dataset: FromDataset(req.Kind, &dataset.Dataset{Timestamp: timestamp.New(9, 9, true), Payload: []byte("x")}),
	}, nil
}

func startBufServer(t *testing.T, srv DatasetServer) *ClientManager {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterDatasetServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	cm := NewClientManager(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	t.Cleanup(func() { _ = cm.Close() })
	return cm
}

func TestService_RoundTrip(t *testing.T) {
	srv := &echoServer{}
	cm := startBufServer(t, srv)

	client, err := cm.GetClient("passthrough:///bufnet")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := &dataset.Dataset{Timestamp: timestamp.New(100, 3, false), Payload: []byte("payload")}
	resp, err := client.Announce(ctx, &AnnounceRequest{FromID: "n1", Dataset: FromDataset(dataset.Active, d)})
	require.NoError(t, err)
	assert.Equal(t, AnnounceAccepted, resp.Status)
	assert.Equal(t, "server", resp.ResponderID)
	assert.Equal(t, d.Timestamp, resp.Current.Dataset().Timestamp)
	assert.Equal(t, "n1", srv.lastFrom)

	get, err := client.Get(ctx, &GetRequest{Kind: dataset.Active})
	require.NoError(t, err)
	require.NotNil(t, get.Dataset)
	assert.Equal(t, timestamp.New(9, 9, true), get.Dataset.Dataset().Timestamp)

	get, err = client.Get(ctx, &GetRequest{Kind: dataset.Pending})
	require.NoError(t, err)
	assert.Nil(t, get.Dataset)
}

func TestClientManager_CachesClients(t *testing.T) {
	cm := startBufServer(t, &echoServer{})

	c1, err := cm.GetClient("passthrough:///bufnet")
	require.NoError(t, err)
	c2, err := cm.GetClient("passthrough:///bufnet")
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}
