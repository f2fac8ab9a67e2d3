package repair

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meshcop/internal/dataset"
	"meshcop/internal/rpc"
)

// Pusher brings stale replicas forward by announcing the winning dataset
// to them.
type Pusher struct {
	// clientProvider returns a client for a given node address
	clientProvider func(addr string) (rpc.DatasetClient, error)
	localID        string
	timeout        time.Duration
	log            zerolog.Logger
}

// NewPusher creates a new pusher.
func NewPusher(localID string, clientProvider func(addr string) (rpc.DatasetClient, error), timeout time.Duration, log zerolog.Logger) *Pusher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Pusher{
		clientProvider: clientProvider,
		localID:        localID,
		timeout:        timeout,
		log:            log,
	}
}

// Push announces winner to every stale replica with a known address and
// waits for all of them. Failures are logged and counted, never retried.
func (p *Pusher) Push(ctx context.Context, kind dataset.Kind, winner *dataset.Dataset, stale map[string]Replica, addrs map[string]string) (repaired, failed int) {
	if len(stale) == 0 || winner == nil {
		return 0, 0
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.log.Info().
		Stringer("kind", kind).
		Stringer("timestamp", winner.Timestamp).
		Int("stale", len(stale)).
		Msg("Repair triggered")

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for nodeID := range stale {
		addr, exists := addrs[nodeID]
		if !exists {
			p.log.Debug().Str("node", nodeID).Msg("Repair: skipping replica (no address)")
			continue
		}

		wg.Add(1)
		go func(nodeID, addr string) {
			defer wg.Done()
			err := p.pushReplica(ctx, addr, kind, winner)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.log.Warn().Err(err).Str("node", nodeID).Msg("Repair failed")
				failed++
				return
			}
			repaired++
		}(nodeID, addr)
	}
	wg.Wait()

	p.log.Info().Int("repaired", repaired).Int("failed", failed).Msg("Repair completed")
	return repaired, failed
}

// PushAsync runs Push in the background on a detached context.
func (p *Pusher) PushAsync(kind dataset.Kind, winner *dataset.Dataset, stale map[string]Replica, addrs map[string]string) {
	if len(stale) == 0 {
		return
	}
	winner = winner.Copy()
	go func() {
		defer func() {
			if err := recover(); err != nil {
				p.log.Error().Interface("panic", err).Msg("Repair panic")
			}
		}()
		p.Push(context.Background(), kind, winner, stale, addrs)
	}()
}

func (p *Pusher) pushReplica(ctx context.Context, addr string, kind dataset.Kind, winner *dataset.Dataset) error {
	client, err := p.clientProvider(addr)
	if err != nil {
		return fmt.Errorf("failed to get client: %w", err)
	}

	resp, err := client.Announce(ctx, &rpc.AnnounceRequest{
		FromID:  p.localID,
		Dataset: rpc.FromDataset(kind, winner),
	})
	if err != nil {
		return fmt.Errorf("announce failed: %w", err)
	}

	switch resp.Status {
	case rpc.AnnounceAccepted, rpc.AnnounceDuplicate:
		return nil
	default:
		return fmt.Errorf("replica %s answered %s", resp.ResponderID, resp.Status)
	}
}
