package chain

import (
	"context"
	"math/big"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"chainPulse/internal/model"
)

func TestNetworkTrackerInitialObservation(t *testing.T) {
	var tracker networkTracker

	change, ok := tracker.observe(137)
	if !ok {
		t.Fatalf("expected initial change")
	}
	if change.Old != nil {
		t.Fatalf("initial change must not carry an old network: %+v", change.Old)
	}
	if change.New.ChainID != 137 || change.New.Name != "matic" {
		t.Fatalf("unexpected network: %+v", change.New)
	}
}

func TestNetworkTrackerSwitch(t *testing.T) {
	var tracker networkTracker
	tracker.observe(137)

	if _, ok := tracker.observe(137); ok {
		t.Fatalf("same chain id reported as a change")
	}

	change, ok := tracker.observe(1)
	if !ok {
		t.Fatalf("expected change on switch")
	}
	if change.Old == nil || change.Old.ChainID != 137 {
		t.Fatalf("old network mismatch: %+v", change.Old)
	}
	if change.New.ChainID != 1 {
		t.Fatalf("new network mismatch: %+v", change.New)
	}
}

type stubEth struct {
	mu       sync.Mutex
	blocks   []uint64
	chainIDs []uint64
}

func (s *stubEth) BlockNumber() hexutil.Uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hexutil.Uint64(next(&s.blocks))
}

func (s *stubEth) ChainId() *hexutil.Big {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*hexutil.Big)(new(big.Int).SetUint64(next(&s.chainIDs)))
}

// next pops the head of seq and keeps returning the last value.
func next(seq *[]uint64) uint64 {
	v := (*seq)[0]
	if len(*seq) > 1 {
		*seq = (*seq)[1:]
	}
	return v
}

func newStubClient(t *testing.T, stub *stubEth) *Client {
	t.Helper()
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", stub); err != nil {
		t.Fatalf("register eth service: %v", err)
	}
	ts := httptest.NewServer(srv)

	client, err := NewClient(context.Background(), ts.URL, Options{
		HeadPollInterval:    10 * time.Millisecond,
		NetworkPollInterval: 10 * time.Millisecond,
		Logger:              zap.NewNop(),
	})
	if err != nil {
		ts.Close()
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		ts.Close()
		srv.Stop()
	})
	return client
}

func TestSubscribeBlocksPollsOverHTTP(t *testing.T) {
	client := newStubClient(t, &stubEth{blocks: []uint64{5, 5, 6, 6, 6, 7}, chainIDs: []uint64{137}})

	numbers := make(chan uint64, 16)
	sub, err := client.SubscribeBlocks(context.Background(), func(n uint64) { numbers <- n })
	if err != nil {
		t.Fatalf("subscribe blocks: %v", err)
	}
	defer sub.Unsubscribe()

	var got []uint64
	for len(got) < 3 {
		select {
		case n := <-numbers:
			got = append(got, n)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	if !reflect.DeepEqual(got, []uint64{5, 6, 7}) {
		t.Fatalf("unexpected blocks: %v", got)
	}

	select {
	case n := <-numbers:
		t.Fatalf("unchanged block number delivered again: %d", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeNetworkReportsChanges(t *testing.T) {
	client := newStubClient(t, &stubEth{blocks: []uint64{1}, chainIDs: []uint64{137, 137, 1}})

	changes := make(chan NetworkChange, 16)
	sub, err := client.SubscribeNetwork(context.Background(), func(newNetwork model.Network, oldNetwork *model.Network) {
		changes <- NetworkChange{New: newNetwork, Old: oldNetwork}
	})
	if err != nil {
		t.Fatalf("subscribe network: %v", err)
	}
	defer sub.Unsubscribe()

	var got []NetworkChange
	for len(got) < 2 {
		select {
		case change := <-changes:
			got = append(got, change)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %+v", got)
		}
	}

	if got[0].New.ChainID != 137 || got[0].Old != nil {
		t.Fatalf("first observation mismatch: %+v", got[0])
	}
	if got[1].New.ChainID != 1 || got[1].Old == nil || got[1].Old.ChainID != 137 {
		t.Fatalf("switch mismatch: %+v", got[1])
	}

	select {
	case change := <-changes:
		t.Fatalf("unchanged chain id reported: %+v", change)
	case <-time.After(100 * time.Millisecond):
	}
}
