package main

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainPulse/internal/config"
	"chainPulse/internal/model"
	"chainPulse/internal/price"
)

type countingCaller struct {
	mu    sync.Mutex
	calls []common.Address
}

func (c *countingCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.To != nil {
		c.calls = append(c.calls, *msg.To)
	}
	return nil, errors.New("unavailable")
}

func (c *countingCaller) targets() []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]common.Address(nil), c.calls...)
}

func TestParseAccount(t *testing.T) {
	got, err := parseAccount("")
	if err != nil {
		t.Fatalf("empty account: %v", err)
	}
	if got != (common.Address{}) {
		t.Fatalf("expected zero address, got %s", got.Hex())
	}

	raw := "0x00000000000000000000000000000000000000aa"
	got, err = parseAccount(raw)
	if err != nil {
		t.Fatalf("parse account: %v", err)
	}
	if got != common.HexToAddress(raw) {
		t.Fatalf("unexpected address %s", got.Hex())
	}

	if _, err := parseAccount("not-an-address"); err == nil {
		t.Fatalf("expected error for invalid address")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	if err := writeJSON(cmd, blockReport{ChainID: 137, Network: "matic", BlockNumber: 105}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"chainId": 137`, `"network": "matic"`, `"blockNumber": 105`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestSessionPricesRouteByChain(t *testing.T) {
	mainnet := &countingCaller{}
	polygon := &countingCaller{}
	feeds := price.DefaultFeeds()
	s := &session{
		cfg:     config.Config{MaxRetries: 0},
		feeds:   feeds,
		logger:  zap.NewNop(),
		callers: map[uint64]price.Caller{1: mainnet, 137: polygon},
	}

	// a late read for chain 1 after switching to 137
	if _, err := s.prices(model.AssetNative).Price(context.Background(), 1); err == nil {
		t.Fatalf("expected the failing caller error")
	}

	if got := polygon.targets(); len(got) != 0 {
		t.Fatalf("chain 1 read reached the chain 137 client: %v", got)
	}
	got := mainnet.targets()
	if len(got) != 1 || got[0] != feeds[1].Native {
		t.Fatalf("chain 1 read targets: %v", got)
	}
}

func TestSessionPricesUnknownChain(t *testing.T) {
	s := &session{
		feeds:   price.DefaultFeeds(),
		logger:  zap.NewNop(),
		callers: map[uint64]price.Caller{137: &countingCaller{}},
	}

	_, err := s.prices(model.AssetSecondary).Price(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "no rpc client for chain 1") {
		t.Fatalf("unexpected error: %v", err)
	}
}
