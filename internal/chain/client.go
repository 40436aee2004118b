package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"chainPulse/internal/model"
)

// Options tunes the polling fallbacks of a Client.
type Options struct {
	HeadPollInterval    time.Duration
	NetworkPollInterval time.Duration
	Logger              *zap.Logger
}

// Client wraps go-ethereum RPC and exposes block and network events.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	opts      Options
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	networkFeed  event.Feed
	networkOnce  sync.Once
	networkState networkTracker
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	if opts.HeadPollInterval <= 0 {
		opts.HeadPollInterval = 4 * time.Second
	}
	if opts.NetworkPollInterval <= 0 {
		opts.NetworkPollInterval = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		opts:      opts,
		logger:    logger,
		ctx:       clientCtx,
		cancel:    cancel,
	}, nil
}

// Close stops background probes and closes the underlying RPC client.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("chain id does not fit in uint64: %s", id)
	}
	return id.Uint64(), nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// Backend exposes the client for contract bindings.
func (c *Client) Backend() bind.ContractBackend {
	return c.ethClient
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// SubscribeBlocks delivers new block numbers to sink. Endpoints without
// subscription support are polled every HeadPollInterval instead.
func (c *Client) SubscribeBlocks(ctx context.Context, sink func(uint64)) (event.Subscription, error) {
	heads := make(chan *types.Header, 16)
	sub, err := c.ethClient.SubscribeNewHead(ctx, heads)
	if err != nil {
		if errors.Is(err, rpc.ErrNotificationsUnsupported) {
			c.logger.Debug("head subscription unsupported, polling", zap.Duration("interval", c.opts.HeadPollInterval))
			return c.pollBlocks(sink), nil
		}
		return nil, fmt.Errorf("subscribe new heads: %w", err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case header := <-heads:
				if header != nil && header.Number != nil {
					sink(header.Number.Uint64())
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (c *Client) pollBlocks(sink func(uint64)) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		ticker := time.NewTicker(c.opts.HeadPollInterval)
		defer ticker.Stop()

		var last uint64
		for {
			select {
			case <-quit:
				return nil
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-ticker.C:
			}

			ctx, cancel := context.WithTimeout(c.ctx, c.opts.HeadPollInterval)
			number, err := c.BlockNumber(ctx)
			cancel()
			if err != nil {
				c.logger.Warn("block poll failed", zap.Error(err))
				continue
			}
			if number == last {
				continue
			}
			last = number
			sink(number)
		}
	})
}

// NetworkChange is emitted when the endpoint reports a chain id. Old is nil
// on the first observation.
type NetworkChange struct {
	New model.Network
	Old *model.Network
}

// SubscribeNetwork delivers network changes to sink. The chain id is probed
// every NetworkPollInterval for as long as the client is open.
func (c *Client) SubscribeNetwork(ctx context.Context, sink func(newNetwork model.Network, oldNetwork *model.Network)) (event.Subscription, error) {
	changes := make(chan NetworkChange, 4)
	feedSub := c.networkFeed.Subscribe(changes)
	c.networkOnce.Do(func() { go c.probeNetwork() })

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer feedSub.Unsubscribe()
		for {
			select {
			case change := <-changes:
				sink(change.New, change.Old)
			case err := <-feedSub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (c *Client) probeNetwork() {
	ticker := time.NewTicker(c.opts.NetworkPollInterval)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.NetworkPollInterval)
		chainID, err := c.ChainID(ctx)
		cancel()
		if err != nil {
			c.logger.Warn("network probe failed", zap.Error(err))
		} else if change, ok := c.networkState.observe(chainID); ok {
			c.networkFeed.Send(change)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type networkTracker struct {
	mu   sync.Mutex
	last *model.Network
}

// observe records chainID and reports a change when it differs from the
// previous observation.
func (t *networkTracker) observe(chainID uint64) (NetworkChange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last != nil && t.last.ChainID == chainID {
		return NetworkChange{}, false
	}
	next := model.NetworkFor(chainID)
	change := NetworkChange{New: next, Old: t.last}
	t.last = &next
	return change, true
}
