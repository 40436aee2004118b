package price

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainPulse/internal/model"
)

// ErrNoFeed is returned when no aggregator is configured for a chain.
var ErrNoFeed = errors.New("no price feed")

const oneDay = uint64(24 * 60 * 60)

// Caller performs read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// OracleConfig controls retries of aggregator reads.
type OracleConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// ChainlinkOracle reads USD prices for one asset from Chainlink aggregators.
type ChainlinkOracle struct {
	caller Caller
	asset  model.Asset
	feeds  map[uint64]Feeds
	cfg    OracleConfig
	logger *zap.Logger
}

// NewChainlinkOracle builds an oracle for asset over the given feeds.
func NewChainlinkOracle(caller Caller, asset model.Asset, feeds map[uint64]Feeds, cfg OracleConfig, logger *zap.Logger) *ChainlinkOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	return &ChainlinkOracle{
		caller: caller,
		asset:  asset,
		feeds:  feeds,
		cfg:    cfg,
		logger: logger,
	}
}

// Asset returns the asset this oracle quotes.
func (o *ChainlinkOracle) Asset() model.Asset {
	return o.asset
}

// Price returns the current price, the price one day earlier, and the change
// between them for chainID.
func (o *ChainlinkOracle) Price(ctx context.Context, chainID uint64) (model.PriceSnapshot, error) {
	if o.caller == nil {
		return model.PriceSnapshot{}, fmt.Errorf("caller is nil")
	}
	addr, ok := o.feeds[chainID].Address(o.asset)
	if !ok {
		return model.PriceSnapshot{}, fmt.Errorf("%s on chain %d: %w", o.asset, chainID, ErrNoFeed)
	}

	parsed, err := AggregatorABI()
	if err != nil {
		return model.PriceSnapshot{}, fmt.Errorf("parse aggregator abi: %w", err)
	}
	agg := &aggregator{address: addr, abi: parsed, call: o.callWithRetry}

	decimals, err := agg.decimals(ctx)
	if err != nil {
		return model.PriceSnapshot{}, err
	}
	latest, err := agg.latestRound(ctx)
	if err != nil {
		return model.PriceSnapshot{}, err
	}

	var target uint64
	if latest.UpdatedAt > oneDay {
		target = latest.UpdatedAt - oneDay
	}
	past, err := findRoundAt(ctx, agg, latest, target)
	if err != nil {
		return model.PriceSnapshot{}, fmt.Errorf("one day ago round: %w", err)
	}

	now := scaleAnswer(latest.Answer, decimals)
	before := scaleAnswer(past.Answer, decimals)

	o.logger.Debug("price read",
		zap.String("asset", string(o.asset)),
		zap.Uint64("chain_id", chainID),
		zap.String("feed", addr.Hex()),
		zap.String("price", now.String()),
	)

	return model.PriceSnapshot{
		ChainID:        chainID,
		Asset:          o.asset,
		Price:          now,
		OneDayAgoPrice: before,
		PercentChange:  model.PercentChange(now, before),
		UpdatedAt:      latest.UpdatedAt,
	}, nil
}

func (o *ChainlinkOracle) callWithRetry(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var resp []byte
	err := retry.Do(
		func() error {
			var err error
			resp, err = o.caller.CallContract(ctx, msg, nil)
			return err
		},
		retry.Attempts(uint(o.cfg.MaxRetries+1)),
		retry.Delay(o.cfg.RetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Warn("aggregator call failed", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	return resp, err
}

func scaleAnswer(answer *big.Int, decimals uint8) decimal.Decimal {
	if answer == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(answer, -int32(decimals))
}

// Round is one aggregator answer.
type Round struct {
	ID        *big.Int
	Answer    *big.Int
	UpdatedAt uint64
}

type roundSource interface {
	round(ctx context.Context, id *big.Int) (Round, error)
}

type aggregator struct {
	address common.Address
	abi     abi.ABI
	call    func(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

func (a *aggregator) invoke(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := a.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := a.call(ctx, ethereum.CallMsg{To: &a.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := a.abi.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (a *aggregator) decimals(ctx context.Context) (uint8, error) {
	values, err := a.invoke(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals unexpected type %T", values[0])
	}
	return d, nil
}

func (a *aggregator) latestRound(ctx context.Context) (Round, error) {
	values, err := a.invoke(ctx, "latestRoundData")
	if err != nil {
		return Round{}, err
	}
	return roundFromValues(values)
}

func (a *aggregator) round(ctx context.Context, id *big.Int) (Round, error) {
	values, err := a.invoke(ctx, "getRoundData", id)
	if err != nil {
		return Round{}, err
	}
	return roundFromValues(values)
}

func roundFromValues(values []interface{}) (Round, error) {
	if len(values) != 5 {
		return Round{}, fmt.Errorf("round data size %d", len(values))
	}
	id, ok := values[0].(*big.Int)
	if !ok {
		return Round{}, fmt.Errorf("round id unexpected type %T", values[0])
	}
	answer, ok := values[1].(*big.Int)
	if !ok {
		return Round{}, fmt.Errorf("answer unexpected type %T", values[1])
	}
	updatedAt, ok := values[3].(*big.Int)
	if !ok {
		return Round{}, fmt.Errorf("updatedAt unexpected type %T", values[3])
	}
	return Round{ID: id, Answer: answer, UpdatedAt: updatedAt.Uint64()}, nil
}

const phaseOffset = 64

func splitRoundID(id *big.Int) (phase uint64, aggRound uint64) {
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), phaseOffset), big.NewInt(1))
	phase = new(big.Int).Rsh(id, phaseOffset).Uint64()
	aggRound = new(big.Int).And(id, mask).Uint64()
	return phase, aggRound
}

func composeRoundID(phase, aggRound uint64) *big.Int {
	id := new(big.Int).Lsh(new(big.Int).SetUint64(phase), phaseOffset)
	return id.Or(id, new(big.Int).SetUint64(aggRound))
}

// findRoundAt returns the newest round of latest's phase updated at or before
// target. When the phase starts after target its first round is returned.
func findRoundAt(ctx context.Context, src roundSource, latest Round, target uint64) (Round, error) {
	if latest.UpdatedAt <= target {
		return latest, nil
	}

	phase, hi := splitRoundID(latest.ID)
	lo := uint64(1)
	var (
		best  Round
		found bool
	)
	for lo <= hi {
		mid := lo + (hi-lo)/2
		rd, err := src.round(ctx, composeRoundID(phase, mid))
		if err != nil {
			return Round{}, err
		}
		if rd.UpdatedAt != 0 && rd.UpdatedAt <= target {
			best = rd
			found = true
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if found {
		return best, nil
	}
	return src.round(ctx, composeRoundID(phase, 1))
}
