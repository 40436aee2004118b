// Package updater keeps the shared store in sync with the active chain.
//
// An Updater is an actor. A single loop goroutine, started by Run, owns the
// local observation state, the poll clock and the subscription scope. RPC
// callbacks, timers and asynchronous results are posted into its inbox.
package updater

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"

	"chainPulse/internal/debounce"
	"chainPulse/internal/model"
	"chainPulse/internal/store"
	"chainPulse/internal/swaphelper"
)

// ErrReload is the cancellation cause used when a network change requires a
// fresh session.
var ErrReload = errors.New("network changed, session reload requested")

// BlockSource is the RPC surface the updater listens to.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	SubscribeBlocks(ctx context.Context, sink func(uint64)) (event.Subscription, error)
	SubscribeNetwork(ctx context.Context, sink func(newNetwork model.Network, oldNetwork *model.Network)) (event.Subscription, error)
	Backend() bind.ContractBackend
}

// PriceFetcher returns the USD snapshot of one asset on a chain.
type PriceFetcher interface {
	Price(ctx context.Context, chainID uint64) (model.PriceSnapshot, error)
}

// HelperFactory builds the swap helper for a chain and account.
type HelperFactory func(backend bind.ContractBackend, chainID uint64, account common.Address) (*swaphelper.Helper, error)

// Options holds the timing and gating settings of an Updater.
type Options struct {
	Debounce         time.Duration
	PriceInterval    time.Duration
	ReloadDelay      time.Duration
	ResubscribeDelay time.Duration
	HelperChains     []uint64
	Interactive      bool
	GuardStalePrices bool
	Hidden           bool
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		Debounce:         100 * time.Millisecond,
		PriceInterval:    600 * time.Second,
		ReloadDelay:      1500 * time.Millisecond,
		ResubscribeDelay: 2 * time.Second,
		HelperChains:     []uint64{137},
		Interactive:      true,
		GuardStalePrices: true,
	}
}

// Deps are the collaborators of an Updater. Only Store is required.
type Deps struct {
	Store     store.Store
	Native    PriceFetcher
	Secondary PriceFetcher
	Helpers   HelperFactory
	OnReload  func()
	Logger    *zap.Logger
}

// Updater tracks block numbers and prices for the active chain.
type Updater struct {
	opts    Options
	deps    Deps
	logger  *zap.Logger
	metrics metrics

	inbox chan func()
	done  chan struct{}

	now       func() time.Time
	afterFunc func(d time.Duration, f func())

	ctx context.Context

	// owned by the loop goroutine
	active    uint64
	source    BlockSource
	account   common.Address
	visible   bool
	state     model.ChainObservation
	pending   *debounce.Debouncer[model.ChainObservation]
	scope     *event.SubscriptionScope
	stop      chan struct{}
	pollClock int64
}

// New builds an Updater. Call Run to start it.
func New(opts Options, deps Deps) *Updater {
	defaults := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = defaults.Debounce
	}
	if opts.PriceInterval <= 0 {
		opts.PriceInterval = defaults.PriceInterval
	}
	if opts.ReloadDelay <= 0 {
		opts.ReloadDelay = defaults.ReloadDelay
	}
	if opts.ResubscribeDelay <= 0 {
		opts.ResubscribeDelay = defaults.ResubscribeDelay
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Updater{
		opts:    opts,
		deps:    deps,
		logger:  logger,
		metrics: newMetrics(),
		inbox:   make(chan func(), 256),
		done:    make(chan struct{}),
		now:     time.Now,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		ctx:     context.Background(),
		visible: !opts.Hidden,
		pending: debounce.New[model.ChainObservation](opts.Debounce),
	}
}

// SetActive switches the updater to chainID served by src. A zero chainID
// or nil src detaches all listeners.
func (u *Updater) SetActive(chainID uint64, src BlockSource) {
	u.post(func() { u.setActive(chainID, src) })
}

// SetAccount records the connected account. The zero address means none.
func (u *Updater) SetAccount(account common.Address) {
	u.post(func() { u.setAccount(account) })
}

// SetVisible toggles whether the session is in the foreground.
func (u *Updater) SetVisible(visible bool) {
	u.post(func() { u.setVisible(visible) })
}

// Run drives the updater until ctx is done.
func (u *Updater) Run(ctx context.Context) error {
	if u.deps.Store == nil {
		return errors.New("store is nil")
	}
	u.ctx = ctx
	defer close(u.done)
	defer u.release()

	u.pollClock = u.gridTime(u.now())

	ticker := time.NewTicker(u.opts.PriceInterval)
	defer ticker.Stop()

	flush := time.NewTimer(time.Hour)
	stopTimer(flush)
	defer flush.Stop()
	var armed time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-u.inbox:
			fn()
		case now := <-ticker.C:
			u.advancePollClock(now)
		case <-flush.C:
			armed = time.Time{}
			u.flush(u.now())
		}

		if deadline, ok := u.pending.Deadline(); ok && !deadline.Equal(armed) {
			stopTimer(flush)
			flush.Reset(deadline.Sub(u.now()))
			armed = deadline
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func (u *Updater) post(fn func()) {
	select {
	case u.inbox <- fn:
	case <-u.done:
	}
}

// postScoped drops fn once the activation owning stop has been released, so
// producers never block on a loop that is tearing them down.
func (u *Updater) postScoped(stop <-chan struct{}, fn func()) {
	select {
	case u.inbox <- fn:
	case <-stop:
	case <-u.done:
	}
}

func (u *Updater) setActive(chainID uint64, src BlockSource) {
	changed := chainID != u.active
	swapped := src != u.source
	u.active = chainID
	u.source = src

	if changed {
		u.logger.Info("active chain changed", zap.Uint64("chain_id", chainID))
		u.resetState()
	}
	u.activate()
	if changed {
		u.fetchPrices()
	}
	// the helper is bound to the source's backend
	if changed || swapped {
		u.initHelper()
	}
}

func (u *Updater) setAccount(account common.Address) {
	if account == u.account {
		return
	}
	u.account = account
	u.initHelper()
}

func (u *Updater) setVisible(visible bool) {
	if visible == u.visible {
		return
	}
	u.visible = visible
	u.logger.Debug("visibility changed", zap.Bool("visible", visible))
	if visible {
		u.activate()
		return
	}
	u.release()
}

func (u *Updater) resetState() {
	u.state = model.NewChainObservation(u.active)
	u.pending.Push(u.now(), u.state)
}

// activate releases the previous listeners and, when the session is
// visible, starts block tracking for the active chain.
func (u *Updater) activate() {
	u.release()
	if u.source == nil || u.active == 0 || !u.visible {
		return
	}

	u.resetState()

	chainID := u.active
	src := u.source
	stop := make(chan struct{})
	u.stop = stop
	u.scope = new(event.SubscriptionScope)

	u.fetchBlockNumber(chainID, src)
	u.subscribeBlocks(chainID, src, stop)
	u.subscribeNetwork(chainID, src, stop)
}

// fetchBlockNumber posts the current block number of src. The result is not
// scoped; onBlock drops it when the chain changed meanwhile.
func (u *Updater) fetchBlockNumber(chainID uint64, src BlockSource) {
	ctx := u.ctx
	go func() {
		number, err := src.BlockNumber(ctx)
		if err != nil {
			u.metrics.BlockFetchFailures.Inc()
			u.logger.Warn("failed to get block number", zap.Uint64("chain_id", chainID), zap.Error(err))
			return
		}
		u.post(func() { u.onBlock(chainID, number) })
	}()
}

func (u *Updater) subscribeBlocks(chainID uint64, src BlockSource, stop chan struct{}) {
	// heads missed while the subscription was down are covered by a fresh
	// block number fetch
	retry := func() {
		u.fetchBlockNumber(chainID, src)
		u.subscribeBlocks(chainID, src, stop)
	}
	sub, err := src.SubscribeBlocks(u.ctx, func(number uint64) {
		u.postScoped(stop, func() { u.onBlock(chainID, number) })
	})
	if err != nil {
		u.logger.Warn("subscribe blocks failed", zap.Uint64("chain_id", chainID), zap.Error(err))
		u.resubscribeLater(stop, retry)
		return
	}
	u.watch(u.scope.Track(sub), "block", chainID, stop, retry)
}

func (u *Updater) subscribeNetwork(chainID uint64, src BlockSource, stop chan struct{}) {
	retry := func() { u.subscribeNetwork(chainID, src, stop) }
	sub, err := src.SubscribeNetwork(u.ctx, func(newNetwork model.Network, oldNetwork *model.Network) {
		u.postScoped(stop, func() { u.onNetwork(newNetwork, oldNetwork) })
	})
	if err != nil {
		u.logger.Warn("subscribe network failed", zap.Uint64("chain_id", chainID), zap.Error(err))
		u.resubscribeLater(stop, retry)
		return
	}
	u.watch(u.scope.Track(sub), "network", chainID, stop, retry)
}

// watch resubscribes after ResubscribeDelay when sub fails. A released
// subscription closes its error channel and is left alone.
func (u *Updater) watch(sub event.Subscription, name string, chainID uint64, stop chan struct{}, retry func()) {
	go func() {
		err, ok := <-sub.Err()
		if !ok || err == nil {
			return
		}
		u.logger.Warn("subscription failed, resubscribing",
			zap.String("event", name),
			zap.Uint64("chain_id", chainID),
			zap.Duration("delay", u.opts.ResubscribeDelay),
			zap.Error(err),
		)
		u.metrics.Resubscribes.WithLabelValues(name).Inc()
		u.resubscribeLater(stop, retry)
	}()
}

// resubscribeLater runs retry on the loop unless the activation owning stop
// has been released by then.
func (u *Updater) resubscribeLater(stop chan struct{}, retry func()) {
	u.afterFunc(u.opts.ResubscribeDelay, func() {
		u.postScoped(stop, func() {
			if u.stop != stop {
				return
			}
			retry()
		})
	})
}

func (u *Updater) release() {
	if u.stop != nil {
		close(u.stop)
		u.stop = nil
	}
	if u.scope != nil {
		u.scope.Close()
		u.scope = nil
	}
}

// onBlock applies a candidate block number captured for chainID.
func (u *Updater) onBlock(chainID uint64, number uint64) {
	if chainID != u.state.ChainID {
		u.metrics.StaleBlocks.Inc()
		u.logger.Debug("discard stale block", zap.Uint64("chain_id", chainID), zap.Uint64("active", u.state.ChainID), zap.Uint64("block", number))
		return
	}
	u.metrics.BlocksObserved.Inc()
	u.state = u.state.WithBlock(number)
	u.pending.Push(u.now(), u.state)
}

func (u *Updater) onNetwork(newNetwork model.Network, oldNetwork *model.Network) {
	if oldNetwork == nil {
		u.logger.Debug("network detected", zap.Uint64("chain_id", newNetwork.ChainID), zap.String("name", newNetwork.Name))
		return
	}
	u.logger.Warn("network changed, scheduling reload",
		zap.Uint64("from", oldNetwork.ChainID),
		zap.Uint64("to", newNetwork.ChainID),
		zap.Duration("delay", u.opts.ReloadDelay),
	)
	u.metrics.ReloadsScheduled.Inc()
	u.afterFunc(u.opts.ReloadDelay, u.reload)
}

func (u *Updater) reload() {
	if u.deps.OnReload == nil {
		u.logger.Warn("reload requested but no handler is set")
		return
	}
	u.deps.OnReload()
}

// flush publishes the settled observation when it is complete and the
// session is visible.
func (u *Updater) flush(now time.Time) {
	obs, ok := u.pending.Settle(now)
	if !ok || !obs.Publishable() || !u.visible {
		return
	}
	if u.dispatch(store.SetLatestBlock{ChainID: obs.ChainID, BlockNumber: *obs.BlockNumber}) {
		u.metrics.LatestBlock.Set(float64(*obs.BlockNumber))
	}
}

func (u *Updater) gridTime(now time.Time) int64 {
	return now.Truncate(u.opts.PriceInterval).Unix()
}

// advancePollClock moves the poll clock forward and refreshes prices. Every
// tick advances it by at least one interval, so a late tick landing in the
// next grid cell does not swallow the one after it.
func (u *Updater) advancePollClock(now time.Time) {
	tick := u.gridTime(now)
	if tick <= u.pollClock {
		tick = u.pollClock + int64(u.opts.PriceInterval/time.Second)
	}
	u.pollClock = tick
	u.fetchPrices()
}

func (u *Updater) fetchPrices() {
	if u.active == 0 || u.state.ChainID != u.active {
		return
	}
	u.fetchPrice(model.AssetNative, u.deps.Native)
	u.fetchPrice(model.AssetSecondary, u.deps.Secondary)
}

func (u *Updater) fetchPrice(asset model.Asset, fetcher PriceFetcher) {
	if fetcher == nil {
		return
	}
	chainID := u.active
	ctx := u.ctx
	u.metrics.PriceFetches.WithLabelValues(string(asset)).Inc()

	go func() {
		snap, err := fetcher.Price(ctx, chainID)
		if err != nil {
			u.metrics.PriceFailures.WithLabelValues(string(asset)).Inc()
			u.logger.Warn("price fetch failed", zap.String("asset", string(asset)), zap.Uint64("chain_id", chainID), zap.Error(err))
			return
		}
		snap.ChainID = chainID
		snap.Asset = asset
		u.post(func() { u.applyPrice(snap) })
	}()
}

func (u *Updater) applyPrice(snap model.PriceSnapshot) {
	if u.opts.GuardStalePrices && snap.ChainID != u.active {
		u.metrics.StalePrices.Inc()
		u.logger.Debug("discard stale price", zap.String("asset", string(snap.Asset)), zap.Uint64("chain_id", snap.ChainID), zap.Uint64("active", u.active))
		return
	}
	u.dispatch(store.SetPrice(snap))
}

// initHelper builds the swap helper when the session is interactive and the
// active chain is allowed. Callers invoke it only on chain or account change.
func (u *Updater) initHelper() {
	if !u.opts.Interactive || u.deps.Helpers == nil || u.source == nil {
		return
	}
	if !slices.Contains(u.opts.HelperChains, u.active) {
		return
	}

	u.logger.Info("initiating swap helper", zap.Uint64("chain_id", u.active), zap.String("account", u.account.Hex()))
	helper, err := u.deps.Helpers(u.source.Backend(), u.active, u.account)
	if err != nil {
		u.logger.Warn("swap helper init failed", zap.Uint64("chain_id", u.active), zap.Error(err))
		return
	}
	u.metrics.HelperInits.Inc()
	u.dispatch(store.SetSwapHelper{ChainID: u.active, Account: u.account, Helper: helper})
}

func (u *Updater) dispatch(action store.Action) bool {
	if err := u.deps.Store.Dispatch(u.ctx, action); err != nil {
		u.metrics.PublishErrors.Inc()
		u.logger.Warn("store dispatch failed", zap.String("action", action.Type()), zap.Error(err))
		return false
	}
	u.metrics.Published.Inc()
	return true
}
