package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainPulse/internal/api"
	"chainPulse/internal/chain"
	"chainPulse/internal/config"
	"chainPulse/internal/model"
	"chainPulse/internal/price"
	"chainPulse/internal/storage"
	"chainPulse/internal/storage/postgres"
	"chainPulse/internal/store"
	"chainPulse/internal/swaphelper"
	"chainPulse/internal/updater"
)

func runUpdater(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	account, err := parseAccount(cfg.Account)
	if err != nil {
		return err
	}
	feeds, err := price.ParseFeeds(cfg.Feeds)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mem := store.NewMemory()
	sinks := store.Fanout{mem}
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		sinks = append(sinks, pg)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.HTTPAddr != "" {
		server := api.NewServer(mem, registry, logger)
		go func() {
			if err := server.Run(ctx, cfg.HTTPAddr); err != nil {
				logger.Error("status api stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("updater start",
		zap.Uint64("active_chain", cfg.ActiveChain),
		zap.Uint64s("configured_chains", cfg.Chains()),
		zap.Bool("interactive", cfg.Interactive),
		zap.Duration("debounce", cfg.Debounce),
		zap.Duration("price_interval", cfg.PriceInterval),
		zap.Uint64s("helper_chains", cfg.HelperChains),
		zap.Bool("guard_stale_prices", cfg.GuardStalePrices),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	s := &session{
		cfgFile:  cfgFile,
		cmd:      cmd,
		cfg:      cfg,
		account:  account,
		feeds:    feeds,
		store:    sinks,
		registry: registry,
		logger:   logger,
	}

	for {
		err := s.run(ctx)
		if errors.Is(err, updater.ErrReload) {
			logger.Info("session reload")
			continue
		}
		return err
	}
}

// session owns one updater and the RPC clients it has been handed. A reload
// discards the session and starts a new one from the current config.
type session struct {
	cfgFile  string
	cmd      *cobra.Command
	cfg      config.Config
	account  common.Address
	feeds    map[uint64]price.Feeds
	store    store.Store
	registry *prometheus.Registry
	logger   *zap.Logger

	mu      sync.Mutex
	clients []*chain.Client
	callers map[uint64]price.Caller
}

func (s *session) run(parent context.Context) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	defer s.closeClients()

	cfg, account := s.snapshot()
	client, chainID, err := s.dial(ctx, cfg, cfg.ActiveChain)
	if err != nil {
		return err
	}

	u := updater.New(updater.Options{
		Debounce:         cfg.Debounce,
		PriceInterval:    cfg.PriceInterval,
		ReloadDelay:      cfg.ReloadDelay,
		HelperChains:     cfg.HelperChains,
		Interactive:      cfg.Interactive,
		GuardStalePrices: cfg.GuardStalePrices,
	}, updater.Deps{
		Store:     s.store,
		Native:    s.prices(model.AssetNative),
		Secondary: s.prices(model.AssetSecondary),
		Helpers:   swaphelper.New,
		OnReload:  func() { cancel(updater.ErrReload) },
		Logger:    s.logger,
	})

	for _, c := range u.Metrics() {
		if err := s.registry.Register(c); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		defer s.registry.Unregister(c)
	}

	u.SetActive(chainID, client)
	u.SetAccount(account)

	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
	defer signal.Stop(signals)
	go s.handleSignals(ctx, u, signals)

	err = u.Run(ctx)
	if errors.Is(context.Cause(ctx), updater.ErrReload) {
		return updater.ErrReload
	}
	if parent.Err() != nil {
		return nil
	}
	return err
}

func (s *session) handleSignals(ctx context.Context, u *updater.Updater, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			switch sig {
			case syscall.SIGUSR1:
				s.logger.Info("session hidden")
				u.SetVisible(false)
			case syscall.SIGUSR2:
				s.logger.Info("session visible")
				u.SetVisible(true)
			case syscall.SIGHUP:
				if err := s.switchTo(ctx, u); err != nil {
					s.logger.Warn("config reload failed", zap.Error(err))
				}
			}
		}
	}
}

// switchTo re-reads the config and hands the updater the chain and account
// it now names.
func (s *session) switchTo(ctx context.Context, u *updater.Updater) error {
	cfg, err := config.Load(s.cfgFile, s.cmd.Flags())
	if err != nil {
		return err
	}
	account, err := parseAccount(cfg.Account)
	if err != nil {
		return err
	}
	prev, prevAccount := s.snapshot()

	if cfg.ActiveChain != 0 && cfg.ActiveChain != prev.ActiveChain {
		client, chainID, err := s.dial(ctx, cfg, cfg.ActiveChain)
		if err != nil {
			return err
		}
		s.logger.Info("switching chain", zap.Uint64("chain_id", chainID))
		u.SetActive(chainID, client)
	}
	if account != prevAccount {
		s.logger.Info("switching account", zap.String("account", account.Hex()))
		u.SetAccount(account)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.account = account
	s.mu.Unlock()
	return nil
}

func (s *session) snapshot() (config.Config, common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.account
}

// dial connects to the endpoint serving chainID and returns the chain id the
// RPC reports. A zero chainID uses the default endpoint.
func (s *session) dial(ctx context.Context, cfg config.Config, chainID uint64) (*chain.Client, uint64, error) {
	url, ok := cfg.Endpoint(chainID)
	if !ok {
		return nil, 0, fmt.Errorf("no rpc endpoint for chain %d", chainID)
	}

	client, err := chain.NewClient(ctx, url, chain.Options{
		HeadPollInterval:    cfg.HeadPollInterval,
		NetworkPollInterval: cfg.NetworkPollInterval,
		Logger:              s.logger,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("connect rpc: %w", err)
	}

	actual, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, 0, fmt.Errorf("chain id: %w", err)
	}
	if chainID != 0 && actual != chainID {
		s.logger.Warn("rpc serves a different chain",
			zap.Uint64("configured", chainID),
			zap.Uint64("actual", actual),
		)
	}

	s.mu.Lock()
	s.clients = append(s.clients, client)
	if s.callers == nil {
		s.callers = make(map[uint64]price.Caller)
	}
	s.callers[actual] = client
	s.mu.Unlock()

	return client, actual, nil
}

// prices returns the fetcher of asset. Each read goes to the client dialed
// for the chain it was issued for, never to a newer one.
func (s *session) prices(asset model.Asset) updater.PriceFetcher {
	return sessionPrices{session: s, asset: asset}
}

type sessionPrices struct {
	session *session
	asset   model.Asset
}

func (p sessionPrices) Price(ctx context.Context, chainID uint64) (model.PriceSnapshot, error) {
	s := p.session
	s.mu.Lock()
	caller, ok := s.callers[chainID]
	cfg := s.cfg
	s.mu.Unlock()
	if !ok {
		return model.PriceSnapshot{}, fmt.Errorf("no rpc client for chain %d", chainID)
	}

	oracle := price.NewChainlinkOracle(caller, p.asset, s.feeds, price.OracleConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, s.logger)
	return oracle.Price(ctx, chainID)
}

// closeClients closes every client dialed during the session. Superseded
// clients stay open until then since listeners are released asynchronously.
func (s *session) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.Close()
	}
	s.clients = nil
	s.callers = nil
}

func parseAccount(raw string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid account address %q", raw)
	}
	return common.HexToAddress(raw), nil
}
