package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"chainPulse/internal/chain"
	"chainPulse/internal/config"
	"chainPulse/internal/model"
	"chainPulse/internal/price"
)

type priceReport struct {
	ChainID   uint64               `json:"chainId"`
	Native    *model.PriceSnapshot `json:"native,omitempty"`
	Secondary *model.PriceSnapshot `json:"secondary,omitempty"`
}

type blockReport struct {
	ChainID     uint64 `json:"chainId"`
	Network     string `json:"network"`
	BlockNumber uint64 `json:"blockNumber"`
}

func runPrice(cmd *cobra.Command, _ []string) error {
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

	feeds, err := price.ParseFeeds(cfg.Feeds)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, chainID, err := dialOnce(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	oracleCfg := price.OracleConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}

	report := priceReport{ChainID: chainID}
	var errs error
	for _, asset := range []model.Asset{model.AssetNative, model.AssetSecondary} {
		snap, err := price.NewChainlinkOracle(client, asset, feeds, oracleCfg, logger).Price(ctx, chainID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s price: %w", asset, err))
			continue
		}
		switch asset {
		case model.AssetNative:
			report.Native = &snap
		case model.AssetSecondary:
			report.Secondary = &snap
		}
	}

	if report.Native != nil || report.Secondary != nil {
		if err := writeJSON(cmd, report); err != nil {
			return err
		}
	}
	return errs
}

func runBlock(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, chainID, err := dialOnce(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	number, err := client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}

	return writeJSON(cmd, blockReport{
		ChainID:     chainID,
		Network:     model.NetworkFor(chainID).Name,
		BlockNumber: number,
	})
}

func dialOnce(ctx context.Context, cfg config.Config) (*chain.Client, uint64, error) {
	url, ok := cfg.Endpoint(cfg.ActiveChain)
	if !ok {
		return nil, 0, fmt.Errorf("rpc url is required")
	}

	client, err := chain.NewClient(ctx, url, chain.Options{})
	if err != nil {
		return nil, 0, fmt.Errorf("connect rpc: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, 0, fmt.Errorf("chain id: %w", err)
	}
	return client, chainID, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
