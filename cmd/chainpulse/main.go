package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "chainpulse",
		Short:        "Chain state updater: latest blocks and asset prices",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", "", "optional .env file loaded before the environment is read")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the updater until interrupted",
		RunE:  runUpdater,
	}

	runCmd.Flags().String("rpc-url", "", "RPC URL of the active chain")
	runCmd.Flags().Uint64("active-chain", 0, "active chain id, 0 means detect from RPC")
	runCmd.Flags().String("account", "", "connected account address")
	runCmd.Flags().Bool("interactive", true, "interactive session (enables the swap helper)")
	runCmd.Flags().Duration("debounce", 100*time.Millisecond, "quiet window before publishing block state")
	runCmd.Flags().Duration("price-interval", 600*time.Second, "price poll clock period")
	runCmd.Flags().Duration("reload-delay", 1500*time.Millisecond, "delay before reloading after a network change")
	runCmd.Flags().Duration("head-poll-interval", 4*time.Second, "block polling period for RPC without subscriptions")
	runCmd.Flags().Duration("network-poll-interval", 5*time.Second, "chain id probe period")
	runCmd.Flags().StringSlice("helper-chains", []string{"137"}, "chain ids allowed to initialize the swap helper")
	runCmd.Flags().Bool("guard-stale-prices", true, "drop price results for a chain that is no longer active")
	runCmd.Flags().Int("max-retries", 3, "maximum retry attempts for oracle reads")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("out", "", "optional JSONL journal of published actions")
	runCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for published state")
	runCmd.Flags().String("http-addr", "", "optional status API listen address")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Fetch native and secondary asset prices once",
		RunE:  runPrice,
	}

	priceCmd.Flags().String("rpc-url", "", "RPC URL")
	priceCmd.Flags().Uint64("active-chain", 0, "chain id, 0 means detect from RPC")
	priceCmd.Flags().Int("max-retries", 3, "maximum retry attempts for oracle reads")
	priceCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	priceCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(priceCmd)

	blockCmd := &cobra.Command{
		Use:   "block",
		Short: "Print the chain id and latest block number once",
		RunE:  runBlock,
	}

	blockCmd.Flags().String("rpc-url", "", "RPC URL")
	blockCmd.Flags().Uint64("active-chain", 0, "chain id, 0 means detect from RPC")
	blockCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(blockCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
