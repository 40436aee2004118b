package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL              string
	RPC                 map[uint64]string
	ActiveChain         uint64
	Account             string
	Interactive         bool
	Debounce            time.Duration
	PriceInterval       time.Duration
	ReloadDelay         time.Duration
	HeadPollInterval    time.Duration
	NetworkPollInterval time.Duration
	HelperChains        []uint64
	GuardStalePrices    bool
	Feeds               map[uint64][2]string
	MaxRetries          int
	RetryBackoff        time.Duration
	Out                 string
	PGDSN               string
	HTTPAddr            string
	LogLevel            string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := loadEnvFile(flags); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("CHAINPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("interactive", true)
	v.SetDefault("debounce", 100*time.Millisecond)
	v.SetDefault("price-interval", 600*time.Second)
	v.SetDefault("reload-delay", 1500*time.Millisecond)
	v.SetDefault("head-poll-interval", 4*time.Second)
	v.SetDefault("network-poll-interval", 5*time.Second)
	v.SetDefault("helper-chains", []string{"137"})
	v.SetDefault("guard-stale-prices", true)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	rpc, err := getChainStringMap(v, "rpc")
	if err != nil {
		return Config{}, err
	}
	helperChains, err := parseChainIDs(getStringSlice(v, "helper-chains"))
	if err != nil {
		return Config{}, fmt.Errorf("helper-chains: %w", err)
	}
	feeds, err := getFeeds(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:              v.GetString("rpc-url"),
		RPC:                 rpc,
		ActiveChain:         v.GetUint64("active-chain"),
		Account:             v.GetString("account"),
		Interactive:         v.GetBool("interactive"),
		Debounce:            v.GetDuration("debounce"),
		PriceInterval:       v.GetDuration("price-interval"),
		ReloadDelay:         v.GetDuration("reload-delay"),
		HeadPollInterval:    v.GetDuration("head-poll-interval"),
		NetworkPollInterval: v.GetDuration("network-poll-interval"),
		HelperChains:        helperChains,
		GuardStalePrices:    v.GetBool("guard-stale-prices"),
		Feeds:               feeds,
		MaxRetries:          v.GetInt("max-retries"),
		RetryBackoff:        v.GetDuration("retry-backoff"),
		Out:                 v.GetString("out"),
		PGDSN:               v.GetString("pg-dsn"),
		HTTPAddr:            v.GetString("http-addr"),
		LogLevel:            v.GetString("log-level"),
	}

	return cfg, nil
}

// Endpoint returns the RPC URL serving chainID. A zero chainID selects the
// default endpoint.
func (c Config) Endpoint(chainID uint64) (string, bool) {
	if url, ok := c.RPC[chainID]; ok && url != "" {
		return url, true
	}
	if c.RPCURL != "" {
		return c.RPCURL, true
	}
	if chainID == 0 && len(c.RPC) == 1 {
		for _, url := range c.RPC {
			return url, true
		}
	}
	return "", false
}

// Chains returns the chain ids with a configured endpoint, sorted.
func (c Config) Chains() []uint64 {
	out := make([]uint64, 0, len(c.RPC))
	for id := range c.RPC {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func loadEnvFile(flags *pflag.FlagSet) error {
	path := ""
	if flags != nil {
		if f := flags.Lookup("env-file"); f != nil {
			path = f.Value.String()
		}
	}
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func getChainStringMap(v *viper.Viper, key string) (map[uint64]string, error) {
	out := make(map[uint64]string)
	for rawID, url := range v.GetStringMapString(key) {
		id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid chain id %q", key, rawID)
		}
		out[id] = strings.TrimSpace(url)
	}
	return out, nil
}

func getFeeds(v *viper.Viper) (map[uint64][2]string, error) {
	out := make(map[uint64][2]string)
	for rawID, raw := range v.GetStringMap("feeds") {
		id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("feeds: invalid chain id %q", rawID)
		}
		entry, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("feeds: chain %d must be a map", id)
		}
		var pair [2]string
		if native, ok := entry["native"]; ok {
			pair[0] = strings.TrimSpace(fmt.Sprintf("%v", native))
		}
		if secondary, ok := entry["secondary"]; ok {
			pair[1] = strings.TrimSpace(fmt.Sprintf("%v", secondary))
		}
		out[id] = pair
	}
	return out, nil
}

func parseChainIDs(items []string) ([]uint64, error) {
	out := make([]uint64, 0, len(items))
	for _, item := range items {
		id, err := strconv.ParseUint(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q", item)
		}
		out = append(out, id)
	}
	return out, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
