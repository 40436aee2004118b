package updater

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the updater.
const Namespace = "chainpulse"

type metrics struct {
	BlocksObserved     prometheus.Counter
	StaleBlocks        prometheus.Counter
	BlockFetchFailures prometheus.Counter
	Published          prometheus.Counter
	PublishErrors      prometheus.Counter
	PriceFetches       *prometheus.CounterVec
	PriceFailures      *prometheus.CounterVec
	StalePrices        prometheus.Counter
	ReloadsScheduled   prometheus.Counter
	HelperInits        prometheus.Counter
	Resubscribes       *prometheus.CounterVec
	LatestBlock        prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "updater"

	return metrics{
		BlocksObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "blocks_observed_total",
			Help:      "block numbers accepted for the active chain",
		}),
		StaleBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "stale_blocks_total",
			Help:      "block numbers discarded because they belong to an abandoned chain",
		}),
		BlockFetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "block_fetch_failures_total",
			Help:      "failed one-shot block number requests",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "published_total",
			Help:      "actions dispatched to the shared store",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "publish_errors_total",
			Help:      "store dispatches that returned an error",
		}),
		PriceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "price_fetches_total",
			Help:      "price fetches started, by asset",
		}, []string{"asset"}),
		PriceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "price_failures_total",
			Help:      "price fetches that failed, by asset",
		}, []string{"asset"}),
		StalePrices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "stale_prices_total",
			Help:      "price results discarded because the active chain changed",
		}),
		ReloadsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "reloads_scheduled_total",
			Help:      "session reloads scheduled after a network change",
		}),
		HelperInits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "swap_helper_inits_total",
			Help:      "swap helper initializations",
		}),
		Resubscribes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "resubscribes_total",
			Help:      "listener subscriptions re-established after a failure, by event",
		}, []string{"event"}),
		LatestBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "latest_block",
			Help:      "last block number published to the store",
		}),
	}
}

// Metrics returns the prometheus collectors of the updater.
func (u *Updater) Metrics() []prometheus.Collector {
	m := u.metrics
	return []prometheus.Collector{
		m.BlocksObserved,
		m.StaleBlocks,
		m.BlockFetchFailures,
		m.Published,
		m.PublishErrors,
		m.PriceFetches,
		m.PriceFailures,
		m.StalePrices,
		m.ReloadsScheduled,
		m.HelperInits,
		m.Resubscribes,
		m.LatestBlock,
	}
}
