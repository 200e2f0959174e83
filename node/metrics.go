package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the node's operational gauges and counters.
type Metrics struct {
	Height          prometheus.Gauge
	BlocksCommitted prometheus.Counter
	TxsAdmitted     prometheus.Counter
	TxsRejected     prometheus.Counter
	ConnectedPeers  prometheus.Gauge
	NeedSync        prometheus.Counter
	ProposalsMade   prometheus.Counter
	ProposalsBad    prometheus.Counter
}

// newMetrics registers the node metric set on reg. A nil reg registers on a
// throwaway registry so metric updates stay cheap no-ops in tests.
func newMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		Height: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "minichain",
			Name:      "chain_height",
			Help:      "Height of the local committed tip.",
		}),
		BlocksCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minichain",
			Name:      "blocks_committed_total",
			Help:      "Blocks committed locally, including synced ones.",
		}),
		TxsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minichain",
			Name:      "txs_admitted_total",
			Help:      "Transactions admitted to the mempool.",
		}),
		TxsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minichain",
			Name:      "txs_rejected_total",
			Help:      "Transactions rejected at admission.",
		}),
		ConnectedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "minichain",
			Name:      "connected_peers",
			Help:      "Currently connected peers, inbound plus outbound.",
		}),
		NeedSync: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minichain",
			Name:      "need_sync_total",
			Help:      "Times the node detected it was behind and requested catch-up.",
		}),
		ProposalsMade: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minichain",
			Name:      "proposals_made_total",
			Help:      "Blocks proposed by this node as leader.",
		}),
		ProposalsBad: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minichain",
			Name:      "proposals_rejected_total",
			Help:      "Inbound proposals dropped by validation.",
		}),
	}
}
