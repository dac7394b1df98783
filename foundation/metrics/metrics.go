// Package metrics registers the prometheus collectors for the economic
// layer and the RPC surface. The collectors are served by the debug mux.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all prometheus collectors for the node.
type Metrics struct {

	// Chain metrics.
	BlocksSealedTotal prometheus.Counter
	BlockHeight       prometheus.Gauge
	BaseFee           prometheus.Gauge
	GasUsed           prometheus.Gauge
	MempoolDepth      prometheus.Gauge
	TxsAppliedTotal   *prometheus.CounterVec

	// Supply and staking metrics.
	Supply      *prometheus.GaugeVec
	BondedTotal prometheus.Gauge

	// Bridge metrics.
	BridgeVault          prometheus.Gauge
	BridgeTransfersTotal *prometheus.CounterVec

	// Governance metrics.
	GovProposals *prometheus.GaugeVec

	// RPC metrics.
	RPCRequestsTotal *prometheus.CounterVec
	RPCDuration      *prometheus.HistogramVec
}

// New creates and registers all prometheus collectors.
func New() *Metrics {
	return &Metrics{
		BlocksSealedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kaldrix_blocks_sealed_total",
				Help: "Total number of blocks sealed by this node",
			},
		),

		BlockHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kaldrix_block_height",
				Help: "Latest block number known to this node",
			},
		),

		BaseFee: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kaldrix_base_fee",
				Help: "Current base fee per unit of gas",
			},
		),

		GasUsed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kaldrix_gas_used",
				Help: "Gas used by the latest sealed block",
			},
		),

		MempoolDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kaldrix_mempool_depth",
				Help: "Number of transactions waiting in the mempool",
			},
		),

		TxsAppliedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kaldrix_txs_applied_total",
				Help: "Total number of transactions applied to the ledger",
			},
			[]string{"kind", "status"},
		),

		Supply: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kaldrix_supply",
				Help: "Money supply broken down by component",
			},
			[]string{"component"},
		),

		BondedTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kaldrix_bonded_total",
				Help: "Total stake currently bonded",
			},
		),

		BridgeVault: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kaldrix_bridge_vault",
				Help: "Units locked in the bridge vault",
			},
		),

		BridgeTransfersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kaldrix_bridge_transfers_total",
				Help: "Total number of bridge transfers by direction and status",
			},
			[]string{"direction", "status"},
		),

		GovProposals: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kaldrix_gov_proposals",
				Help: "Number of governance proposals by status",
			},
			[]string{"status"},
		),

		RPCRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kaldrix_rpc_requests_total",
				Help: "Total number of JSON-RPC requests served",
			},
			[]string{"method", "status"},
		),

		RPCDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kaldrix_rpc_duration_seconds",
				Help:    "Duration of JSON-RPC requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// RecordBlockSealed records a block this node sealed along with its header
// level gauges.
func (m *Metrics) RecordBlockSealed(number uint64, baseFee uint64, gasUsed uint64) {
	m.BlocksSealedTotal.Inc()
	m.BlockHeight.Set(float64(number))
	m.BaseFee.Set(float64(baseFee))
	m.GasUsed.Set(float64(gasUsed))
}

// RecordTxApplied records a transaction that went through the apply path.
func (m *Metrics) RecordTxApplied(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.TxsAppliedTotal.WithLabelValues(kind, status).Inc()
}

// RecordRPCRequest records a served JSON-RPC request.
func (m *Metrics) RecordRPCRequest(method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// UpdateSupply updates the supply gauges from the current bookkeeping.
func (m *Metrics) UpdateSupply(genesis, minted, burnedFees, burnedPenalties, total uint64) {
	m.Supply.WithLabelValues("genesis").Set(float64(genesis))
	m.Supply.WithLabelValues("minted").Set(float64(minted))
	m.Supply.WithLabelValues("burned_fees").Set(float64(burnedFees))
	m.Supply.WithLabelValues("burned_penalties").Set(float64(burnedPenalties))
	m.Supply.WithLabelValues("total").Set(float64(total))
}

// RecordBridgeTransfer records a bridge transfer reaching a status.
func (m *Metrics) RecordBridgeTransfer(direction, status string) {
	m.BridgeTransfersTotal.WithLabelValues(direction, status).Inc()
}
