package monitoring

import (
	"net/http"
	"time"

	"github.com/globepay/meshpay/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type TxRejectedReason string

var (
	TxInvalidSignature TxRejectedReason = "invalid_signature"
	TxHashMismatch     TxRejectedReason = "hash_mismatch"
	TxMalformed        TxRejectedReason = "malformed"
	TxLedgerRejected   TxRejectedReason = "ledger_rejected"
	TxRejectedUnknown  TxRejectedReason = "other"
)

type meshPromMetrics struct {
	nodeUpUnixSeconds    prometheus.Gauge
	peerCount            prometheus.Gauge
	pendingTxCount       prometheus.Gauge
	messagesReceived     prometheus.Counter
	messagesDeduplicated prometheus.Counter
	messagesFlooded      prometheus.Counter
	ingressTxCount       prometheus.Counter
	rejectedTxCount      *prometheus.CounterVec
	syncRoundCount       prometheus.Counter
	submittedTxCount     prometheus.Counter
	syncRoundDuration    prometheus.Histogram
	panicCount           prometheus.Counter
}

func newMeshPromMetrics() *meshPromMetrics {
	return &meshPromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meshpay_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		peerCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meshpay_node_peer_count",
				Help: "The current number of active mesh connections",
			},
		),
		pendingTxCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meshpay_node_pending_tx_count",
				Help: "The number of transactions waiting for ledger reconciliation",
			},
		),
		messagesReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshpay_node_gossip_messages_received_total",
				Help: "The total number of gossip messages received from the mesh",
			},
		),
		messagesDeduplicated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshpay_node_gossip_messages_deduplicated_total",
				Help: "The total number of gossip messages dropped as duplicates",
			},
		),
		messagesFlooded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshpay_node_gossip_messages_flooded_total",
				Help: "The total number of gossip messages flooded to peers",
			},
		),
		ingressTxCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshpay_node_ingress_tx_count",
				Help: "The total number of transactions ingested from the mesh",
			},
		),
		rejectedTxCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshpay_node_rejected_tx_count",
				Help: "The total number of rejected transactions",
			},
			[]string{"reason"},
		),
		syncRoundCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshpay_node_sync_round_count",
				Help: "The total number of ledger reconciliation rounds",
			},
		),
		submittedTxCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshpay_node_submitted_tx_count",
				Help: "The total number of transactions submitted to the ledger",
			},
		),
		syncRoundDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "meshpay_node_sync_round_duration_seconds",
				Help: "Duration of one ledger reconciliation round",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshpay_node_panic_count",
				Help: "The total number of recovered panics",
			},
		),
	}
}

var metrics = newMeshPromMetrics()

func SetPeerCount(count int) {
	metrics.peerCount.Set(float64(count))
}

func SetPendingTxCount(count int) {
	metrics.pendingTxCount.Set(float64(count))
}

func IncreaseMessagesReceived() {
	metrics.messagesReceived.Inc()
}

func IncreaseMessagesDeduplicated() {
	metrics.messagesDeduplicated.Inc()
}

func AddMessagesFlooded(count int) {
	metrics.messagesFlooded.Add(float64(count))
}

func IncreaseIngressTxCount() {
	metrics.ingressTxCount.Inc()
}

func IncreaseRejectedTxCount(reason TxRejectedReason) {
	metrics.rejectedTxCount.WithLabelValues(string(reason)).Inc()
}

func IncreaseSyncRoundCount() {
	metrics.syncRoundCount.Inc()
}

func AddSubmittedTxCount(count int) {
	metrics.submittedTxCount.Add(float64(count))
}

func ObserveSyncRoundDuration(d time.Duration) {
	metrics.syncRoundDuration.Observe(d.Seconds())
}

func IncreasePanicCount() {
	metrics.panicCount.Inc()
}

// StartMetricsServer exposes the prometheus registry on addr. Blocks, so run
// it under exception.SafeGo.
func StartMetricsServer(addr string) {
	metrics.nodeUpUnixSeconds.Set(float64(time.Now().Unix()))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logx.Error("MONITORING", "Metrics server stopped: ", err)
	}
}
