package exchange

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics tracks per-Exchange counters, grounded on the
// dataobj/consumer.partitionOffsetMetrics shape: one struct of pre-built
// collectors, registered once at construction time.
type metrics struct {
	batchesInserted prometheus.Counter
	batchesReceived prometheus.Counter
	wouldBlockTotal prometheus.Counter
	failuresTotal   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, edgeID int64) *metrics {
	labels := prometheus.Labels{"edge_id": strconv.FormatInt(edgeID, 10)}
	m := &metrics{
		batchesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tablemesh_exchange_batches_inserted_total",
			Help:        "Total number of batches locally inserted into an all-to-all exchange.",
			ConstLabels: labels,
		}),
		batchesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tablemesh_exchange_batches_received_total",
			Help:        "Total number of batches received from peers on an all-to-all exchange.",
			ConstLabels: labels,
		}),
		wouldBlockTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tablemesh_exchange_would_block_total",
			Help:        "Total number of Insert calls that returned ErrWouldBlock due to the high-water mark.",
			ConstLabels: labels,
		}),
		failuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tablemesh_exchange_failures_total",
			Help:        "Total number of transport failures observed by an all-to-all exchange.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.batchesInserted, m.batchesReceived, m.wouldBlockTotal, m.failuresTotal} {
			// Registration failure (e.g. a duplicate edge id sharing a
			// registerer) is not fatal to the exchange itself; metrics are
			// best-effort observability, not a correctness dependency.
			_ = reg.Register(c)
		}
	}
	return m
}
