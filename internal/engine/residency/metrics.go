package residency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	residentNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "surfelview_resident_nodes",
		Help: "The number of nodes with loaded blocks.",
	})

	loadedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "surfelview_loaded_bytes",
		Help: "The memory held by loaded point blocks.",
	})

	blockLoadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "surfelview_block_loads_total",
		Help: "The total number of point blocks loaded.",
	})

	acquireFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "surfelview_acquire_failures_total",
		Help: "The total number of failed node acquisitions.",
	})
)

func instrumentLoad(blocks int, bytes int64) {
	residentNodes.Inc()
	loadedBytes.Add(float64(bytes))
	blockLoadsTotal.Add(float64(blocks))
}

func instrumentFree(bytes int64) {
	residentNodes.Dec()
	loadedBytes.Sub(float64(bytes))
}

func instrumentAcquireFailure() {
	acquireFailuresTotal.Inc()
}
