package workingset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "surfelview_update_duration_seconds",
		Help:    "The time spent in working set updates.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	idealSetSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "surfelview_ideal_set_nodes",
		Help: "The number of nodes in the last computed ideal set.",
	})

	workingSetCost = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "surfelview_working_set_points",
		Help: "The number of points charged against the budget in the last update.",
	})

	budgetDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "surfelview_budget_drops_total",
		Help: "The total number of nodes dropped to meet the complexity budget.",
	})
)

func instrumentUpdate(res Result) {
	updateDuration.Observe(res.Elapsed.Seconds())
	idealSetSize.Set(float64(len(res.Ideal)))
	workingSetCost.Set(float64(res.Cost))
}

func instrumentBudgetDrops(n int) {
	budgetDropsTotal.Add(float64(n))
}

func instrumentClose() {
	idealSetSize.Set(0)
	workingSetCost.Set(0)
}
