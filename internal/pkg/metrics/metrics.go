package metrics

import (
	"net/http"

	"ecofusion-backend/internal/pkg/apperr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LifecycleOps counts lifecycle operations by outcome ("ok" or an apperr kind).
	LifecycleOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecofusion",
		Name:      "lifecycle_operations_total",
		Help:      "Lifecycle operations by operation and outcome.",
	}, []string{"op", "outcome"})

	// LedgerCalls counts ledger transactions and reads by method and outcome.
	LedgerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecofusion",
		Name:      "ledger_calls_total",
		Help:      "Ledger calls by contract method and outcome.",
	}, []string{"method", "outcome"})

	// Swept counts rows touched by background sweepers.
	Swept = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecofusion",
		Name:      "sweeper_rows_total",
		Help:      "Rows changed by background sweepers.",
	}, []string{"sweeper"})

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(LifecycleOps, LedgerCalls, Swept)
	registry.MustRegister(collectors.NewGoCollector())
}

// Outcome maps an error to a label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}

// ObserveLifecycle records one lifecycle operation.
func ObserveLifecycle(op string, err error) {
	LifecycleOps.WithLabelValues(op, Outcome(err)).Inc()
}

// ObserveLedger records one ledger call.
func ObserveLedger(method string, err error) {
	LedgerCalls.WithLabelValues(method, Outcome(err)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
