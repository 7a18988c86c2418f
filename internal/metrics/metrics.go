package metrics

import "github.com/prometheus/client_golang/prometheus"

// Counters exported on /metrics. Registered once at package init; the ledger
// increments them on every write attempt.
var (
	MarksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Subsystem: "ledger",
		Name:      "marks_total",
		Help:      "Attendance events appended, by status and mode.",
	}, []string{"status", "mode"})

	RejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Subsystem: "ledger",
		Name:      "rejected_total",
		Help:      "Attendance marks rejected by transition rules, by reason.",
	}, []string{"reason"})

	SweepMarkedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rollcall",
		Subsystem: "ledger",
		Name:      "sweep_absent_total",
		Help:      "ABSENT events appended by the bulk absentee sweep.",
	})
)

func init() {
	prometheus.MustRegister(MarksTotal, RejectedTotal, SweepMarkedTotal)
}
