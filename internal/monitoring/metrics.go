package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_operations_total",
			Help: "Reservation engine operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reservation_operation_duration_seconds",
			Help:    "Latency of reservation engine operations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"operation"},
	)

	availableSeats = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reservation_available_seats",
			Help: "Unreserved seats per train after the last booking or cancellation",
		},
		[]string{"train_id"},
	)

	consistencyViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_consistency_violations_total",
			Help: "Detected catalog/ledger disagreements",
		},
		[]string{"kind"},
	)
)

// Operation outcomes.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Consistency violation kinds.
const (
	ViolationNoSeatNumber      = "no_seat_number"
	ViolationRollbackFailed    = "rollback_failed"
	ViolationSeatReleaseFailed = "seat_release_failed"
	ViolationReconciled        = "reconciled"
)

// ObserveOperation records one finished engine operation.
func ObserveOperation(operation, outcome string, started time.Time) {
	operations.WithLabelValues(operation, outcome).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// SetAvailableSeats publishes the current availability of a train.
func SetAvailableSeats(trainID int64, available int) {
	availableSeats.WithLabelValues(strconv.FormatInt(trainID, 10)).Set(float64(available))
}

// IncConsistencyViolation counts a detected consistency problem.
func IncConsistencyViolation(kind string) {
	consistencyViolations.WithLabelValues(kind).Inc()
}
