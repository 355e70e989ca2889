package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LockAttemptsTotal tracks latch acquisition attempts by lock mode
	LockAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbor_lock_attempts_total",
			Help: "Total number of latch acquisition attempts",
		},
		[]string{"mode"},
	)

	// LockAcquiredTotal tracks successful latch acquisitions by lock mode
	LockAcquiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbor_lock_acquired_total",
			Help: "Total number of successful latch acquisitions",
		},
		[]string{"mode"},
	)

	// LockFailedTotal tracks failed latch acquisitions by lock mode
	LockFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbor_lock_failed_total",
			Help: "Total number of failed latch acquisitions",
		},
		[]string{"mode"},
	)

	// LockReleasedTotal tracks latch releases by lock mode
	LockReleasedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbor_lock_released_total",
			Help: "Total number of latch releases",
		},
		[]string{"mode"},
	)

	// LockWaitDuration tracks how long callers waited to acquire a latch
	LockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arbor_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a latch in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		},
		[]string{"mode"},
	)

	// LocksHeld tracks the number of latches currently held, by lock mode
	LocksHeld = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arbor_locks_held",
			Help: "Number of latches currently held",
		},
		[]string{"mode"},
	)

	// EventsDroppedTotal counts diagnostic lock events dropped due to a full
	// dispatch queue
	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arbor_lock_events_dropped_total",
			Help: "Total number of lock events dropped because the dispatch queue was full",
		},
	)

	// ListenerFaultsTotal counts panics recovered from lock event listeners
	ListenerFaultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arbor_lock_listener_faults_total",
			Help: "Total number of panics recovered from lock event listeners",
		},
	)

	// UnbalancedReleasesTotal counts duplicate releases of a managed lock
	UnbalancedReleasesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "arbor_lock_unbalanced_releases_total",
			Help: "Total number of duplicate managed lock releases (programming errors)",
		},
	)
)

// RecordAttempt increments the attempt counter for a lock mode
func RecordAttempt(mode string) {
	LockAttemptsTotal.WithLabelValues(mode).Inc()
}

// RecordAcquired increments the acquired counter and held gauge for a lock mode
func RecordAcquired(mode string) {
	LockAcquiredTotal.WithLabelValues(mode).Inc()
	LocksHeld.WithLabelValues(mode).Inc()
}

// RecordFailed increments the failed counter for a lock mode
func RecordFailed(mode string) {
	LockFailedTotal.WithLabelValues(mode).Inc()
}

// RecordReleased increments the released counter and decrements the held gauge
func RecordReleased(mode string) {
	LockReleasedTotal.WithLabelValues(mode).Inc()
	LocksHeld.WithLabelValues(mode).Dec()
}

// RecordWait observes the time a caller spent waiting to acquire a latch
func RecordWait(mode string, seconds float64) {
	LockWaitDuration.WithLabelValues(mode).Observe(seconds)
}
