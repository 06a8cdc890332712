package authkit

import "sync"

// AuthEvent names a countable point in the session lifecycle.
type AuthEvent string

const (
	EventLogin                AuthEvent = "login"
	EventLoginFailure         AuthEvent = "login_failure"
	EventRefresh              AuthEvent = "refresh"
	EventRefreshInvalid       AuthEvent = "refresh_invalid"
	EventRefreshReuseRejected AuthEvent = "refresh_reuse_rejected"
	EventLogout               AuthEvent = "logout"
	EventPasswordChange       AuthEvent = "password_change"
)

// MetricsRecorder increments counters for auth events.
type MetricsRecorder interface {
	Increment(event AuthEvent)
}

// CounterMetrics implements MetricsRecorder with in-memory counts.
type CounterMetrics struct {
	mutex  sync.Mutex
	counts map[AuthEvent]int64
}

// NewCounterMetrics constructs an in-memory metrics recorder.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{counts: make(map[AuthEvent]int64)}
}

// Increment increases the counter for the given event.
func (recorder *CounterMetrics) Increment(event AuthEvent) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.counts[event]++
}

// Count returns the current value for the given event.
func (recorder *CounterMetrics) Count(event AuthEvent) int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.counts[event]
}

// Snapshot returns a copy of all recorded counters.
func (recorder *CounterMetrics) Snapshot() map[AuthEvent]int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	clone := make(map[AuthEvent]int64, len(recorder.counts))
	for event, value := range recorder.counts {
		clone[event] = value
	}
	return clone
}
