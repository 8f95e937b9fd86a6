package reliability

import (
	"net/http"
	"time"
)

// RetryableStatus reports whether an HTTP response code indicates a transient
// failure worth retrying. Client faults and 501 are final.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Backoff returns the delay before retry number attempt, doubling from base
// and clamped at max. Attempt zero waits base. Deterministic so tests can
// assert exact schedules.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for ; attempt > 0 && d < max; attempt-- {
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}
