package llm

import (
	"time"

	"golang.org/x/time/rate"
)

// newLimiter returns a token bucket allowing requestsPerMinute, starting
// full. Zero disables limiting.
func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
}
