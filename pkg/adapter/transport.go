package adapter

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/zen-systems/mediagate/pkg/config"
)

// rateLimitedTransport waits on a token bucket before each request.
type rateLimitedTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// newRateLimiter returns nil when rl does not limit anything.
func newRateLimiter(rl config.RateLimit) *rate.Limiter {
	if rl.RequestsPerSecond <= 0 {
		return nil
	}
	burst := rl.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
}

// withRateLimit wraps client's transport with limiter. The client is copied,
// never modified.
func withRateLimit(client *http.Client, limiter *rate.Limiter) *http.Client {
	if limiter == nil {
		return client
	}
	c := *client
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	c.Transport = &rateLimitedTransport{limiter: limiter, next: next}
	return &c
}
