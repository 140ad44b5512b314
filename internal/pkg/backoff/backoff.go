package backoff

import (
	"math/rand"
	"time"
)

// Policy is a bounded exponential backoff with jitter. One shared policy is
// used by every lock client so retry behavior stays consistent across call
// sites.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Jitter      float64 // fraction of the delay randomized, 0..1
}

// Default returns the policy used for lock acquisition retries
func Default() *Policy {
	return &Policy{
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		MaxAttempts: 5,
		Jitter:      0.3,
	}
}

// Delay returns the backoff delay before retry attempt n (0-based)
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}

	if p.Jitter > 0 {
		spread := float64(delay) * p.Jitter
		delay = time.Duration(float64(delay) - spread/2 + rand.Float64()*spread)
	}
	return delay
}

// Retry runs fn up to MaxAttempts times, sleeping between attempts. fn
// returns (done, err): done=true stops retrying and returns err as-is;
// done=false with the budget exhausted returns the last err.
func (p *Policy) Retry(fn func() (bool, error)) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		done, err := fn()
		if done {
			return err
		}
		lastErr = err
		if attempt < p.MaxAttempts-1 {
			time.Sleep(p.Delay(attempt))
		}
	}
	return lastErr
}
