package insight

import (
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"freightline/api_compass/pkg/logging"
)

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 60 * time.Second
)

// Breaker guards whole runs, not individual tool calls: one failed
// end-to-end run counts once. Constructed once in main and shared by
// reference so tests can build isolated instances.
type Breaker struct {
	cb     circuitbreaker.CircuitBreaker[any]
	logger logging.Logger
}

type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	Logger           logging.Logger
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}

	builder := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(uint(threshold)).
		WithDelay(cooldown).
		WithSuccessThreshold(1)
	if cfg.Logger != nil {
		builder = builder.OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			cfg.Logger.WithFields(logging.Fields{
				"from_state": event.OldState.String(),
				"to_state":   event.NewState.String(),
			}).Warn("Run circuit breaker state change")
		})
	}

	return &Breaker{cb: builder.Build(), logger: cfg.Logger}
}

// CanExecute reports whether a new run may start. While the cooldown is
// elapsing after repeated failures it returns false.
func (b *Breaker) CanExecute() bool {
	return b.cb.TryAcquirePermit()
}

func (b *Breaker) RecordSuccess() {
	b.cb.RecordSuccess()
}

func (b *Breaker) RecordFailure() {
	b.cb.RecordFailure()
}
