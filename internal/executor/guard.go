package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	circuit "github.com/rubyist/circuitbreaker"

	"goprofile/internal"
	apperrors "goprofile/internal/errors"
)

// GuardConfig holds circuit breaker settings
type GuardConfig struct {
	Failures int           `json:"failures"` // consecutive internal failures that open the guard
	Cooldown time.Duration `json:"cooldown"` // how long an open guard rejects calls
}

// DefaultGuardConfig returns default guard settings
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Failures: 3,
		Cooldown: 30 * time.Second,
	}
}

// ErrGuardOpen is returned while the guard rejects calls
var ErrGuardOpen = apperrors.New(apperrors.CodeUnavailable, "guard is open after repeated internal failures")

// Guard recovers panics from the wrapped call and opens after too many
// consecutive internal failures. Bad input (source, format or validation
// errors) and cancellation never count against it. Once the cool-down
// elapses a single trial call is let through; its success closes the guard.
type Guard struct {
	config  GuardConfig
	breaker *circuit.Breaker
	logger  *internal.Logger
}

// NewGuard creates a guarded execution wrapper
func NewGuard(config GuardConfig, logger *internal.Logger) *Guard {
	defaults := DefaultGuardConfig()
	if config.Failures < 1 {
		config.Failures = defaults.Failures
	}
	if config.Cooldown <= 0 {
		config.Cooldown = defaults.Cooldown
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	breaker := circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    backoff.NewConstantBackOff(config.Cooldown),
		ShouldTrip: circuit.ConsecutiveTripFunc(int64(config.Failures)),
	})
	return &Guard{config: config, breaker: breaker, logger: logger.With("Guard")}
}

// Execute runs fn unless the guard is open
func (g *Guard) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	if !g.breaker.Ready() {
		return apperrors.Wrapf(ErrGuardOpen, "%s rejected", name)
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("%s panicked: %v", name, r)
			err = apperrors.InternalError(fmt.Sprintf("%s panicked: %v", name, r))
		}
		g.record(name, err)
	}()

	return fn(ctx)
}

func (g *Guard) record(name string, err error) {
	if !trips(err) {
		g.breaker.Success()
		return
	}
	g.breaker.Fail()
	if g.breaker.Tripped() {
		g.logger.Warn("%s failed %d times in a row; rejecting calls for %v", name, g.config.Failures, g.config.Cooldown)
	}
}

// trips reports whether err points at the engine rather than its input
func trips(err error) bool {
	return err != nil && apperrors.GetCode(err) == apperrors.CodeInternalError
}

// Open reports whether the guard has tripped and not yet recovered
func (g *Guard) Open() bool {
	return g.breaker.Tripped()
}

// ConsecutiveFailures returns the internal failures since the last success
func (g *Guard) ConsecutiveFailures() int64 {
	return g.breaker.ConsecFailures()
}
