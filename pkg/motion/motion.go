// Package motion drives joint state vectors toward targets at a bounded
// per-step rate.
//
// The controller is agnostic of the coordinate space: max step and
// epsilon are interpreted in whatever units the caller's vectors use.
package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/gwillem/soarm/pkg/clock"
)

// Defaults for MoveTo, in radians where a unit applies.
const (
	DefaultRateHz  = 30
	DefaultMaxStep = 0.025
	DefaultTimeout = 20 * time.Second
	DefaultEpsilon = 1e-4

	// MaxRateHz is the highest loop rate a Config accepts.
	MaxRateHz = float64(time.Second)
)

// ErrTimeout is matched by the error MoveTo returns when a move is cut
// short by its timeout.
var ErrTimeout = errors.New("motion timed out")

// TimeoutError reports an incomplete move.
type TimeoutError struct {
	Timeout    time.Duration
	Iterations int
	// Remaining is the L2 distance still left to the target.
	Remaining float64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("motion timed out after %v (%d steps, %.4f from target)", e.Timeout, e.Iterations, e.Remaining)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// StateWriter commands a state vector to the hardware.
type StateWriter interface {
	WriteState(ctx context.Context, state []float64) error
}

// WriterFunc adapts a function to StateWriter.
type WriterFunc func(ctx context.Context, state []float64) error

func (f WriterFunc) WriteState(ctx context.Context, state []float64) error {
	return f(ctx, state)
}

// Outcome tells how a move ended.
type Outcome int

const (
	// Reached means the state is within epsilon of the target.
	Reached Outcome = iota
	// TimedOut means the timeout expired first.
	TimedOut
	// Canceled means the context was done first.
	Canceled
	// Failed means a write failed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Reached:
		return "reached"
	case TimedOut:
		return "timed out"
	case Canceled:
		return "canceled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes a finished move.
type Result struct {
	// State is the last state written, or the start state if nothing was.
	State      []float64
	Iterations int
	Outcome    Outcome
}

// Config holds the parameters of a move.
type Config struct {
	RateHz  float64       // Control loop rate. Default 30, at most MaxRateHz.
	MaxStep float64       // Per-joint bound on one step. Default 0.025.
	Timeout time.Duration // Hard abort. Default 20s; negative disables it.
	Epsilon float64       // L2 distance considered converged. Default 1e-4.
}

func (c Config) withDefaults() Config {
	if !(c.RateHz > 0) {
		c.RateHz = DefaultRateHz
	}
	// The period must stay at least one nanosecond.
	if c.RateHz > MaxRateHz {
		c.RateHz = MaxRateHz
	}
	if c.MaxStep <= 0 {
		c.MaxStep = DefaultMaxStep
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Epsilon <= 0 {
		c.Epsilon = DefaultEpsilon
	}
	return c
}

// Period returns the duration of one control loop iteration.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.withDefaults().RateHz)
}

// Controller runs step-rate-limited moves.
type Controller struct {
	cfg   Config
	clock clock.Clock
	logf  func(format string, args ...any)
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the real clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithLogf sets where progress messages go. Silent by default.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(ctl *Controller) { ctl.logf = logf }
}

// NewController creates a controller. Zero fields of cfg take defaults.
func NewController(cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:   cfg.withDefaults(),
		clock: clock.Real{},
		logf:  func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the controller's effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Step returns current moved toward target by at most maxStep per joint.
func Step(current, target []float64, maxStep float64) []float64 {
	next := make([]float64, len(current))
	floats.AddTo(next, current, clampedDelta(current, target, maxStep))
	return next
}

func clampedDelta(current, target []float64, maxStep float64) []float64 {
	delta := make([]float64, len(current))
	floats.SubTo(delta, target, current)
	for i, d := range delta {
		delta[i] = math.Max(-maxStep, math.Min(maxStep, d))
	}
	return delta
}

// MoveTo ramps from current to target, writing one bounded step per
// period. Sleeps end on period boundaries measured from the start of the
// move, so slow writes do not accumulate drift.
//
// A move cut short by the timeout returns the last written state with
// Outcome TimedOut and an error matching ErrTimeout.
func (c *Controller) MoveTo(ctx context.Context, w StateWriter, current, target []float64) (Result, error) {
	if len(current) != len(target) {
		return Result{State: current, Outcome: Failed}, fmt.Errorf("motion: %d current values for %d target values", len(current), len(target))
	}

	cur := append([]float64(nil), current...)
	period := c.cfg.Period()
	start := c.clock.Now()
	res := Result{State: cur}

	for {
		if err := ctx.Err(); err != nil {
			res.Outcome = Canceled
			return res, err
		}
		delta := clampedDelta(cur, target, c.cfg.MaxStep)
		if floats.Norm(delta, 2) < c.cfg.Epsilon {
			res.Outcome = Reached
			return res, nil
		}

		next := make([]float64, len(cur))
		floats.AddTo(next, cur, delta)
		if err := w.WriteState(ctx, next); err != nil {
			res.Outcome = Failed
			return res, fmt.Errorf("write step %d: %w", res.Iterations+1, err)
		}
		cur = next
		res.State = cur
		res.Iterations++

		elapsed := c.clock.Since(start)
		select {
		case <-ctx.Done():
			res.Outcome = Canceled
			return res, ctx.Err()
		case <-c.clock.After(period - elapsed%period):
		}

		if c.cfg.Timeout > 0 && c.clock.Since(start) > c.cfg.Timeout {
			remaining := floats.Distance(cur, target, 2)
			c.logf("move timed out after %d steps, %.4f from target", res.Iterations, remaining)
			res.Outcome = TimedOut
			return res, &TimeoutError{Timeout: c.cfg.Timeout, Iterations: res.Iterations, Remaining: remaining}
		}
	}
}

// Waypoints returns steps states evenly spaced from current to target,
// both included.
func Waypoints(current, target []float64, steps int) [][]float64 {
	if steps < 2 {
		return [][]float64{append([]float64(nil), target...)}
	}
	s := floats.Span(make([]float64, steps), 0, 1)
	diff := make([]float64, len(current))
	floats.SubTo(diff, target, current)

	out := make([][]float64, steps)
	for i, f := range s {
		out[i] = make([]float64, len(current))
		floats.AddScaledTo(out[i], current, f, diff)
	}
	return out
}

// FollowWaypoints writes each waypoint in turn, spreading them evenly over
// duration.
func (c *Controller) FollowWaypoints(ctx context.Context, w StateWriter, waypoints [][]float64, duration time.Duration) error {
	if len(waypoints) == 0 {
		return nil
	}
	delay := duration / time.Duration(len(waypoints))
	for i, wp := range waypoints {
		if err := w.WriteState(ctx, wp); err != nil {
			return fmt.Errorf("write waypoint %d: %w", i, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(delay):
		}
	}
	return nil
}
