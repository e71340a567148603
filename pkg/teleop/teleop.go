// Package teleop relays joint state between a leader and a follower arm.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/gwillem/soarm/pkg/clock"
	"github.com/gwillem/soarm/pkg/motion"
	"github.com/gwillem/soarm/pkg/pubsub"
	"github.com/gwillem/soarm/pkg/robot"
)

// DefaultPeriod is the relay cycle time.
const DefaultPeriod = 20 * time.Millisecond

// Arm is the part of robot.Arm the relay drives.
type Arm interface {
	ReadState(ctx context.Context, space robot.Space) ([]float64, error)
	WriteState(ctx context.Context, space robot.Space, state []float64) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Close() error
}

// DefaultMaxStep returns the per-cycle step bound for a space.
func DefaultMaxStep(space robot.Space) float64 {
	switch space {
	case robot.SpaceRaw:
		return 64 // ticks, about 0.1 rad
	case robot.SpaceNorm:
		return 5
	default:
		return 0.1
	}
}

// Topic returns the topic a device publishes its state on.
func Topic(d robot.Device) string {
	return d.Name() + ".state_real"
}

// State represents the current state of teleoperation.
type State struct {
	Positions []float64 // local arm, in the relay's space
	Target    []float64 // last peer state applied, nil if none yet
	Timestamp time.Time
	Error     error
}

// Config holds configuration for the relay.
type Config struct {
	Device robot.Device
	Space  robot.Space
	// Period between cycles. Default 20ms.
	Period time.Duration
	// MaxStep bounds the per-joint change applied per cycle. Defaults to
	// DefaultMaxStep(Space).
	MaxStep float64
	// Bidirectional makes the leader follow the follower as well.
	Bidirectional bool
	Clock         clock.Clock
}

// Relay runs the publish/follow loop for one arm.
type Relay struct {
	cfg    Config
	arm    Arm
	pub    pubsub.Publisher
	sub    pubsub.Subscriber
	topic  string
	target []float64

	mu      sync.Mutex
	running bool
	stateCh chan State
	logCh   chan string
}

// NewRelay creates a relay. sub may be nil for a leader that is not
// bidirectional and is ignored in that case.
func NewRelay(cfg Config, arm Arm, pub pubsub.Publisher, sub pubsub.Subscriber) (*Relay, error) {
	if arm == nil || pub == nil {
		return nil, errors.New("teleop: arm and publisher are required")
	}
	if cfg.Device.Role != robot.RoleLeader && cfg.Device.Role != robot.RoleFollower {
		return nil, fmt.Errorf("teleop: unknown role %q", cfg.Device.Role)
	}
	if !cfg.Follows() {
		sub = nil
	} else if sub == nil {
		return nil, fmt.Errorf("teleop: %s needs a subscriber", cfg.Device.Name())
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = DefaultMaxStep(cfg.Space)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	return &Relay{
		cfg:     cfg,
		arm:     arm,
		pub:     pub,
		sub:     sub,
		topic:   Topic(cfg.Device),
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}, nil
}

// Follows reports whether the arm is driven toward its peer's state.
func (c Config) Follows() bool {
	return c.Device.Role == robot.RoleFollower || c.Bidirectional
}

// States returns a channel that receives state updates.
func (r *Relay) States() <-chan State {
	return r.stateCh
}

// Logs returns a channel that receives log messages.
func (r *Relay) Logs() <-chan string {
	return r.logCh
}

// Config returns the relay's effective configuration.
func (r *Relay) Config() Config {
	return r.cfg
}

func (r *Relay) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", r.cfg.Clock.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case r.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Run relays until ctx is done. On every exit it disables torque and
// then closes the arm; the close is attempted even if disabling fails.
// The returned error reports cleanup failures only.
func (r *Relay) Run(ctx context.Context) (err error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("already running")
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		err = multierr.Append(err, r.shutdown())
	}()

	if r.cfg.Follows() {
		if err := r.arm.Enable(ctx); err != nil {
			r.log("Warning: failed to enable torque: %v", err)
		} else {
			r.log("%s: torque enabled", r.cfg.Device.Name())
		}
	} else {
		if err := r.arm.Disable(ctx); err != nil {
			r.log("Warning: failed to disable torque: %v", err)
		} else {
			r.log("%s: torque disabled (passive mode)", r.cfg.Device.Name())
		}
	}

	r.log("Relay started: publishing %s every %v (%s space)", r.topic, r.cfg.Period, r.cfg.Space)

	for {
		if ctx.Err() != nil {
			return nil
		}
		r.step(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-r.cfg.Clock.After(r.cfg.Period):
		}
	}
}

func (r *Relay) step(ctx context.Context) {
	positions, err := r.arm.ReadState(ctx, r.cfg.Space)
	if err != nil {
		r.log("Read error: %v", err)
		r.sendState(State{Error: err, Timestamp: r.cfg.Clock.Now()})
		return
	}

	msg := pubsub.NewMessage(r.topic, positions, r.cfg.Space == robot.SpaceNorm)
	if err := r.pub.Publish(msg); err != nil {
		r.log("Publish error: %v", err)
	}

	if r.sub != nil {
		if err := r.follow(ctx, positions); err != nil {
			r.log("Follow error: %v", err)
			r.sendState(State{Positions: positions, Target: r.target, Error: err, Timestamp: r.cfg.Clock.Now()})
			return
		}
	}

	r.sendState(State{
		Positions: positions,
		Target:    r.target,
		Timestamp: r.cfg.Clock.Now(),
	})
}

// follow applies one bounded step toward the newest peer state, if any
// arrived since the last cycle.
func (r *Relay) follow(ctx context.Context, positions []float64) error {
	m, ok, err := r.sub.Latest()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	target, err := stateIn(m, r.cfg.Space)
	if err != nil {
		return err
	}
	if len(target) != len(positions) {
		return fmt.Errorf("peer %s sent %d joints, arm has %d", m.Topic, len(target), len(positions))
	}
	r.target = target
	return r.arm.WriteState(ctx, r.cfg.Space, motion.Step(positions, target, r.cfg.MaxStep))
}

// stateIn returns the peer state if it was published in space: qpos_norm
// for the normalized space, qpos for raw and angle.
func stateIn(m pubsub.Message, space robot.Space) ([]float64, error) {
	if space == robot.SpaceNorm {
		if m.QPosNorm == nil {
			return nil, fmt.Errorf("peer %s sent qpos, relay runs in %s space", m.Topic, space)
		}
		return m.QPosNorm, nil
	}
	if m.QPos == nil {
		return nil, fmt.Errorf("peer %s sent qpos_norm, relay runs in %s space", m.Topic, space)
	}
	return m.QPos, nil
}

func (r *Relay) sendState(s State) {
	select {
	case r.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-r.stateCh:
		default:
		}
		select {
		case r.stateCh <- s:
		default:
		}
	}
}

func (r *Relay) shutdown() error {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	var errs error
	if err := r.arm.Disable(context.Background()); err != nil {
		r.log("Warning: failed to disable torque: %v", err)
		errs = multierr.Append(errs, fmt.Errorf("disable torque: %w", err))
	} else {
		r.log("%s: torque disabled", r.cfg.Device.Name())
	}
	if err := r.arm.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close arm: %w", err))
	}
	r.log("Relay stopped")
	return errs
}
