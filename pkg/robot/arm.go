package robot

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/multierr"

	"github.com/gwillem/soarm/pkg/servo"
)

// Arm represents a robot arm: one servo bus and the calibration of its
// joints.
type Arm struct {
	bus    *servo.Bus
	joints Joints
}

// ArmConfig holds configuration for connecting to an arm.
type ArmConfig struct {
	Port        string
	IDs         []int // Defaults to DefaultIDs()
	Calibration Calibration
	Logf        func(format string, args ...any)
}

// NewArm opens the arm's bus, checks firmware and applies calibration.
func NewArm(ctx context.Context, cfg ArmConfig) (*Arm, error) {
	if len(cfg.IDs) == 0 {
		cfg.IDs = DefaultIDs()
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}

	joints, err := cfg.Calibration.Joints(cfg.IDs)
	if err != nil {
		return nil, err
	}

	bus, err := servo.Connect(ctx, servo.Config{
		Port:     cfg.Port,
		BaudRate: servo.DefaultBaudRate,
		IDs:      cfg.IDs,
		Logf:     cfg.Logf,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	return &Arm{bus: bus, joints: joints}, nil
}

// NewArmOnBus creates an arm over an existing bus.
func NewArmOnBus(bus *servo.Bus, cal Calibration) (*Arm, error) {
	joints, err := cal.Joints(bus.IDs())
	if err != nil {
		return nil, err
	}
	return &Arm{bus: bus, joints: joints}, nil
}

// Close closes the arm's bus connection.
func (a *Arm) Close() error {
	return a.bus.Close()
}

// Shutdown disables torque and then closes the bus. Close is attempted
// even when disabling torque fails.
func (a *Arm) Shutdown(ctx context.Context) error {
	var errs error
	if err := a.Disable(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("disable torque: %w", err))
	}
	if err := a.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close bus: %w", err))
	}
	return errs
}

// Bus returns the arm's servo bus.
func (a *Arm) Bus() *servo.Bus {
	return a.bus
}

// Joints returns the calibration of each joint, in joint order.
func (a *Arm) Joints() Joints {
	return a.joints
}

// Enable enables torque on all servos.
func (a *Arm) Enable(ctx context.Context) error {
	return a.bus.SetTorque(ctx, true)
}

// Disable disables torque on all servos.
func (a *Arm) Disable(ctx context.Context) error {
	return a.bus.SetTorque(ctx, false)
}

// ReadState reads current positions from all motors in the given space.
func (a *Arm) ReadState(ctx context.Context, space Space) ([]float64, error) {
	raw, err := a.bus.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	return a.joints.ToSpace(raw, space)
}

// WriteState writes target positions given in the given space.
func (a *Arm) WriteState(ctx context.Context, space Space, state []float64) error {
	raw, err := a.joints.ToRaw(state, space)
	if err != nil {
		return err
	}
	if err := a.bus.SetPositions(ctx, raw); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// Writer returns a writer of state vectors in one space.
func (a *Arm) Writer(space Space) *SpaceWriter {
	return &SpaceWriter{arm: a, space: space}
}

// SpaceWriter writes state vectors in a fixed space.
type SpaceWriter struct {
	arm   *Arm
	space Space
}

func (w *SpaceWriter) WriteState(ctx context.Context, state []float64) error {
	return w.arm.WriteState(ctx, w.space, state)
}
