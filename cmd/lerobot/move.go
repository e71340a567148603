package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gwillem/soarm/pkg/motion"
	"github.com/gwillem/soarm/pkg/robot"
)

type MoveCommand struct {
	DeviceOptions
	Space     robot.Space   `long:"space" default:"angle" description:"Units of the targets: raw, angle (radians) or norm (0-200)"`
	Rate      float64       `long:"rate" default:"30" description:"Control loop frequency in Hz"`
	Step      float64       `long:"step" description:"Max joint step per cycle, in units of --space (default 0.025 rad, 16 ticks or 1 norm)"`
	Timeout   time.Duration `long:"timeout" default:"20s" description:"Safety timeout"`
	Waypoints int           `long:"waypoints" description:"Follow this many evenly spaced waypoints instead of rate-limited steps"`
	Duration  time.Duration `long:"duration" default:"5s" description:"Duration of a waypoint move"`
	Hold      bool          `long:"hold" description:"Keep torque enabled after the move"`

	Args struct {
		Targets []float64 `positional-arg-name:"target" description:"One target per joint (put -- before negative values)" required:"1"`
	} `positional-args:"yes"`
}

// defaultMoveStep returns about 0.025 rad per cycle expressed in space.
func defaultMoveStep(space robot.Space) float64 {
	switch space {
	case robot.SpaceRaw:
		return 16
	case robot.SpaceNorm:
		return 1
	default:
		return motion.DefaultMaxStep
	}
}

func (c *MoveCommand) maxStep() float64 {
	if c.Step > 0 {
		return c.Step
	}
	return defaultMoveStep(c.Space)
}

func (c *MoveCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(c.Args.Targets) != len(c.ids()) {
		return fmt.Errorf("got %d targets for %d joints", len(c.Args.Targets), len(c.ids()))
	}

	arm, err := c.openArm(ctx)
	if err != nil {
		return err
	}

	hold := false
	defer func() {
		if hold {
			if err := arm.Close(); err != nil {
				log.Printf("close: %v", err)
			}
			return
		}
		if err := arm.Shutdown(context.Background()); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	current, err := arm.ReadState(ctx, c.Space)
	if err != nil {
		return err
	}
	if err := arm.Enable(ctx); err != nil {
		return fmt.Errorf("enable torque: %w", err)
	}

	ctl := motion.NewController(motion.Config{
		RateHz:  c.Rate,
		MaxStep: c.maxStep(),
		Timeout: c.Timeout,
	}, motion.WithLogf(log.Printf))
	w := arm.Writer(c.Space)

	if c.Waypoints > 0 {
		wps := motion.Waypoints(current, c.Args.Targets, c.Waypoints)
		if err := ctl.FollowWaypoints(ctx, w, wps, c.Duration); err != nil {
			return err
		}
		hold = c.Hold
		fmt.Printf("Final qpos (%s): %v\n", c.Space, wps[len(wps)-1])
		return nil
	}

	res, err := ctl.MoveTo(ctx, w, current, c.Args.Targets)
	switch {
	case errors.Is(err, motion.ErrTimeout):
		fmt.Println(warnStyle.Render(err.Error()))
	case err != nil:
		return err
	}
	hold = c.Hold
	fmt.Printf("Final qpos (%s): %v (%s after %d steps)\n", c.Space, res.State, res.Outcome, res.Iterations)
	return nil
}
