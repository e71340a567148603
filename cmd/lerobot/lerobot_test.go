package main

import (
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/soarm/pkg/motion"
	"github.com/gwillem/soarm/pkg/robot"
	"github.com/gwillem/soarm/pkg/servo"
	"github.com/gwillem/soarm/pkg/servo/servotest"
)

func stubForm(t *testing.T, err error) {
	t.Helper()
	orig := runForm
	runForm = func(*huh.Form) error { return err }
	t.Cleanup(func() { runForm = orig })
}

func TestWaitForUser_Abort(t *testing.T) {
	stubForm(t, huh.ErrUserAborted)
	assert.ErrorIs(t, waitForUser("press enter"), errAborted)
}

func TestWaitForUser_FormError(t *testing.T) {
	cause := errors.New("no tty")
	stubForm(t, cause)

	err := waitForUser("press enter")
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, errAborted)
}

func TestCalibrate_AbortShutsDownArm(t *testing.T) {
	t.Chdir(t.TempDir())
	stubForm(t, huh.ErrUserAborted)

	tr := servotest.New(1, 2, 3)
	tr.Poke(2, 40, 1)
	bus, err := servo.NewBus(tr, servo.Config{IDs: []int{1, 2, 3}, Logf: t.Logf})
	require.NoError(t, err)
	arm, err := robot.NewArmOnBus(bus, robot.Calibration{})
	require.NoError(t, err)

	err = (&CalibrateCommand{}).calibrate(context.Background(), arm)
	assert.ErrorIs(t, err, errAborted)

	assert.True(t, tr.Closed(), "bus closed on abort")
	assert.Equal(t, []byte{0}, tr.Peek(2, 40, 1))
	// Disabled before the prompt, and again on shutdown.
	assert.Len(t, tr.CallsOf("write"), 6)
	assert.Empty(t, tr.CallsOf("sync_read"))
}

func TestMoveCommand_MaxStep(t *testing.T) {
	tests := []struct {
		space robot.Space
		step  float64
		want  float64
	}{
		{robot.SpaceAngle, 0, motion.DefaultMaxStep},
		{robot.SpaceRaw, 0, 16},
		{robot.SpaceNorm, 0, 1},
		{robot.SpaceRaw, 40, 40},
	}
	for _, tt := range tests {
		c := &MoveCommand{Space: tt.space, Step: tt.step}
		assert.Equal(t, tt.want, c.maxStep(), "space %s, step %v", tt.space, tt.step)
	}
}

func TestBridgeCommand_Endpoints(t *testing.T) {
	c := &BridgeCommand{BasePort: 6000, PeerHost: "10.0.0.2"}

	c.Mode = robot.RoleLeader
	listen, peer := c.endpoints()
	assert.Equal(t, "tcp://*:6000", listen)
	assert.Equal(t, "tcp://10.0.0.2:6001", peer)

	c.Mode = robot.RoleFollower
	listen, peer = c.endpoints()
	assert.Equal(t, "tcp://*:6001", listen)
	assert.Equal(t, "tcp://10.0.0.2:6000", peer)
}
