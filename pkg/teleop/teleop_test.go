package teleop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/soarm/pkg/clock"
	"github.com/gwillem/soarm/pkg/pubsub"
	"github.com/gwillem/soarm/pkg/robot"
)

type fakeArm struct {
	mu         sync.Mutex
	state      []float64
	writes     [][]float64
	calls      []string
	disableErr error
	closeErr   error
}

func (a *fakeArm) ReadState(ctx context.Context, space robot.Space) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]float64(nil), a.state...), nil
}

func (a *fakeArm) WriteState(ctx context.Context, space robot.Space, state []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writes = append(a.writes, append([]float64(nil), state...))
	a.state = append([]float64(nil), state...)
	return nil
}

func (a *fakeArm) Enable(ctx context.Context) error {
	a.record("enable")
	return nil
}

func (a *fakeArm) Disable(ctx context.Context) error {
	a.record("disable")
	return a.disableErr
}

func (a *fakeArm) Close() error {
	a.record("close")
	return a.closeErr
}

func (a *fakeArm) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

// runCycles runs the relay for n cycles on a fake clock.
func runCycles(t *testing.T, r *Relay, clk *clock.Fake, n int) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cycles := 0
	clk.OnAfter = func(time.Duration) {
		cycles++
		if cycles == n {
			cancel()
		}
	}
	return r.Run(ctx)
}

var (
	leader   = robot.Device{Family: "so101", Role: robot.RoleLeader}
	follower = robot.Device{Family: "so101", Role: robot.RoleFollower}
)

func TestRelay_FollowerConflates(t *testing.T) {
	broker := pubsub.NewBroker()
	clk := clock.NewFake(time.Unix(0, 0))
	arm := &fakeArm{state: []float64{0, 0}}

	r, err := NewRelay(Config{Device: follower, Space: robot.SpaceAngle, MaxStep: 0.1, Clock: clk},
		arm, broker, broker.Subscribe(Topic(leader)))
	require.NoError(t, err)

	for i, v := range [][]float64{{1, 1}, {2, -2}, {0.05, -3}} {
		require.NoError(t, broker.Publish(pubsub.Message{Topic: Topic(leader), T: float64(i + 1), QPos: v}))
	}

	require.NoError(t, runCycles(t, r, clk, 3))

	require.Len(t, arm.writes, 1, "exactly one update per burst")
	assert.InDeltaSlice(t, []float64{0.05, -0.1}, arm.writes[0], 1e-12)
	assert.Equal(t, []string{"enable", "disable", "close"}, arm.calls)
}

func TestRelay_PublishesState(t *testing.T) {
	broker := pubsub.NewBroker()
	watch := broker.Subscribe(Topic(leader))
	clk := clock.NewFake(time.Unix(0, 0))
	arm := &fakeArm{state: []float64{120, 80}}

	r, err := NewRelay(Config{Device: leader, Space: robot.SpaceNorm, Clock: clk}, arm, broker, nil)
	require.NoError(t, err)
	require.NoError(t, runCycles(t, r, clk, 1))

	m, ok, err := watch.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "so101_leader.state_real", m.Topic)
	assert.Equal(t, []float64{120, 80}, m.QPosNorm)
	assert.Nil(t, m.QPos)
}

func TestRelay_LeaderDoesNotFollow(t *testing.T) {
	broker := pubsub.NewBroker()
	clk := clock.NewFake(time.Unix(0, 0))
	arm := &fakeArm{state: []float64{0}}

	r, err := NewRelay(Config{Device: leader, Clock: clk}, arm, broker, broker.Subscribe(Topic(follower)))
	require.NoError(t, err)
	require.NoError(t, broker.Publish(pubsub.Message{Topic: Topic(follower), QPos: []float64{1}}))
	require.NoError(t, runCycles(t, r, clk, 2))

	assert.Empty(t, arm.writes)
	assert.Equal(t, []string{"disable", "disable", "close"}, arm.calls)
}

func TestRelay_Bidirectional(t *testing.T) {
	broker := pubsub.NewBroker()
	clk := clock.NewFake(time.Unix(0, 0))
	arm := &fakeArm{state: []float64{0}}

	r, err := NewRelay(Config{Device: leader, Space: robot.SpaceAngle, Bidirectional: true, Clock: clk}, arm, broker, broker.Subscribe(Topic(follower)))
	require.NoError(t, err)
	require.NoError(t, broker.Publish(pubsub.Message{Topic: Topic(follower), QPos: []float64{1}}))
	require.NoError(t, runCycles(t, r, clk, 1))

	require.Len(t, arm.writes, 1)
	assert.InDelta(t, DefaultMaxStep(robot.SpaceAngle), arm.writes[0][0], 1e-12)
}

func TestRelay_CleanupRunsBothSteps(t *testing.T) {
	broker := pubsub.NewBroker()
	clk := clock.NewFake(time.Unix(0, 0))
	arm := &fakeArm{
		state:      []float64{0},
		disableErr: errors.New("servo 3 not answering"),
		closeErr:   errors.New("port busy"),
	}

	r, err := NewRelay(Config{Device: follower, Clock: clk}, arm, broker, broker.Subscribe(Topic(leader)))
	require.NoError(t, err)

	err = runCycles(t, r, clk, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "servo 3 not answering")
	assert.Contains(t, err.Error(), "port busy")
	assert.Equal(t, []string{"enable", "disable", "close"}, arm.calls)
}

func TestRelay_IgnoresMismatchedPeer(t *testing.T) {
	broker := pubsub.NewBroker()
	clk := clock.NewFake(time.Unix(0, 0))
	arm := &fakeArm{state: []float64{0, 0}}

	r, err := NewRelay(Config{Device: follower, Clock: clk}, arm, broker, broker.Subscribe(Topic(leader)))
	require.NoError(t, err)
	require.NoError(t, broker.Publish(pubsub.Message{Topic: Topic(leader), QPos: []float64{1, 2, 3}}))
	require.NoError(t, runCycles(t, r, clk, 1))

	assert.Empty(t, arm.writes)
	s := <-r.States()
	assert.Error(t, s.Error)
}

func TestRelay_RejectsPeerInOtherSpace(t *testing.T) {
	tests := []struct {
		space robot.Space
		msg   pubsub.Message
	}{
		{robot.SpaceAngle, pubsub.Message{Topic: Topic(leader), QPosNorm: []float64{150, 180}}},
		{robot.SpaceRaw, pubsub.Message{Topic: Topic(leader), QPosNorm: []float64{150, 180}}},
		{robot.SpaceNorm, pubsub.Message{Topic: Topic(leader), QPos: []float64{0.5, 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.space.String(), func(t *testing.T) {
			broker := pubsub.NewBroker()
			clk := clock.NewFake(time.Unix(0, 0))
			arm := &fakeArm{state: []float64{0, 0}}

			r, err := NewRelay(Config{Device: follower, Space: tt.space, Clock: clk}, arm, broker, broker.Subscribe(Topic(leader)))
			require.NoError(t, err)
			require.NoError(t, broker.Publish(tt.msg))
			require.NoError(t, runCycles(t, r, clk, 1))

			assert.Empty(t, arm.writes)
			s := <-r.States()
			require.Error(t, s.Error)
			assert.Contains(t, s.Error.Error(), tt.space.String()+" space")
			assert.Nil(t, s.Target)
		})
	}
}

func TestRelay_FollowsNormalizedPeer(t *testing.T) {
	broker := pubsub.NewBroker()
	clk := clock.NewFake(time.Unix(0, 0))
	arm := &fakeArm{state: []float64{100, 100}}

	r, err := NewRelay(Config{Device: follower, Space: robot.SpaceNorm, Clock: clk}, arm, broker, broker.Subscribe(Topic(leader)))
	require.NoError(t, err)
	require.NoError(t, broker.Publish(pubsub.Message{Topic: Topic(leader), QPosNorm: []float64{150, 98}}))
	require.NoError(t, runCycles(t, r, clk, 1))

	require.Len(t, arm.writes, 1)
	assert.InDeltaSlice(t, []float64{105, 98}, arm.writes[0], 1e-12)
}

func TestNewRelay_FollowerNeedsSubscriber(t *testing.T) {
	_, err := NewRelay(Config{Device: follower}, &fakeArm{}, pubsub.NewBroker(), nil)
	assert.Error(t, err)
}

func TestRelay_Defaults(t *testing.T) {
	r, err := NewRelay(Config{Device: leader, Space: robot.SpaceRaw}, &fakeArm{}, pubsub.NewBroker(), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPeriod, r.Config().Period)
	assert.Equal(t, 64.0, r.Config().MaxStep)
}
