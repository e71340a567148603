package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_Frames(t *testing.T) {
	frames, err := Encode(Message{Topic: "so101_leader.state_real", T: 12.5, QPos: []float64{0.1, -0.2}})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "so101_leader.state_real", string(frames[0]))
	assert.JSONEq(t, `{"t": 12.5, "qpos": [0.1, -0.2]}`, string(frames[1]))

	m, err := Decode(frames)
	require.NoError(t, err)
	assert.Equal(t, "so101_leader.state_real", m.Topic)
	assert.Equal(t, []float64{0.1, -0.2}, m.State())
}

func TestDecode_Normalized(t *testing.T) {
	m, err := Decode([][]byte{[]byte("x"), []byte(`{"t": 1, "qpos_norm": [100, 200]}`)})
	require.NoError(t, err)
	assert.Nil(t, m.QPos)
	assert.Equal(t, []float64{100, 200}, m.State())
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		frames [][]byte
	}{
		{"one frame", [][]byte{[]byte("x")}},
		{"bad json", [][]byte{[]byte("x"), []byte("{")}},
		{"no state", [][]byte{[]byte("x"), []byte(`{"t": 1}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frames)
			assert.Error(t, err)
		})
	}
}

func TestMessage_Time(t *testing.T) {
	m := NewMessage("x", []float64{1}, false)
	assert.WithinDuration(t, time.Now(), m.Time(), time.Second)
	assert.Equal(t, []float64{1}, m.QPos)
}

func TestBroker_Conflates(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("so101_leader")

	for i, v := range []float64{1, 2, 3} {
		require.NoError(t, b.Publish(Message{Topic: "so101_leader.state_real", T: float64(i + 1), QPos: []float64{v}}))
	}

	m, ok, err := sub.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3.0, m.T)
	assert.Equal(t, []float64{3}, m.QPos)

	_, ok, err = sub.Latest()
	require.NoError(t, err)
	assert.False(t, ok, "older messages must be dropped, not queued")
}

func TestBroker_TopicFilter(t *testing.T) {
	b := NewBroker()
	leader := b.Subscribe("so101_leader")
	follower := b.Subscribe("so101_follower")

	require.NoError(t, b.Publish(Message{Topic: "so101_leader.state_real", QPos: []float64{1}}))

	_, ok, _ := leader.Latest()
	assert.True(t, ok)
	_, ok, _ = follower.Latest()
	assert.False(t, ok)
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("")
	require.NoError(t, sub.Close())
	require.NoError(t, b.Publish(Message{Topic: "a", QPos: []float64{1}}))
	_, ok, _ := sub.Latest()
	assert.False(t, ok)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(Message{Topic: "a", QPos: []float64{1}}), ErrClosed)
}

func TestZMQ_Conflates(t *testing.T) {
	if testing.Short() {
		t.Skip("opens TCP sockets")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub, err := ListenZMQ(ctx, "tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer pub.Close()

	sub, err := DialZMQ(ctx, ZMQConfig{Endpoint: "tcp://" + pub.Addr(), Topic: "so101_leader", Logf: t.Logf})
	require.NoError(t, err)
	defer sub.Close()

	// Subscriptions propagate asynchronously; publish until one lands.
	require.Eventually(t, func() bool {
		require.NoError(t, pub.Publish(Message{Topic: "so101_leader.state_real", T: 0, QPos: []float64{0}}))
		_, ok, err := sub.Latest()
		require.NoError(t, err)
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	// Filtered out by topic.
	require.NoError(t, pub.Publish(Message{Topic: "so101_follower.state_real", T: 9, QPos: []float64{9}}))
	for i, v := range []float64{1, 2, 3} {
		require.NoError(t, pub.Publish(Message{Topic: "so101_leader.state_real", T: float64(i + 1), QPos: []float64{v}}))
	}

	var got Message
	require.Eventually(t, func() bool {
		m, ok, err := sub.Latest()
		require.NoError(t, err)
		if ok {
			got = m
		}
		return got.T == 3
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, []float64{3}, got.QPos)
}
