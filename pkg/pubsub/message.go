// Package pubsub carries joint state between the leader and follower
// arms.
//
// A message travels as two frames: the topic, then a JSON payload
// {"t": <seconds>, "qpos": [...]} or {"t": ..., "qpos_norm": [...]}.
// Subscribers conflate: only the newest unread message is kept.
package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrClosed is returned by operations on a closed publisher or subscriber.
var ErrClosed = errors.New("pubsub: closed")

// Message is one published joint state.
type Message struct {
	Topic    string    `json:"-"`
	T        float64   `json:"t"`
	QPos     []float64 `json:"qpos,omitempty"`
	QPosNorm []float64 `json:"qpos_norm,omitempty"`
}

// NewMessage stamps state with the current time. Normalized state goes in
// qpos_norm, anything else in qpos.
func NewMessage(topic string, state []float64, normalized bool) Message {
	m := Message{Topic: topic, T: float64(time.Now().UnixNano()) / 1e9}
	if normalized {
		m.QPosNorm = state
	} else {
		m.QPos = state
	}
	return m
}

// State returns whichever state vector the message carries.
func (m Message) State() []float64 {
	if m.QPosNorm != nil {
		return m.QPosNorm
	}
	return m.QPos
}

// Time returns the publish timestamp.
func (m Message) Time() time.Time {
	sec := int64(m.T)
	return time.Unix(sec, int64((m.T-float64(sec))*1e9))
}

// Encode returns the topic and payload frames of m.
func Encode(m Message) ([][]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Topic, err)
	}
	return [][]byte{[]byte(m.Topic), payload}, nil
}

// Decode parses the frames written by Encode.
func Decode(frames [][]byte) (Message, error) {
	if len(frames) != 2 {
		return Message{}, fmt.Errorf("pubsub: expected 2 frames, got %d", len(frames))
	}
	var m Message
	if err := json.Unmarshal(frames[1], &m); err != nil {
		return Message{}, fmt.Errorf("decode %s: %w", frames[0], err)
	}
	if m.QPos == nil && m.QPosNorm == nil {
		return Message{}, fmt.Errorf("decode %s: payload has neither qpos nor qpos_norm", frames[0])
	}
	m.Topic = string(frames[0])
	return m, nil
}

// Publisher sends messages on their topic.
type Publisher interface {
	Publish(m Message) error
	Close() error
}

// Subscriber yields the newest message received since the last call.
type Subscriber interface {
	// Latest never blocks. ok is false when nothing new arrived.
	Latest() (m Message, ok bool, err error)
	Close() error
}

func matches(filter, topic string) bool {
	return strings.HasPrefix(topic, filter)
}

// latest is a one-slot mailbox: a put replaces any unread value.
type latest struct {
	ch chan Message
}

func newLatest() *latest {
	return &latest{ch: make(chan Message, 1)}
}

func (l *latest) put(m Message) {
	select {
	case l.ch <- m:
	default:
		// Drop the unread value, keep the new one
		select {
		case <-l.ch:
		default:
		}
		select {
		case l.ch <- m:
		default:
		}
	}
}

func (l *latest) take() (Message, bool) {
	select {
	case m := <-l.ch:
		return m, true
	default:
		return Message{}, false
	}
}
