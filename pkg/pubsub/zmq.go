package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
)

// DefaultBasePort is the TCP port of the leader's publisher. The follower
// publishes on DefaultBasePort+1.
const DefaultBasePort = 6000

// ZMQPublisher is a bound ZeroMQ PUB socket.
type ZMQPublisher struct {
	sock zmq4.Socket
}

// ListenZMQ binds a publisher to endpoint, e.g. "tcp://*:6000".
func ListenZMQ(ctx context.Context, endpoint string) (*ZMQPublisher, error) {
	sock := zmq4.NewPub(ctx)
	if err := sock.Listen(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("listen %s: %w", endpoint, err)
	}
	return &ZMQPublisher{sock: sock}, nil
}

// Publish sends m as a two-frame message.
func (p *ZMQPublisher) Publish(m Message) error {
	frames, err := Encode(m)
	if err != nil {
		return err
	}
	if err := p.sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return fmt.Errorf("publish %s: %w", m.Topic, err)
	}
	return nil
}

func (p *ZMQPublisher) Close() error {
	return p.sock.Close()
}

// ZMQConfig configures a ZeroMQ subscriber.
type ZMQConfig struct {
	// Endpoint of the peer's publisher, e.g. "tcp://localhost:6000".
	Endpoint string
	// Topic prefix to subscribe to.
	Topic string
	// Retry is the wait between dial attempts. Default 250ms.
	Retry time.Duration
	// Logf receives receive-loop errors. Defaults to log.Printf.
	Logf func(format string, args ...any)
}

// ZMQSubscriber is a connected ZeroMQ SUB socket whose receive loop keeps
// only the newest message.
type ZMQSubscriber struct {
	sock   zmq4.Socket
	box    *latest
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// DialZMQ connects a subscriber, retrying until the peer is reachable or
// ctx is done.
func DialZMQ(ctx context.Context, cfg ZMQConfig) (*ZMQSubscriber, error) {
	if cfg.Retry <= 0 {
		cfg.Retry = 250 * time.Millisecond
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}

	sctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewSub(sctx, zmq4.WithDialerRetry(cfg.Retry))
	fail := func(err error) (*ZMQSubscriber, error) {
		sock.Close()
		cancel()
		return nil, err
	}

	if err := sock.SetOption(zmq4.OptionSubscribe, cfg.Topic); err != nil {
		return fail(fmt.Errorf("subscribe %q: %w", cfg.Topic, err))
	}
	for {
		err := sock.Dial(cfg.Endpoint)
		if err == nil {
			break
		}
		cfg.Logf("dial %s: %v (retrying)", cfg.Endpoint, err)
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-time.After(cfg.Retry):
		}
	}

	s := &ZMQSubscriber{
		sock:   sock,
		box:    newLatest(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.receive(sctx, cfg.Logf)
	return s, nil
}

func (s *ZMQSubscriber) receive(ctx context.Context, logf func(format string, args ...any)) {
	defer close(s.done)
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
		m, err := Decode(msg.Frames)
		if err != nil {
			logf("drop message: %v", err)
			continue
		}
		s.box.put(m)
	}
}

// Latest returns the newest message received since the last call. A
// failed receive loop is reported once no message is pending.
func (s *ZMQSubscriber) Latest() (Message, bool, error) {
	if m, ok := s.box.take(); ok {
		return m, true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Message{}, false, fmt.Errorf("receive: %w", s.err)
	}
	return Message{}, false, nil
}

func (s *ZMQSubscriber) Close() error {
	s.cancel()
	err := s.sock.Close()
	<-s.done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Addr returns the bound address, useful after listening on port 0.
func (p *ZMQPublisher) Addr() string {
	if a := p.sock.Addr(); a != nil {
		return a.String()
	}
	return ""
}
