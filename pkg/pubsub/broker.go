package pubsub

import "sync"

// Broker is an in-process bus for running both arms in one process.
type Broker struct {
	mu     sync.Mutex
	subs   map[*BrokerSubscriber]struct{}
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*BrokerSubscriber]struct{})}
}

// Publish delivers m to every subscriber whose filter prefixes its topic.
func (b *Broker) Publish(m Message) error {
	// Round-trip through the wire format so both transports behave alike.
	frames, err := Encode(m)
	if err != nil {
		return err
	}
	m, err = Decode(frames)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for s := range b.subs {
		if matches(s.filter, m.Topic) {
			s.box.put(m)
		}
	}
	return nil
}

// Subscribe returns a conflating subscriber for topics starting with
// filter.
func (b *Broker) Subscribe(filter string) *BrokerSubscriber {
	s := &BrokerSubscriber{broker: b, filter: filter, box: newLatest()}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Close detaches all subscribers. Later publishes fail.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[*BrokerSubscriber]struct{})
	return nil
}

// BrokerSubscriber receives from a Broker.
type BrokerSubscriber struct {
	broker *Broker
	filter string
	box    *latest
}

func (s *BrokerSubscriber) Latest() (Message, bool, error) {
	m, ok := s.box.take()
	return m, ok, nil
}

func (s *BrokerSubscriber) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	delete(s.broker.subs, s)
	return nil
}
