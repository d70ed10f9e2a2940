package clients

import (
	"sync"
)

// InProcessBroker is a loopback BrokerClient used in tests: Publish delivers
// synchronously to every subscriber of the subject on a fresh goroutine.
type InProcessBroker struct {
	mu          sync.Mutex
	subscribers map[string][]*inProcessSubscription
	closed      bool
}

func NewInProcessBroker() *InProcessBroker {
	return &InProcessBroker{
		subscribers: make(map[string][]*inProcessSubscription),
	}
}

type inProcessSubscription struct {
	broker  *InProcessBroker
	subject string
	handler BrokerMessageHandler
}

func (s *inProcessSubscription) Unsubscribe() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	subs := s.broker.subscribers[s.subject]
	for i, sub := range subs {
		if sub == s {
			s.broker.subscribers[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

func (b *InProcessBroker) Publish(subject string, data []byte) error {
	b.mu.Lock()
	subs := make([]*inProcessSubscription, len(b.subscribers[subject]))
	copy(subs, b.subscribers[subject])
	b.mu.Unlock()

	for _, sub := range subs {
		go sub.handler(data)
	}
	return nil
}

func (b *InProcessBroker) Subscribe(subject string, handler BrokerMessageHandler) (BrokerSubscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &inProcessSubscription{broker: b, subject: subject, handler: handler}
	b.subscribers[subject] = append(b.subscribers[subject], sub)
	return sub, nil
}

func (b *InProcessBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string][]*inProcessSubscription)
	b.closed = true
}
