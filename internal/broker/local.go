package broker

import (
	"context"
	"sync"
	"time"

	"github.com/casualjim/tapes/provider"
	"github.com/google/uuid"
)

const (
	defaultSlowSubscriberTimeout = 100 * time.Millisecond
	subscriptionBuffer           = 50
)

// localBroker tracks subscriptions per topic id. A topic only has an entry while it has
// subscribers, so ids that come and go leave nothing behind.
type localBroker struct {
	mu                    sync.RWMutex
	topics                map[string]map[string]*localSubscription
	slowSubscriberTimeout time.Duration
}

// Local returns an in-process broker.
func Local() *localBroker {
	return &localBroker{
		topics:                make(map[string]map[string]*localSubscription),
		slowSubscriberTimeout: defaultSlowSubscriberTimeout,
	}
}

// WithSlowSubscriberTimeout sets how long a publish waits on a full subscription before
// dropping that subscriber.
func (b *localBroker) WithSlowSubscriberTimeout(timeout time.Duration) *localBroker {
	b.slowSubscriberTimeout = timeout
	return b
}

func (b *localBroker) Topic(_ context.Context, id string) Topic {
	return &localTopic{broker: b, id: id}
}

func (b *localBroker) subscribers(id string) []*localSubscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := make([]*localSubscription, 0, len(b.topics[id]))
	for _, sub := range b.topics[id] {
		subs = append(subs, sub)
	}
	return subs
}

func (b *localBroker) add(id string, sub *localSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[id]
	if !ok {
		subs = make(map[string]*localSubscription)
		b.topics[id] = subs
	}
	subs[sub.id] = sub
}

func (b *localBroker) remove(id, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[id]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.topics, id)
	}
}

type localTopic struct {
	broker *localBroker
	id     string
}

func (t *localTopic) Publish(ctx context.Context, event provider.StreamEvent) error {
	for _, sub := range t.broker.subscribers(t.id) {
		if sub.ctx.Err() != nil {
			sub.Unsubscribe()
			continue
		}
		if !t.deliver(ctx, sub, event) {
			break
		}
	}
	return ctx.Err()
}

// deliver hands event to sub and reports whether publishing should go on.
func (t *localTopic) deliver(ctx context.Context, sub *localSubscription, event provider.StreamEvent) bool {
	timer := time.NewTimer(t.broker.slowSubscriberTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-sub.ctx.Done():
		sub.Unsubscribe()
	case <-sub.done:
	case sub.events <- event:
	case <-timer.C:
		// a subscriber that cannot keep up is dropped
		sub.Unsubscribe()
	}
	return true
}

func (t *localTopic) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	id := uuid.Must(uuid.NewV7()).String()
	sub := &localSubscription{
		id:      id,
		ctx:     ctx,
		events:  make(chan provider.StreamEvent, subscriptionBuffer),
		done:    make(chan struct{}),
		onClose: func() { t.broker.remove(t.id, id) },
		handler: handler,
	}
	t.broker.add(t.id, sub)
	go sub.forward()
	return sub, nil
}

type localSubscription struct {
	id        string
	ctx       context.Context
	events    chan provider.StreamEvent
	done      chan struct{}
	closeOnce sync.Once
	onClose   func()
	handler   Handler
}

func (s *localSubscription) ID() string {
	return s.id
}

func (s *localSubscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		s.onClose()
		close(s.done)
	})
}

func (s *localSubscription) forward() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			s.Unsubscribe()
			return
		case event := <-s.events:
			s.handler(s.ctx, event)
		}
	}
}
