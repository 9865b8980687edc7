package pubsub

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
)

const subscriberBufferSize = 32

type subscriber struct {
	types map[ports.EventType]struct{}
	ch    chan ports.Event
}

func (s *subscriber) wants(eventType ports.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// Broker is an in-process PubSubService. Publish never blocks: events for
// a subscriber whose buffer is full are dropped with a warning.
type Broker struct {
	lock        *sync.RWMutex
	subscribers []*subscriber
	closed      bool
}

func NewBroker() *Broker {
	return &Broker{lock: &sync.RWMutex{}}
}

func (b *Broker) Publish(event ports.Event) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			log.WithField("type", event.Type).Warn(
				"pubsub: dropping event for slow subscriber",
			)
		}
	}
}

// Subscribe returns a channel delivering events of the given types, or all
// events when no type is given. The channel is closed by Close.
func (b *Broker) Subscribe(types ...ports.EventType) <-chan ports.Event {
	b.lock.Lock()
	defer b.lock.Unlock()

	sub := &subscriber{
		types: make(map[ports.EventType]struct{}, len(types)),
		ch:    make(chan ports.Event, subscriberBufferSize),
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	if b.closed {
		close(sub.ch)
		return sub.ch
	}

	b.subscribers = append(b.subscribers, sub)
	return sub.ch
}

func (b *Broker) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
}

var _ ports.PubSubService = (*Broker)(nil)
