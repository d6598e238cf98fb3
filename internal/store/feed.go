package store

import (
	gosync "sync"

	"github.com/charmbracelet/log"

	"github.com/nhle/todo-sync/internal/model"
)

// defaultFeedBuffer is the per-subscriber queue length used when callers
// pass a non-positive buffer size.
const defaultFeedBuffer = 256

// Feed fans committed row changes out to subscribers in commit order.
type Feed struct {
	mu     gosync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	logger *log.Logger
}

// Subscription receives change events from a Feed until closed.
type Subscription struct {
	id   uint64
	feed *Feed
	ch   chan model.ChangeEvent
	once gosync.Once
}

// NewFeed creates an empty feed.
func NewFeed(logger *log.Logger) *Feed {
	if logger == nil {
		logger = log.Default()
	}
	return &Feed{
		subs:   make(map[uint64]*Subscription),
		logger: logger,
	}
}

// Subscribe registers a new subscriber with the given queue length.
func (f *Feed) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultFeedBuffer
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := &Subscription{
		id:   f.nextID,
		feed: f,
		ch:   make(chan model.ChangeEvent, buffer),
	}
	f.subs[sub.id] = sub
	return sub
}

// Publish delivers evt to every subscriber without blocking. A subscriber
// whose queue is full misses the event.
func (f *Feed) Publish(evt model.ChangeEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for id, sub := range f.subs {
		select {
		case sub.ch <- evt:
		default:
			f.logger.Warn("change feed subscriber queue full, dropping event",
				"subscriber", id, "kind", evt.Kind)
		}
	}
}

// Len returns the number of open subscriptions.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Events returns the channel events are delivered on. It is closed when
// the subscription is closed.
func (s *Subscription) Events() <-chan model.ChangeEvent {
	return s.ch
}

// Close unregisters the subscription and closes its channel. It is safe
// to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		close(s.ch)
		s.feed.mu.Unlock()
	})
}
