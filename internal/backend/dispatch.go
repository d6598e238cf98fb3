package backend

import (
	"sync"

	"github.com/nhle/todo-sync/internal/model"
)

// Dispatcher delivers events to a handler until closed. Once Close has
// returned, no delivery is in progress and none will start, which lets a
// subscriber tear down state right after closing.
//
// Close must not be called from inside the handler.
type Dispatcher struct {
	mu      sync.Mutex
	closed  bool
	handler ChangeHandler
}

// NewDispatcher wraps handler.
func NewDispatcher(handler ChangeHandler) *Dispatcher {
	return &Dispatcher{handler: handler}
}

// Dispatch invokes the handler with evt unless the dispatcher is closed.
// It reports whether the handler ran.
func (d *Dispatcher) Dispatch(evt model.ChangeEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	d.handler(evt)
	return true
}

// Close stops delivery, waiting for an in-flight Dispatch to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Closed reports whether Close has been called.
func (d *Dispatcher) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// AuthListeners is a registry of auth state handlers.
type AuthListeners struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]AuthStateHandler
	order    []int
}

// Add registers handler and returns its unregister function.
func (l *AuthListeners) Add(handler AuthStateHandler) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handlers == nil {
		l.handlers = make(map[int]AuthStateHandler)
	}
	l.nextID++
	id := l.nextID
	l.handlers[id] = handler
	l.order = append(l.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.handlers, id)
			for i, v := range l.order {
				if v == id {
					l.order = append(l.order[:i], l.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit calls every registered handler in registration order. Handlers run
// outside the registry lock and may unregister themselves.
func (l *AuthListeners) Emit(event model.AuthEvent, session *model.Session) {
	l.mu.Lock()
	handlers := make([]AuthStateHandler, 0, len(l.order))
	for _, id := range l.order {
		handlers = append(handlers, l.handlers[id])
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(event, session)
	}
}
