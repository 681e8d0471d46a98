// Package realtime fans in-process events out to subscribers grouped by key.
package realtime

import (
	"context"
	"sync"
)

const defaultBufferSize = 64

// Dispatcher delivers published values to every subscriber of a key.
// A subscriber that falls a full buffer behind is dropped and its stream is
// closed, so consumers can tell a lost stream from a quiet one.
type Dispatcher[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber[T]
	nextID      int64
	bufferSize  int
}

type subscriber[T any] struct {
	id     int64
	mu     sync.Mutex
	closed bool
	stream chan T
}

// NewDispatcher returns a dispatcher whose subscriber streams hold bufferSize
// pending values. Non-positive sizes use the default.
func NewDispatcher[T any](bufferSize int) *Dispatcher[T] {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Dispatcher[T]{
		subscribers: make(map[string]map[int64]*subscriber[T]),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a stream for key. The stream is closed by cleanup, by
// ctx cancellation, or when the subscriber overflows.
func (d *Dispatcher[T]) Subscribe(ctx context.Context, key string) (<-chan T, func()) {
	if key == "" {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber[T]{stream: make(chan T, d.bufferSize)}
	d.register(key, sub)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(key, sub.id)
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish delivers value to the current subscribers of key without blocking.
func (d *Dispatcher[T]) Publish(key string, value T) {
	if key == "" {
		return
	}
	d.mu.RLock()
	subs := d.subscribers[key]
	if len(subs) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber[T], 0, len(subs))
	for _, sub := range subs {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()

	for _, sub := range copies {
		if !sub.offer(value) {
			d.unregister(key, sub.id)
			sub.close()
		}
	}
}

// SubscriberCount reports how many streams are registered for key.
func (d *Dispatcher[T]) SubscriberCount(key string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[key])
}

func (d *Dispatcher[T]) register(key string, sub *subscriber[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	sub.id = d.nextID
	if _, ok := d.subscribers[key]; !ok {
		d.subscribers[key] = make(map[int64]*subscriber[T])
	}
	d.subscribers[key][sub.id] = sub
}

func (d *Dispatcher[T]) unregister(key string, id int64) {
	d.mu.Lock()
	subs := d.subscribers[key]
	if subs != nil {
		delete(subs, id)
		if len(subs) == 0 {
			delete(d.subscribers, key)
		}
	}
	d.mu.Unlock()
}

// offer reports false when the buffer is full.
func (s *subscriber[T]) offer(value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.stream <- value:
		return true
	default:
		return false
	}
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.stream)
	}
}
