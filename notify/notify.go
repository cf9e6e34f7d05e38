// Package notify carries one-way events from the core to whoever is watching.
// Delivery is best effort: a sink that fails or panics is logged and skipped,
// it never reaches the publisher.
package notify

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrSinkFull is returned by a ChanSink whose buffer has no room.
var ErrSinkFull = errors.New("sink buffer full")

// Sink receives events of type T.
type Sink[T any] interface {
	Send(T) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc[T any] func(T) error

func (f SinkFunc[T]) Send(v T) error { return f(v) }

// ChanSink forwards events into a buffered channel without blocking.
type ChanSink[T any] struct {
	C chan T
}

// NewChanSink creates a ChanSink with the given buffer size.
func NewChanSink[T any](size int) *ChanSink[T] {
	return &ChanSink[T]{C: make(chan T, size)}
}

func (s *ChanSink[T]) Send(v T) error {
	select {
	case s.C <- v:
		return nil
	default:
		return ErrSinkFull
	}
}

// Deliver sends v to sink and swallows anything that goes wrong, panics included.
func Deliver[T any](log *zap.SugaredLogger, sink Sink[T], v T) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && log != nil {
			log.Warnw("Event sink panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	if err := sink.Send(v); err != nil && log != nil {
		log.Debugw("Event sink rejected event", zap.Error(err))
	}
}

// Hub fans events out to every subscribed sink, in publish order.
type Hub[T any] struct {
	mu     sync.Mutex
	nextID int
	sinks  map[int]Sink[T]
	log    *zap.SugaredLogger
}

// NewHub creates an empty hub. A nil logger is replaced with a no-op one.
func NewHub[T any](log *zap.SugaredLogger) *Hub[T] {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub[T]{sinks: map[int]Sink[T]{}, log: log}
}

// Subscribe registers sink and returns a function that removes it again.
func (h *Hub[T]) Subscribe(sink Sink[T]) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.sinks[id] = sink
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.sinks, id)
		h.mu.Unlock()
	}
}

// Publish delivers v to every sink in subscription order. Sinks must not call
// back into the hub.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := 0; id < h.nextID; id++ {
		sink, ok := h.sinks[id]
		if !ok {
			continue
		}
		Deliver(h.log, sink, v)
	}
}
