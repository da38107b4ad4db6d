package inproc

import (
	"context"
	"errors"
	"sync"

	"foobar_factory/internal/domain"
)

var (
	ErrSubscriberExists = errors.New("subscriber is already registered in bus")
	ErrBusClosed        = errors.New("bus is closed")
)

// Bus fans every published report out to all registered subscribers.
// Publish blocks until each subscriber queue accepted the report, so
// subscribers see reports in publication order and none are lost.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan domain.Report
	order  []string
	buffer int
	closed bool
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]chan domain.Report),
		buffer: buffer,
	}
}

func (b *Bus) Register(subscriberID string) (<-chan domain.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, ok := b.subs[subscriberID]; ok {
		return nil, ErrSubscriberExists
	}
	ch := make(chan domain.Report, b.buffer)
	b.subs[subscriberID] = ch
	b.order = append(b.order, subscriberID)
	return ch, nil
}

func (b *Bus) Unregister(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[subscriberID]
	if !ok {
		return
	}
	delete(b.subs, subscriberID)
	for i, id := range b.order {
		if id == subscriberID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	close(ch)
}

func (b *Bus) Publish(ctx context.Context, r domain.Report) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	for _, id := range b.order {
		select {
		case b.subs[id] <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Emit makes the bus usable as the production line's report sink.
func (b *Bus) Emit(ctx context.Context, r domain.Report) error {
	return b.Publish(ctx, r)
}

// Close closes every subscriber channel once queued reports are drained by
// the readers. Publishing after Close fails with ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, id := range b.order {
		close(b.subs[id])
	}
	b.subs = make(map[string]chan domain.Report)
	b.order = nil
}
