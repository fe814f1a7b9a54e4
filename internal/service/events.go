package service

import (
	"sync"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"

	"github.com/google/uuid"
)

// DrawHub fans draw events out to live mini-app clients. Slow subscribers
// drop events instead of blocking the engine.
type DrawHub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]chan model.DrawEvent
}

func NewDrawHub() *DrawHub {
	return &DrawHub{
		subscribers: make(map[uuid.UUID]chan model.DrawEvent),
	}
}

func (h *DrawHub) Subscribe() (uuid.UUID, <-chan model.DrawEvent) {
	id := uuid.New()
	ch := make(chan model.DrawEvent, 16)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	return id, ch
}

func (h *DrawHub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if ok {
		close(ch)
	}
}

func (h *DrawHub) Publish(event model.DrawEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
