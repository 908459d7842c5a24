package service

import (
	"sync"

	"github.com/noah-isme/edunexa-api/internal/dto"
)

const streamBufferSize = 16

// userHub keeps the live SSE streams of each user on this node.
type userHub struct {
	mu      sync.RWMutex
	streams map[string][]chan dto.NotificationResponse
}

func newUserHub() *userHub {
	return &userHub{streams: make(map[string][]chan dto.NotificationResponse)}
}

// attach opens a buffered stream for userID. The returned detach func closes
// it and is safe to call more than once.
func (h *userHub) attach(userID string) (<-chan dto.NotificationResponse, func()) {
	stream := make(chan dto.NotificationResponse, streamBufferSize)

	h.mu.Lock()
	h.streams[userID] = append(h.streams[userID], stream)
	h.mu.Unlock()

	var once sync.Once
	detach := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			remaining := h.streams[userID][:0]
			for _, candidate := range h.streams[userID] {
				if candidate != stream {
					remaining = append(remaining, candidate)
				}
			}
			if len(remaining) == 0 {
				delete(h.streams, userID)
			} else {
				h.streams[userID] = remaining
			}
			close(stream)
		})
	}
	return stream, detach
}

// deliver hands the notification to every open stream of its recipient.
// Streams whose buffer is full miss the event.
func (h *userHub) deliver(notification dto.NotificationResponse) (delivered, dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, stream := range h.streams[notification.UserID] {
		select {
		case stream <- notification:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped
}

func (h *userHub) size(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[userID])
}
