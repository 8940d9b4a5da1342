// Package stream fans out document lifecycle events to SSE subscribers.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event types published by the document service.
const (
	EventUploaded = "uploaded"
	EventVerified = "verified"
	EventRejected = "rejected"
	EventRevoked  = "revoked"
)

// DocumentEvent describes one state change on a document root or version.
// Key material never travels through the stream.
type DocumentEvent struct {
	Type        string    `json:"type"`
	RootHash    string    `json:"rootHash"`
	VersionHash string    `json:"versionHash,omitempty"`
	Domain      string    `json:"domain,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Stream fan-outs document events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan DocumentEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan DocumentEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan DocumentEvent {
	ch := make(chan DocumentEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt DocumentEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
