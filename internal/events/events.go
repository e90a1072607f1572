// Package events fans request activity out to SSE subscribers.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

const (
	TypeRequestStarted   = "request.started"
	TypeStepLogged       = "step.logged"
	TypeStepOutcome      = "step.outcome"
	TypeRequestCompleted = "request.completed"
	TypeAdviceAdded      = "advice.added"
)

// AllRequests subscribes to events of every request.
const AllRequests int64 = 0

const (
	subscriberBuffer = 16
	// DefaultBacklog is how many recent events a broker keeps for replay.
	DefaultBacklog = 256
)

type RequestEvent struct {
	RequestID int64          `json:"request_id"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Ts        string         `json:"ts"`
	TraceID   string         `json:"trace_id,omitempty"`
	Payload   map[string]any `json:"payload"`
}

// Broker is an in-process pub/sub keyed by request id. It keeps the most
// recent events so a reconnecting subscriber can resume after a sequence
// number.
type Broker struct {
	mu          sync.RWMutex
	seq         int64
	subscribers map[int64]map[chan RequestEvent]struct{}
	backlog     []RequestEvent
	backlogSize int
}

func NormalizeType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

func NewBroker() *Broker {
	return NewBrokerWithBacklog(DefaultBacklog)
}

func NewBrokerWithBacklog(size int) *Broker {
	if size < 0 {
		size = 0
	}
	return &Broker{
		subscribers: map[int64]map[chan RequestEvent]struct{}{},
		backlogSize: size,
	}
}

// Subscribe returns a channel of events for requestID (or AllRequests). The
// channel is closed once ctx is done.
func (b *Broker) Subscribe(ctx context.Context, requestID int64) <-chan RequestEvent {
	ch := make(chan RequestEvent, subscriberBuffer)

	b.mu.Lock()
	subs := b.subscribers[requestID]
	if subs == nil {
		subs = map[chan RequestEvent]struct{}{}
		b.subscribers[requestID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	context.AfterFunc(ctx, func() {
		b.mu.Lock()
		delete(b.subscribers[requestID], ch)
		if len(b.subscribers[requestID]) == 0 {
			delete(b.subscribers, requestID)
		}
		b.mu.Unlock()
		close(ch)
	})
	return ch
}

// Publish stamps the event with the next sequence number and fans it out
// without blocking; a full subscriber misses the event and can pick it up
// again through Since.
func (b *Broker) Publish(event RequestEvent) RequestEvent {
	if b == nil {
		return event
	}
	event.Type = NormalizeType(event.Type)
	if event.Ts == "" {
		event.Ts = store.Now()
	}
	if event.TraceID == "" {
		event.TraceID = uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	event.Seq = b.seq
	if b.backlogSize > 0 {
		if len(b.backlog) == b.backlogSize {
			b.backlog = append(b.backlog[:0], b.backlog[1:]...)
		}
		b.backlog = append(b.backlog, event)
	}
	deliver(b.subscribers[event.RequestID], event)
	if event.RequestID != AllRequests {
		deliver(b.subscribers[AllRequests], event)
	}
	return event
}

// Since returns retained events for requestID (every request for
// AllRequests) with a sequence number above afterSeq, oldest first.
func (b *Broker) Since(requestID int64, afterSeq int64) []RequestEvent {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var events []RequestEvent
	for _, event := range b.backlog {
		if event.Seq <= afterSeq {
			continue
		}
		if requestID != AllRequests && event.RequestID != requestID {
			continue
		}
		events = append(events, event)
	}
	return events
}

func deliver(subscribers map[chan RequestEvent]struct{}, event RequestEvent) {
	for ch := range subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
