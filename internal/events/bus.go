// Package events provides a publish/subscribe event bus for
// operational observability. Events flow from components (reasoning
// loop, gateway, knowledge controller) to subscribers (presence
// publisher, future metrics collector). The bus is nil-safe: calling
// Publish on a nil *Bus is a no-op, so components do not need guard
// checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAgent identifies events from the reasoning loop.
	SourceAgent = "agent"
	// SourceGateway identifies events from the chat gateway.
	SourceGateway = "gateway"
	// SourceKnowledge identifies events from the knowledge controller.
	SourceKnowledge = "knowledge"
)

// Kind constants describe the type of event within a source.
const (
	// KindRequestStart signals the beginning of an interaction.
	// Data: interaction_id, channel_id, author_id.
	KindRequestStart = "request_start"
	// KindLLMCall signals the start of a decision oracle call.
	// Data: interaction_id, iter.
	KindLLMCall = "llm_call"
	// KindToolCall signals the start of a tool execution.
	// Data: interaction_id, tool.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a tool execution.
	// Data: interaction_id, tool, kind.
	KindToolDone = "tool_done"
	// KindRequestComplete signals the end of an interaction.
	// Data: interaction_id, iterations, result.
	KindRequestComplete = "request_complete"

	// KindMessageReceived signals an inbound chat message.
	// Data: channel_id, author_id, message_len.
	KindMessageReceived = "message_received"
	// KindMessageSent signals an outbound reply.
	// Data: channel_id, parts, attachments.
	KindMessageSent = "message_sent"

	// KindIngestPaused signals knowledge ingestion was paused for a
	// reply. Data: interaction_id.
	KindIngestPaused = "ingest_paused"
	// KindIngestResumed signals knowledge ingestion was resumed.
	// Data: interaction_id.
	KindIngestResumed = "ingest_resumed"
)

// Event is a single operational event published by a component.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive
// events on buffered channels; slow subscribers miss events rather
// than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel handed to a subscriber
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept the caller's view of the channel.
	recvToSend map[<-chan Event]chan Event
}

// New creates an event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers without blocking: a full
// subscriber channel drops the event for that subscriber. Safe to call
// on a nil receiver.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit is a convenience wrapper building the Event from parts.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	b.Publish(Event{Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid leaks.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Calling
// it twice with the same channel is a no-op.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount reports the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
