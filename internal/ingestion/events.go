// Package ingestion implements the ingestion pipeline orchestrator: scheduling
// source runs, tracking progress, and presenting pipeline events to external
// subscribers.
package ingestion

import "github.com/berntpopp/kidney-genetics-core/internal/domain"

// EventType identifies one kind of pipeline progress event.
type EventType string

const (
	EventStart        EventType = "start"
	EventHeartbeat    EventType = "heartbeat"
	EventPageComplete EventType = "page_complete"
	EventFinished     EventType = "finished"
	EventFailed       EventType = "failed"
	EventPaused       EventType = "paused"
)

// Event is one pipeline progress notification broadcast to external
// subscribers. RunID correlates
// every event of one run with the orchestrator's structured log lines.
type Event struct {
	Type           EventType         `json:"type"`
	Source         domain.SourceName `json:"source"`
	RunID          string            `json:"run_id,omitempty"`
	Mode           string            `json:"mode,omitempty"`
	CurrentPage    int               `json:"current_page,omitempty"`
	TotalPages     int               `json:"total_pages,omitempty"`
	ItemsProcessed int               `json:"items_processed,omitempty"`
	Message        string            `json:"message,omitempty"`
}

// Broadcaster emits pipeline events to external subscribers. The ingestion
// package depends only on this interface — internal/observability provides
// the gorilla/websocket-backed implementation — so the orchestrator can be
// unit tested against an in-memory fake.
type Broadcaster interface {
	Broadcast(Event)
}

// NoopBroadcaster discards every event; used when no subscriber is wired,
// so the orchestrator never needs a nil check at the call site.
type NoopBroadcaster struct{}

// Broadcast implements Broadcaster.
func (NoopBroadcaster) Broadcast(Event) {}
