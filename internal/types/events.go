package types

import "time"

// EventType represents the type of real-time event
type EventType string

const (
	EventUploadCompleted EventType = "upload.completed"
	EventMergeProgress   EventType = "merge.progress"
	EventMergeCompleted  EventType = "merge.completed"
	EventMergeFailed     EventType = "merge.failed"
	EventMergeCancelled  EventType = "merge.cancelled"
)

// Event represents a real-time event that can be sent over WebSocket
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// UploadCompletedEvent is pushed once a session's file has been reassembled.
type UploadCompletedEvent struct {
	SessionID      string `json:"session_id"`
	MergeSessionID string `json:"merge_session_id,omitempty"`
	VideoIndex     int    `json:"video_index"`
	CompletedAt    string `json:"completed_at"`
}

// MergeProgressEvent mirrors the merge status descriptor.
type MergeProgressEvent struct {
	MergeSessionID    string               `json:"merge_session_id"`
	Status            MergeStatus          `json:"status"`
	Stage             string               `json:"stage,omitempty"`
	ProgressPercent   float64              `json:"progress_percent"`
	MergedArtifactRef string               `json:"merged_artifact_ref,omitempty"`
	MergedMetadata    *MergedVideoMetadata `json:"merged_metadata,omitempty"`
	ErrorMessage      string               `json:"error_message,omitempty"`
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// MergeEventType picks the event type that matches a merge status.
func MergeEventType(status MergeStatus) EventType {
	switch status {
	case MergeCompleted:
		return EventMergeCompleted
	case MergeFailed:
		return EventMergeFailed
	case MergeCancelled:
		return EventMergeCancelled
	default:
		return EventMergeProgress
	}
}
