package events

import (
	"context"
	"time"

	"github.com/princekumarofficial/statements-service/internal/types"
)

// WebSocketHub interface for the WebSocket hub
type WebSocketHub interface {
	BroadcastToUser(userID string, event *types.Event)
	IsUserConnected(userID string) bool
}

// EventPublisher pushes upload and merge progress to the owning user. It
// is registered as a merge observer and an upload completion listener.
type EventPublisher struct {
	hub WebSocketHub
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(hub WebSocketHub) *EventPublisher {
	return &EventPublisher{
		hub: hub,
	}
}

// MergeUpdated publishes the merge's current status to its owner.
func (p *EventPublisher) MergeUpdated(_ context.Context, session types.MergeSession) {
	// Only send if the owner is connected
	if !p.hub.IsUserConnected(session.OwnerID) {
		return
	}

	eventData := &types.MergeProgressEvent{
		MergeSessionID:    session.MergeSessionID,
		Status:            session.Status,
		Stage:             session.Stage,
		ProgressPercent:   session.Progress,
		MergedArtifactRef: session.MergedArtifactRef,
		MergedMetadata:    session.MergedMetadata,
		ErrorMessage:      session.ErrorMessage,
	}
	p.hub.BroadcastToUser(session.OwnerID, types.NewEvent(types.MergeEventType(session.Status), eventData))
}

// OnUploadCompleted publishes an upload.completed event to the uploader.
func (p *EventPublisher) OnUploadCompleted(_ context.Context, session types.UploadSession) {
	if !p.hub.IsUserConnected(session.OwnerID) {
		return
	}

	eventData := &types.UploadCompletedEvent{
		SessionID: session.SessionID,
	}
	if session.Group != nil {
		eventData.MergeSessionID = session.Group.MergeSessionID
		eventData.VideoIndex = session.Group.VideoIndex
	}
	if session.CompletedAt != nil {
		eventData.CompletedAt = session.CompletedAt.UTC().Format(time.RFC3339)
	}
	p.hub.BroadcastToUser(session.OwnerID, types.NewEvent(types.EventUploadCompleted, eventData))
}
