package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/princekumarofficial/statements-service/internal/types"
)

type fakeHub struct {
	mu        sync.Mutex
	connected map[string]bool
	sent      map[string][]*types.Event
}

func newFakeHub(connected ...string) *fakeHub {
	h := &fakeHub{connected: map[string]bool{}, sent: map[string][]*types.Event{}}
	for _, u := range connected {
		h.connected[u] = true
	}
	return h
}

func (h *fakeHub) BroadcastToUser(userID string, event *types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent[userID] = append(h.sent[userID], event)
}

func (h *fakeHub) IsUserConnected(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected[userID]
}

func TestMergeUpdated_PicksEventTypeByStatus(t *testing.T) {
	hub := newFakeHub("owner")
	p := NewEventPublisher(hub)

	cases := map[types.MergeStatus]types.EventType{
		types.MergeProcessing: types.EventMergeProgress,
		types.MergeCompleted:  types.EventMergeCompleted,
		types.MergeFailed:     types.EventMergeFailed,
		types.MergeCancelled:  types.EventMergeCancelled,
	}
	for status, want := range cases {
		p.MergeUpdated(context.Background(), types.MergeSession{MergeSessionID: "m1", OwnerID: "owner", Status: status, Progress: 40})
		events := hub.sent["owner"]
		got := events[len(events)-1]
		if got.Type != want {
			t.Fatalf("status %s: expected %s, got %s", status, want, got.Type)
		}
		data := got.Data.(*types.MergeProgressEvent)
		if data.ProgressPercent != 40 || data.MergeSessionID != "m1" {
			t.Fatalf("Unexpected payload: %+v", data)
		}
	}
}

func TestPublisher_SkipsDisconnectedOwners(t *testing.T) {
	hub := newFakeHub()
	p := NewEventPublisher(hub)

	p.MergeUpdated(context.Background(), types.MergeSession{MergeSessionID: "m1", OwnerID: "owner"})
	now := time.Now()
	p.OnUploadCompleted(context.Background(), types.UploadSession{SessionID: "s1", OwnerID: "owner", CompletedAt: &now})

	if len(hub.sent) != 0 {
		t.Fatalf("Expected no events, got %v", hub.sent)
	}
}

func TestOnUploadCompleted_CarriesGroup(t *testing.T) {
	hub := newFakeHub("owner")
	p := NewEventPublisher(hub)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	p.OnUploadCompleted(context.Background(), types.UploadSession{
		SessionID:   "s1",
		OwnerID:     "owner",
		CompletedAt: &now,
		Group:       &types.GroupMetadata{MergeSessionID: "m1", VideoIndex: 2, VideoCount: 3},
	})

	ev := hub.sent["owner"][0]
	if ev.Type != types.EventUploadCompleted {
		t.Fatalf("Unexpected type %s", ev.Type)
	}
	data := ev.Data.(*types.UploadCompletedEvent)
	if data.MergeSessionID != "m1" || data.VideoIndex != 2 || data.CompletedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("Unexpected payload: %+v", data)
	}
}
