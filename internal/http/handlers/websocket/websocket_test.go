package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/princekumarofficial/statements-service/internal/logging"
	"github.com/princekumarofficial/statements-service/internal/types"
	"github.com/princekumarofficial/statements-service/internal/utils/jwt"
	wsClient "github.com/princekumarofficial/statements-service/internal/websocket"
)

const testSecret = "ws-secret"

func TestWebSocketHandler_RejectsMissingAndBadTokens(t *testing.T) {
	hub := wsClient.NewHub(logging.Discard())
	handler := WebSocketHandler(hub, testSecret, logging.Discard())

	for _, path := range []string{"/ws", "/ws?token=garbage"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestWebSocketHandler_DeliversEvents(t *testing.T) {
	hub := wsClient.NewHub(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(WebSocketHandler(hub, testSecret, logging.Discard()))
	defer srv.Close()

	token, err := jwt.GenerateToken("alice", testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !hub.IsUserConnected("alice") {
		if time.Now().After(deadline) {
			t.Fatal("Client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastToUser("alice", types.NewEvent(types.EventMergeProgress, &types.MergeProgressEvent{MergeSessionID: "m1", ProgressPercent: 40}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev types.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if ev.Type != types.EventMergeProgress {
		t.Fatalf("Expected %s, got %s", types.EventMergeProgress, ev.Type)
	}
}
