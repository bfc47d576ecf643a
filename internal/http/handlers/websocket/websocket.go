package websocket

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/princekumarofficial/statements-service/internal/utils/jwt"
	"github.com/princekumarofficial/statements-service/internal/utils/response"
	wsClient "github.com/princekumarofficial/statements-service/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Clients authenticate with a token, not cookies.
		return true
	},
}

// WebSocketHandler streams upload and merge progress events to the user
// named by the token query parameter.
// @Summary Subscribe to progress events
// @Tags events
// @Param token query string true "JWT access token"
// @Success 101 "Switching protocols"
// @Failure 401 {object} response.Response "Unauthorized"
// @Router /ws [get]
func WebSocketHandler(hub *wsClient.Hub, jwtSecret string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			logger.Warn("WebSocket connection attempted without token")
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("token required")))
			return
		}

		userID, err := jwt.ExtractUserIDFromToken(token, jwtSecret)
		if err != nil {
			logger.Warn("WebSocket connection attempted with invalid token", "error", err)
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("invalid token")))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("Failed to upgrade WebSocket connection", "error", err)
			return
		}

		client := wsClient.NewClient(conn, userID, hub)
		if !hub.RegisterClient(client) {
			// Hub is shutting down.
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
			conn.Close()
			return
		}
		client.Start()

		logger.Info("WebSocket connection established", "user_id", userID)
	}
}
