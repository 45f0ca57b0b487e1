package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iklevente/crewdo-backend-sub001/internal/app/server/ws"
	"github.com/iklevente/crewdo-backend-sub001/internal/config"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/services"
	"github.com/iklevente/crewdo-backend-sub001/internal/platform/logger"
	"github.com/iklevente/crewdo-backend-sub001/pkg/logging"
	"github.com/iklevente/crewdo-backend-sub001/pkg/middleware"
)

type WSHandler struct {
	manager *services.ManagerService
	hub     config.HubConfig
}

func NewWSHandler(manager *services.ManagerService, hub config.HubConfig) *WSHandler {
	return &WSHandler{manager: manager, hub: hub}
}

// Handler upgrades an authenticated request to a WebSocket session.
// The auth middleware has already verified the bearer token; a request
// without claims never reaches admission.
func (h *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	span := trace.SpanFromContext(r.Context())

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.UserID == "" {
		log.ErrorContext(r.Context(), "ws handler - unauthorised missing claims")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	span.SetAttributes(attribute.String("user.id", claims.UserID))

	sessionCtx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(sessionCtx)
	// The heartbeat goroutine runs on ctx; an abrupt TCP drop ends the
	// read loop without a close frame, so the handler return must cancel.
	defer cancel()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // tighten later
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()
	conn.SetCloseHandler(func(code int, text string) error {
		log.Info("ws handler - connection closed", "user_id", claims.UserID)
		cancel()
		return nil
	})

	socket := ws.NewWebSocket(ctx, conn, h.hub.WriteTimeout, h.hub.ReadLimit)
	client := ws.NewClient(ctx, socket, claims, h.hub.SendBuffer)
	if err := h.manager.HandleConnect(ctx, client); err != nil {
		log.ErrorContext(r.Context(), "ws handler - handle connect failed", logging.User(claims.UserID), logging.Err(err))
		client.Close()
		return
	}
	defer h.manager.HandleDisconnect(sessionCtx, client)
	defer client.Close()

	go h.manager.HandleHeartbeat(ctx, client, h.hub.HeartbeatInterval, h.hub.RosterTTL)
	log.InfoContext(r.Context(), "ws handler - connection established", "user_id", claims.UserID, "conn_id", client.ID())

	socket.ReadLoop(func(data []byte) {
		h.manager.HandleEvent(ctx, client, data)
	})
}
