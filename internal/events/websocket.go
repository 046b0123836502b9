package events

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// NamespaceFunc resolves the namespace a request may observe.
type NamespaceFunc func(r *http.Request) string

// WebSocketHandler streams pointer events for the caller's namespace.
type WebSocketHandler struct {
	hub            *Hub
	namespace      NamespaceFunc
	originPatterns []string
	insecure       bool
}

// NewWebSocketHandler creates the /ws/pointers handler. In development any
// origin is accepted.
func NewWebSocketHandler(hub *Hub, namespace NamespaceFunc, originPatterns []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		namespace:      namespace,
		originPatterns: originPatterns,
		insecure:       isDev,
	}
}

// ServeHTTP upgrades the connection and forwards events until either side closes.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ns := h.namespace(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: h.insecure,
	})
	if err != nil {
		slog.Warn("pointer feed upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	sub := h.hub.Subscribe(ns)
	defer sub.Close()

	// Clients never send; CloseRead handles control frames and cancels ctx on close.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	slog.Debug("pointer feed connected", "namespace", ns)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				slog.Debug("pointer feed write failed", "namespace", ns, "error", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
