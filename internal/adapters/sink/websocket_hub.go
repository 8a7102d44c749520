package sink

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

var (
	errHubClosed = errors.New("hub closed")
	errHubFull   = errors.New("too many subscribers")
)

const (
	defaultMaxSubscribers = 16
	wsWriteTimeout        = 2 * time.Second
)

// WebSocketHub broadcasts goal notifications to every connected client and
// forwards inbound text frames to a ControlHandler. It is both a Sink and a
// ControlEndpoint.
type WebSocketHub struct {
	upgrader websocket.Upgrader
	obs      ports.Observability
	max      int

	mu      sync.Mutex
	conns   map[*websocket.Conn]bool
	handler ports.ControlHandler
	closed  bool
	wg      sync.WaitGroup
}

// NewWebSocketHub builds a hub that accepts up to maxSubscribers clients.
func NewWebSocketHub(maxSubscribers int, obs ports.Observability) *WebSocketHub {
	if maxSubscribers <= 0 {
		maxSubscribers = defaultMaxSubscribers
	}
	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  256,
			WriteBufferSize: 256,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		obs:   obs,
		max:   maxSubscribers,
		conns: make(map[*websocket.Conn]bool),
	}
}

func (h *WebSocketHub) Name() string { return "websocket" }

// ServeHTTP upgrades the request and keeps the connection until the peer
// leaves or the hub closes.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	full := len(h.conns) >= h.max
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if full {
		h.obs.LogError("subscriber_rejected", nil, ports.Field{Key: "remote", Value: r.RemoteAddr})
		http.Error(w, "too many subscribers", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.obs.LogError("websocket_upgrade_failed", err, ports.Field{Key: "remote", Value: r.RemoteAddr})
		return
	}

	if err := h.add(conn); err != nil {
		h.obs.LogError("subscriber_rejected", err, ports.Field{Key: "remote", Value: r.RemoteAddr})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	go h.readLoop(conn)
}

// Subscribers reports the number of open connections.
func (h *WebSocketHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Send writes the notification text to every client. A client that cannot
// keep up is dropped; delivery to the rest is unaffected.
func (h *WebSocketHub) Send(_ context.Context, n domain.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(n.Text)); err != nil {
			h.obs.LogError("websocket_send_failed", err, ports.Field{Key: "remote", Value: conn.RemoteAddr().String()})
			delete(h.conns, conn)
			_ = conn.Close()
		}
	}
	return nil
}

// Start installs the handler for inbound control frames.
func (h *WebSocketHub) Start(handler ports.ControlHandler) error {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
	return nil
}

// Stop detaches the control handler; connections stay open for goals.
func (h *WebSocketHub) Stop() error {
	h.mu.Lock()
	h.handler = nil
	h.mu.Unlock()
	return nil
}

// Close disconnects every client and waits for their readers to exit.
func (h *WebSocketHub) Close() error {
	h.mu.Lock()
	h.closed = true
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	h.conns = make(map[*websocket.Conn]bool)
	h.mu.Unlock()
	h.wg.Wait()
	return nil
}

// add registers conn unless the hub is closed or already at its limit.
func (h *WebSocketHub) add(conn *websocket.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errHubClosed
	}
	if len(h.conns) >= h.max {
		return errHubFull
	}
	h.conns[conn] = true
	h.wg.Add(1)
	h.obs.LogInfo("subscriber_connected",
		ports.Field{Key: "remote", Value: conn.RemoteAddr().String()},
		ports.Field{Key: "total", Value: len(h.conns)})
	return nil
}

func (h *WebSocketHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; !ok {
		return
	}
	delete(h.conns, conn)
	_ = conn.Close()
	h.obs.LogInfo("subscriber_disconnected",
		ports.Field{Key: "remote", Value: conn.RemoteAddr().String()},
		ports.Field{Key: "total", Value: len(h.conns)})
}

func (h *WebSocketHub) readLoop(conn *websocket.Conn) {
	defer h.wg.Done()
	defer h.remove(conn)
	conn.SetReadLimit(512)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.mu.Lock()
		handler := h.handler
		h.mu.Unlock()
		if handler != nil {
			_ = handler.HandleWrite(data)
		}
	}
}

var (
	_ ports.Sink            = (*WebSocketHub)(nil)
	_ ports.ControlEndpoint = (*WebSocketHub)(nil)
)
