package cmd

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"trackforge/logger"
)

// livereloadHub tracks websocket connections from preview browsers and tells
// them to reload after a successful rebuild.
type livereloadHub struct {
	mu       sync.Mutex
	conns    map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

func newLivereloadHub() *livereloadHub {
	return &livereloadHub{
		conns: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			// Local preview only; the page and the socket share an origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *livereloadHub) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("livereload upgrade failed", logger.ErrorField(err))
		return
	}
	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()
	go h.readPump(conn)
}

// readPump drains the connection until it errors, then drops it, so a closed
// browser tab is reaped immediately instead of lingering until the next
// broadcast. Clients never send meaningful messages; reads only surface the
// close.
func (h *livereloadHub) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *livereloadHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[conn] {
		conn.Close()
		delete(h.conns, conn)
	}
}

func (h *livereloadHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *livereloadHub) broadcastReload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("reload")); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}
