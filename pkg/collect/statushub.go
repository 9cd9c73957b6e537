package collect

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/nicktill/journeyboard/pkg/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header = direct connection (non-browser clients)
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// observer is one connected status watcher, scoped to a single customer.
type observer struct {
	conn       *websocket.Conn
	customerID string
}

// StatusHub streams collection-status updates to WebSocket observers. Each
// observer watches exactly one customer; a snapshot is only delivered to
// connections registered for its customer. Updates are best-effort: with no
// observers connected, or with the broadcast buffer full, updates are
// dropped rather than blocking a run.
type StatusHub struct {
	clients map[*websocket.Conn]string // conn -> customer ID watched

	register   chan observer
	unregister chan *websocket.Conn
	broadcast  chan Status

	mu sync.RWMutex
}

// NewStatusHub creates a WebSocket status hub.
func NewStatusHub() *StatusHub {
	return &StatusHub{
		clients:    make(map[*websocket.Conn]string),
		register:   make(chan observer, config.WSChannelBuffer),
		unregister: make(chan *websocket.Conn, config.WSChannelBuffer),
		broadcast:  make(chan Status, config.WSBroadcastBuffer),
	}
}

// Run starts the hub's main loop.
func (h *StatusHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
			}
			h.mu.Unlock()
			return
		case o := <-h.register:
			h.mu.Lock()
			h.clients[o.conn] = o.customerID
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Status observer connected for %s (total: %d)", o.customerID, count)
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Status observer disconnected (total: %d)", count)
		case s := <-h.broadcast:
			message, err := json.Marshal(s)
			if err != nil {
				continue
			}

			h.mu.RLock()
			var failed []*websocket.Conn
			for conn, customerID := range h.clients {
				if customerID != s.CustomerID {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					log.Printf("Status observer write error: %v", err)
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()

			// Drop failed connections inline; feeding them back through the
			// unregister channel from this loop can fill the buffer and
			// deadlock the hub against itself.
			if len(failed) > 0 {
				h.mu.Lock()
				for _, conn := range failed {
					if _, ok := h.clients[conn]; ok {
						delete(h.clients, conn)
						conn.Close()
					}
				}
				count := len(h.clients)
				h.mu.Unlock()
				log.Printf("Dropped %d failed status observers (total: %d)", len(failed), count)
			}
		}
	}
}

// Broadcast queues one status snapshot for the customer's observers. Never
// blocks; with nobody connected the snapshot is discarded immediately.
func (h *StatusHub) Broadcast(s Status) {
	if !h.HasClients() {
		return
	}
	select {
	case h.broadcast <- s:
	default:
		// Buffer full, drop rather than stall the run
	}
}

// HasClients reports whether any observer is connected.
func (h *StatusHub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// HandleWebSocket upgrades the request and keeps the connection registered
// for the customer in the route until the peer goes away.
func (h *StatusHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]
	if customerID == "" {
		http.Error(w, "customer id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.register <- observer{conn: conn, customerID: customerID}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Ping sender keeps idle connections alive.
	go func() {
		ticker := time.NewTicker(config.WSPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	defer func() {
		cancel()
		h.unregister <- conn
	}()

	conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	// Read loop handles control frames and detects close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}
