package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Shivam-Patel-G/blended-math/core/monitoring"
)

const writeWait = 5 * time.Second

// wsClient serialises writes to one connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func statusMessage(st monitoring.Status) map[string]interface{} {
	return map[string]interface{}{
		"type":      "status",
		"status":    st,
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

func (s *Server) currentStatus() monitoring.Status {
	if s.opts.Monitor == nil {
		return monitoring.Status{State: monitoring.StateLoading}
	}
	return s.opts.Monitor.Status()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	client := &wsClient{conn: conn}
	defer conn.Close()

	s.clientsMu.Lock()
	s.clients[client] = true
	total := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.WithField("clients", total).Debug("WebSocket client connected")

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client)
		s.clientsMu.Unlock()
	}()

	if err := client.send(statusMessage(s.currentStatus())); err != nil {
		return
	}

	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).Warn("WebSocket error")
			}
			return
		}

		switch msg["type"] {
		case "ping":
			client.send(map[string]interface{}{
				"type":      "pong",
				"timestamp": time.Now().Format(time.RFC3339),
			})
		case "get_status":
			client.send(statusMessage(s.currentStatus()))
		}
	}
}

// BroadcastStatus pushes st to every connected client, dropping the ones
// that fail.
func (s *Server) BroadcastStatus(st monitoring.Status) {
	s.clientsMu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	msg := statusMessage(st)
	for _, c := range clients {
		if err := c.send(msg); err != nil {
			s.logger.WithError(err).Debug("Dropping WebSocket client")
			s.clientsMu.Lock()
			delete(s.clients, c)
			s.clientsMu.Unlock()
			c.conn.Close()
		}
	}
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.conn.Close()
		delete(s.clients, c)
	}
}
