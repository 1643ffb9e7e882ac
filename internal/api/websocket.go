package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"linuxmacro/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server only listens on loopback
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WSManager handles WebSocket connections and broadcasting
type WSManager struct {
	server     *Server
	clients    map[*WebSocketClient]bool
	clientsMu  sync.Mutex
	broadcast  chan protocol.Message
	unregister chan *WebSocketClient
	done       chan struct{}
	closed     bool
}

// WebSocketClient represents a connected controller
type WebSocketClient struct {
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
}

func newWSManager(s *Server) *WSManager {
	return &WSManager{
		server:     s,
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan protocol.Message, 64),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
	}
}

func (m *WSManager) start(ctx context.Context) {
	defer close(m.done)
	log := m.server.log
	for {
		select {
		case client := <-m.unregister:
			m.clientsMu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
				log.Infof("Websocket client unregistered from %s. Total clients: %d", client.ip, len(m.clients))
			}
			m.clientsMu.Unlock()

		case message := <-m.broadcast:
			m.broadcastMessage(message)

		case <-ctx.Done():
			m.clientsMu.Lock()
			m.closed = true
			for client := range m.clients {
				delete(m.clients, client)
				close(client.send)
			}
			m.clientsMu.Unlock()
			return
		}
	}
}

func (m *WSManager) add(client *WebSocketClient) bool {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	if m.closed {
		return false
	}
	m.clients[client] = true
	m.server.log.Infof("Websocket client registered from %s. Total clients: %d", client.ip, len(m.clients))
	return true
}

// Broadcast queues message for every client, dropping it if the queue is
// full.
func (m *WSManager) Broadcast(message protocol.Message) {
	select {
	case m.broadcast <- message:
	default:
		m.server.log.Warn("Websocket broadcast queue full, dropping message")
	}
}

func (m *WSManager) broadcastMessage(message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		m.server.log.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	for client := range m.clients {
		select {
		case client.send <- jsonMsg:
		default:
			close(client.send)
			delete(m.clients, client)
		}
	}
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.server.log.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := &WebSocketClient{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, 256),
		ip:      r.RemoteAddr,
	}

	// Register before any reply can target the client
	if !m.add(client) {
		conn.Close()
		return
	}

	// Start pump goroutines
	go client.writePump()
	go client.readPump()

	client.sendStatus(r.Context())
}

// readPump pumps messages from the websocket connection to the hub.
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.server.log.WithError(err).Warn("Websocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	log := c.manager.server.log

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.WithError(err).Warn("Invalid websocket message")
		return
	}

	switch msg.Type {
	case protocol.TypeCommand:
		var payload protocol.CommandPayload
		if err := msg.Decode(&payload); err != nil {
			c.reply(msg.ID, protocol.TypeError, protocol.ErrorPayload{Message: err.Error()})
			return
		}
		log.Infof("Command %q from %s", payload.Line, c.ip)

		// Use a goroutine to avoid blocking the read pump
		go func() {
			st, err := c.manager.server.ctrl.ExecuteLine(context.Background(), payload.Line)
			if err != nil {
				c.reply(msg.ID, protocol.TypeError, protocol.ErrorPayload{Message: err.Error(), Status: st})
				return
			}
			c.reply(msg.ID, protocol.TypeStatus, st)
		}()

	default:
		log.Warnf("Unexpected websocket message type %q", msg.Type)
	}
}

func (c *WebSocketClient) sendStatus(ctx context.Context) {
	st, err := c.manager.server.ctrl.ExecuteLine(ctx, protocol.CmdStatus)
	if err != nil {
		return
	}
	c.reply("", protocol.TypeStatus, st)
}

// reply sends to this client only. It gives up if the hub already
// dropped the client.
func (c *WebSocketClient) reply(id string, t protocol.MessageType, payload any) {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		return
	}
	msg.ID = id
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.manager.clientsMu.Lock()
	defer c.manager.clientsMu.Unlock()
	if !c.manager.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
