package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/flowcanvas/geometry"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/version"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// HelloMessage is the first message a client receives
type HelloMessage struct {
	Type     string         `json:"type"`
	Version  string         `json:"version"`
	Commit   string         `json:"commit"`
	Snapshot graph.Snapshot `json:"snapshot"`
	Running  bool           `json:"running"`
}

// ClientMessage is a high-frequency pointer update sent over the socket
// instead of HTTP
type ClientMessage struct {
	Type   string  `json:"type"` // "gesture_move" or "node_drag"
	NodeID string  `json:"node_id,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Client is a WebSocket connection following the editor
type Client struct {
	server    *Server
	conn      *websocket.Conn
	send      chan interface{}
	id        string
	closeOnce sync.Once
}

// readPump applies pointer updates from the client until the connection drops
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.server.logger.Warnw("JSON unmarshal error", "error", err.Error(), "client_id", c.id)
			continue
		}
		c.routeMessage(msg)
	}
}

// handleReadError logs unexpected close errors; normal closures are silent
func (c *Client) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		c.server.logger.Warnw("WebSocket read error", "error", err.Error(), "client_id", c.id)
	}
}

func (c *Client) routeMessage(msg ClientMessage) {
	ed := c.server.editor
	switch msg.Type {
	case "gesture_move":
		ed.UpdateConnectionCursor(geometry.Point{X: msg.X, Y: msg.Y})
	case "node_drag":
		if err := ed.DragNode(msg.NodeID, graph.Position{X: msg.X, Y: msg.Y}); err != nil {
			c.server.logger.Debugw("Drag ignored", "node_id", msg.NodeID, "error", err.Error(), "client_id", c.id)
		}
	default:
		c.server.logger.Warnw("Unknown message type", "type", msg.Type, "client_id", c.id)
	}
}

// writePump sends queued messages and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Warnw("Event write error", "error", err.Error(), "client_id", c.id)
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

func (c *Client) hello() HelloMessage {
	info := version.Get()
	return HelloMessage{
		Type:     "hello",
		Version:  info.Version,
		Commit:   info.Short(),
		Snapshot: c.server.editor.Snapshot(),
		Running:  c.server.editor.Running(),
	}
}

// close closes the send queue once; only the hub calls it
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
