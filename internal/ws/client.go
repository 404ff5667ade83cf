package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	// Single local user; the UI may be served from a dev server origin.
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub
}

func (c *Client) close() {
	if c.Conn != nil {
		c.Conn.Close()
	}
}

type activeContent struct {
	ChatID string `json:"chatId"`
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.detach(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.LogError(err, "websocket read failed", "client", c.ID)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Hub.log.Debug("ignoring malformed frame", "client", c.ID)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		c.sendMessage(EventPong, nil)
	case "active":
		var content activeContent
		if err := json.Unmarshal(msg.Content, &content); err != nil {
			c.sendMessage(EventError, map[string]string{"message": "active requires {chatId}"})
			return
		}
		if fn := c.Hub.activeHandler(); fn != nil {
			fn(content.ChatID)
		}
	default:
		c.sendMessage(EventError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

func (c *Client) sendMessage(eventType string, content any) {
	data, err := json.Marshal(outbound{Type: eventType, Content: content})
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and attaches the connection to hub.
func ServeWs(hub *Hub, c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.LogError(err, "websocket upgrade failed")
		return
	}

	clientID := c.Query("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	client := &Client{
		ID:   clientID,
		Conn: conn,
		Send: make(chan []byte, 256),
		Hub:  hub,
	}

	if !hub.attach(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
