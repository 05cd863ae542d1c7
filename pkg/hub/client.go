package hub

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send filter updates
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Client is one event subscriber. Its filter is guarded by the hub mutex.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	filter Filter
	send   chan Message
}

// NewClient registers a subscriber with the hub. It returns nil if the hub
// has stopped.
func NewClient(hub *Hub, conn *websocket.Conn, filter Filter) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		filter: filter,
		send:   make(chan Message, sendBuffer),
	}
	if !hub.attach(c) {
		return nil
	}
	return c
}

// Run pumps events to the connection and blocks until it closes.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump applies filter updates sent as {"user": "...", "kinds": [...]}
// and detects disconnection.
func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		var f Filter
		if err := json.Unmarshal(data, &f); err != nil {
			c.hub.logger.Debug("ignoring subscriber message", "error", err)
			continue
		}
		c.hub.setFilter(c, f)
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	keepalive := time.NewTicker(pingPeriod)
	defer func() {
		keepalive.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case m, ok := <-c.send:
			if !ok {
				// Hub dropped us
				c.write(websocket.CloseMessage, nil)
				return
			}
			err = c.write(websocket.TextMessage, m.Data)
		case <-keepalive.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}
