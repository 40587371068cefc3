package ws

import (
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 32 * 1024
	sendBuffer = 64
)

type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
	// guarded by Hub.mu
	topics map[string]struct{}
}

func newClient(conn *websocket.Conn, userID string) *Client {
	return &Client{conn: conn, userID: userID, send: make(chan []byte, sendBuffer), topics: map[string]struct{}{}}
}

// inbound is a control frame sent by clients.
type inbound struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`
}

type outbound struct {
	Type    string `json:"type"`
	ChatID  string `json:"chatId,omitempty"`
	Message string `json:"message,omitempty"`
}

func (c *Client) reply(v outbound) {
	b, _ := json.Marshal(v)
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) readPump(handle func(inbound)) {
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.reply(outbound{Type: "error", Message: "invalid frame"})
			continue
		}
		handle(in)
	}
}

func (c *Client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
