package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"originchats/pkg/auth"
	"originchats/pkg/logger"
	"originchats/pkg/plugin"
	"originchats/pkg/protocol"
	"originchats/pkg/telemetry"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384
)

// Client is one websocket connection. All dispatching for the connection
// happens on its read pump; writes go through the buffered send channel
// drained by the write pump.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	session    *protocol.Session
	dispatcher *protocol.Dispatcher
	authsvc    *auth.Service
	plugins    *plugin.Registry
	remoteAddr string
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, d *protocol.Dispatcher, a *auth.Service, plugins *plugin.Registry, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		session:    &protocol.Session{ID: uuid.NewString()},
		dispatcher: d,
		authsvc:    a,
		plugins:    plugins,
		remoteAddr: remoteAddr,
	}
}

// ReadPump pumps frames from the connection through the auth exchange and
// then the dispatcher. Runs until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		wasAuthed := c.session.Authenticated
		username := c.session.Username
		c.hub.Unregister(c)
		c.conn.Close()
		telemetry.ConnClosed()
		if wasAuthed {
			c.announceDisconnect(username)
		}
	}()

	telemetry.ConnOpened()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("ws_read_error", "conn", c.session.ID, "error", err)
			}
			return
		}

		if !c.session.Authenticated && c.isAuthPacket(raw) {
			c.handleAuth(raw)
			continue
		}

		res := c.dispatcher.Dispatch(c.session, raw)
		if res == nil {
			continue
		}
		packet, err := json.Marshal(res)
		if err != nil {
			logger.Error("result_encode_failed", "conn", c.session.ID, "error", err)
			continue
		}
		if res.IsGlobal() {
			c.hub.Broadcast(packet)
		} else {
			c.sendPacket(packet)
		}
	}
}

// WritePump drains the send channel onto the connection and keeps the
// ping/pong heartbeat alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case packet, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, packet); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) isAuthPacket(raw []byte) bool {
	var probe struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Cmd == "auth"
}

// handleAuth runs the one-time authentication exchange: validate the
// credential, then emit auth_success, the ready packet, the user_connect
// broadcast and the plugin event.
func (c *Client) handleAuth(raw []byte) {
	var cmd struct {
		Validator string `json:"validator"`
	}
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.sendJSON(map[string]any{"cmd": "auth_error", "val": "Invalid authentication"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := c.authsvc.Authenticate(ctx, c.remoteAddr, cmd.Validator)
	if err != nil {
		c.sendJSON(map[string]any{"cmd": "auth_error", "val": err.Error()})
		return
	}

	c.session.Authenticated = true
	c.session.Username = res.Username

	c.sendJSON(map[string]any{"cmd": "auth_success", "val": "Authentication successful"})
	c.sendJSON(map[string]any{"cmd": "ready", "user": map[string]any{
		"username": res.Username,
		"roles":    res.User.Roles,
		"color":    res.Info.Color,
	}})

	packet, err := json.Marshal(map[string]any{"cmd": "user_connect", "user": res.Info})
	if err == nil {
		c.hub.Broadcast(packet)
	}

	c.plugins.Emit(plugin.EventUserConnect, plugin.Session{User: res.Username, Roles: res.User.Roles}, map[string]any{
		"username": res.Username,
		"roles":    res.User.Roles,
		"color":    res.Info.Color,
	})
	telemetry.PluginEvent(plugin.EventUserConnect)
}

// announceDisconnect broadcasts user_disconnect once the user's last
// connection is gone.
func (c *Client) announceDisconnect(username string) {
	for _, name := range c.hub.Online() {
		if name == username {
			return
		}
	}
	packet, err := json.Marshal(map[string]any{"cmd": "user_disconnect", "username": username})
	if err == nil {
		c.hub.Broadcast(packet)
	}
}

func (c *Client) sendJSON(v any) {
	packet, err := json.Marshal(v)
	if err != nil {
		logger.Error("packet_encode_failed", "conn", c.session.ID, "error", err)
		return
	}
	c.sendPacket(packet)
}

func (c *Client) sendPacket(packet []byte) {
	select {
	case c.send <- packet:
	default:
		logger.Warn("send_buffer_full", "conn", c.session.ID)
	}
}
