package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/attribute-processor/internal/infrastructure/config"
)

// Frame types of the live event protocol.
const (
	msgHello       = "hello"
	msgEvent       = "event"
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPing        = "ping"
	msgPong        = "pong"
	msgAck         = "ack"
	msgError       = "error"
)

// LiveMessage is one frame of the live event protocol.
//
// Server frames: hello on connect, event for every device event, ack or
// error in reply to a client frame, pong in reply to ping. Client frames
// carry an ID that the reply echoes.
type LiveMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Device    string `json:"device,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Seq       uint64 `json:"seq,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Subscription selects the events a client receives. Attributes narrows
// value events to the named attributes; empty means every attribute.
type Subscription struct {
	Channels   []string `json:"channels"`
	Attributes []string `json:"attributes,omitempty"`
}

// Hello is the payload of the first frame a client receives.
type Hello struct {
	Device       string       `json:"device"`
	Channels     []string     `json:"channels"`
	Subscription Subscription `json:"subscription"`
}

// clientFrame is a frame read from a client, payload undecoded.
type clientFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// liveTiming holds the keepalive intervals of a connection.
type liveTiming struct {
	pingEvery time.Duration
	readWait  time.Duration
	writeWait time.Duration
}

func liveTimingFrom(cfg config.WebSocketConfig) liveTiming {
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return liveTiming{pingEvery: ping, readWait: ping + pong, writeWait: pong}
}

// handleWebSocket upgrades to the live event protocol. The initial
// subscription comes from the comma-separated channels and attributes
// query parameters; unknown channels are rejected before the upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sub := Subscription{
		Channels:   splitList(r.URL.Query().Get("channels")),
		Attributes: splitList(r.URL.Query().Get("attributes")),
	}
	if err := checkChannels(sub.Channels); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newLiveClient(s.hub, conn)
	c.subscribe(sub) //nolint:errcheck // Channels checked above
	c.reply(LiveMessage{Type: msgHello, Device: s.hub.device, Payload: Hello{
		Device:       s.hub.device,
		Channels:     liveChannels,
		Subscription: c.subscription(),
	}})
	s.hub.add(c)

	timing := liveTimingFrom(s.wsCfg)
	go c.writeLoop(timing)
	go c.readLoop(timing, int64(s.wsCfg.MaxMessageSize))
}

// readLoop handles client frames until the connection fails.
func (c *liveClient) readLoop(timing liveTiming, maxSize int64) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(timing.readWait))
	}
	c.conn.SetReadLimit(maxSize)
	extend() //nolint:errcheck // A failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any frame counts.
		extend() //nolint:errcheck // A failed deadline surfaces as a read error
		c.handleFrame(data)
	}
}

// writeLoop drains the queue and pings the client.
func (c *liveClient) writeLoop(timing liveTiming) {
	ticker := time.NewTicker(timing.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case msg, ok := <-c.queue:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // Closing anyway
				return
			}
			kind, data = websocket.TextMessage, msg
		case <-ticker.C:
			kind = websocket.PingMessage
		}
		c.conn.SetWriteDeadline(time.Now().Add(timing.writeWait)) //nolint:errcheck // Write fails instead
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

// handleFrame answers one client frame.
func (c *liveClient) handleFrame(data []byte) {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.replyError("", "invalid JSON frame")
		return
	}

	switch f.Type {
	case msgSubscribe, msgUnsubscribe:
		var sub Subscription
		if err := json.Unmarshal(f.Payload, &sub); err != nil || len(sub.Channels)+len(sub.Attributes) == 0 {
			c.replyError(f.ID, f.Type+" needs channels or attributes")
			return
		}
		apply := c.subscribe
		if f.Type == msgUnsubscribe {
			apply = c.unsubscribe
		}
		if err := apply(sub); err != nil {
			c.replyError(f.ID, err.Error())
			return
		}
		c.hub.logger.Debug("live subscription changed", "type", f.Type, "channels", sub.Channels, "attributes", sub.Attributes)
		c.reply(LiveMessage{Type: msgAck, ID: f.ID, Payload: c.subscription()})
	case msgPing:
		c.reply(LiveMessage{Type: msgPong, ID: f.ID})
	default:
		c.replyError(f.ID, "unknown frame type: "+f.Type)
	}
}

func (c *liveClient) reply(msg LiveMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *liveClient) replyError(id, message string) {
	c.reply(LiveMessage{Type: msgError, ID: id, Payload: map[string]string{"message": message}})
}

// splitList splits a comma-separated query value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
