package api

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/attribute-processor/internal/device"
	"github.com/nerrad567/attribute-processor/internal/infrastructure/logging"
	"github.com/nerrad567/attribute-processor/internal/processor"
)

// ChannelAll subscribes a client to every device event.
const ChannelAll = "*"

// clientQueueSize is the number of events buffered per live client.
const clientQueueSize = 256

// liveChannels are the device events a client can subscribe to.
var liveChannels = []string{
	device.EventCycle,
	device.EventValue,
	device.EventState,
	device.EventReload,
	device.EventInput,
}

// Hub relays the events of one device to live clients. It implements
// device.Broadcaster.
//
// Every event carries a sequence number shared by all channels, so a
// client that fell behind sees the gap.
type Hub struct {
	device string
	logger *logging.Logger
	seq    atomic.Uint64

	mu      sync.RWMutex
	clients map[*liveClient]struct{}
}

var _ device.Broadcaster = (*Hub)(nil)

// NewHub creates the hub for deviceName.
func NewHub(deviceName string, logger *logging.Logger) *Hub {
	return &Hub{
		device:  deviceName,
		logger:  logger,
		clients: make(map[*liveClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*liveClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Broadcast sends a device event to the clients subscribed to it. Value
// events are also matched against each client's attribute filter.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := json.Marshal(LiveMessage{
		Type:      msgEvent,
		Device:    h.device,
		Channel:   event,
		Seq:       h.seq.Add(1),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding live event failed", "channel", event, "error", err)
		return
	}

	var attribute string
	if v, ok := payload.(processor.EvaluatedValue); ok {
		attribute = v.Name
	}

	h.mu.RLock()
	clients := make([]*liveClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.wants(event, attribute) {
			c.enqueue(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *liveClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("live client connected", "clients", n)
}

// remove detaches c and closes its queue. Removing twice is a no-op.
func (h *Hub) remove(c *liveClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Debug("live client disconnected", "clients", n, "dropped", c.dropped.Load())
	}
}

// ─── Clients ────────────────────────────────────────────────────────

// liveClient is one WebSocket connection and its subscription.
type liveClient struct {
	hub     *Hub
	conn    *websocket.Conn
	dropped atomic.Int64

	// queueMu guards queue against sends after close.
	queueMu sync.Mutex
	queue   chan []byte
	closed  bool

	subMu      sync.RWMutex
	channels   map[string]bool
	attributes map[string]bool
}

func newLiveClient(hub *Hub, conn *websocket.Conn) *liveClient {
	return &liveClient{
		hub:        hub,
		conn:       conn,
		queue:      make(chan []byte, clientQueueSize),
		channels:   make(map[string]bool),
		attributes: make(map[string]bool),
	}
}

// enqueue queues data without blocking. A full queue drops the event.
func (c *liveClient) enqueue(data []byte) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.queue <- data:
	default:
		if c.dropped.Add(1) == 1 {
			c.hub.logger.Warn("live client is falling behind, dropping events")
		}
	}
}

func (c *liveClient) close() {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
}

// wants reports whether an event on channel, about attribute for value
// events, matches the subscription.
func (c *liveClient) wants(channel, attribute string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if !c.channels[channel] && !c.channels[ChannelAll] {
		return false
	}
	if channel != device.EventValue || len(c.attributes) == 0 {
		return true
	}
	return c.attributes[attribute]
}

// subscribe adds sub to the subscription. Unknown channels reject the
// whole request.
func (c *liveClient) subscribe(sub Subscription) error {
	if err := checkChannels(sub.Channels); err != nil {
		return err
	}
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range sub.Channels {
		c.channels[ch] = true
	}
	for _, a := range sub.Attributes {
		c.attributes[a] = true
	}
	return nil
}

// unsubscribe removes sub from the subscription.
func (c *liveClient) unsubscribe(sub Subscription) error {
	if err := checkChannels(sub.Channels); err != nil {
		return err
	}
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range sub.Channels {
		delete(c.channels, ch)
	}
	for _, a := range sub.Attributes {
		delete(c.attributes, a)
	}
	return nil
}

// subscription returns the current subscription, sorted.
func (c *liveClient) subscription() Subscription {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	sub := Subscription{Channels: make([]string, 0, len(c.channels))}
	for ch := range c.channels {
		sub.Channels = append(sub.Channels, ch)
	}
	for a := range c.attributes {
		sub.Attributes = append(sub.Attributes, a)
	}
	slices.Sort(sub.Channels)
	slices.Sort(sub.Attributes)
	return sub
}

func checkChannels(channels []string) error {
	for _, ch := range channels {
		if ch != ChannelAll && !slices.Contains(liveChannels, ch) {
			return fmt.Errorf("unknown channel %q", ch)
		}
	}
	return nil
}
