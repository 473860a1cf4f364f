package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atlas-desktop/crossover-trader/internal/events"
)

// MessageType defines WebSocket message types.
type MessageType string

const (
	// Server -> Client messages
	MsgTypeTrade        MessageType = "trade"
	MsgTypeStop         MessageType = "stop_triggered"
	MsgTypePrice        MessageType = "price"
	MsgTypeSignal       MessageType = "signal"
	MsgTypeBacktest     MessageType = "backtest_complete"
	MsgTypeReset        MessageType = "portfolio_reset"
	MsgTypeSubscribed   MessageType = "subscribed"
	MsgTypeUnsubscribed MessageType = "unsubscribed"
	MsgTypeError        MessageType = "error"
	MsgTypeHeartbeat    MessageType = "heartbeat"

	// Client -> Server messages
	MsgTypeSubscribe   MessageType = "subscribe"
	MsgTypeUnsubscribe MessageType = "unsubscribe"
)

// Channels clients may subscribe to
const (
	ChannelTrades  = "trades"
	ChannelPrices  = "prices"
	ChannelSignals = "signals"
)

var knownChannels = map[string]bool{
	ChannelTrades:  true,
	ChannelPrices:  true,
	ChannelSignals: true,
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 65536
	sendBuffer     = 256
)

// WSMessage is a WebSocket message.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client is a WebSocket client connection.
type Client struct {
	id            string
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]bool
}

// Hub manages WebSocket connections and their channel subscriptions.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*Client]bool
	channels map[string]map[*Client]bool
}

// NewHub creates a new WebSocket hub. checkOrigin may be nil to accept any
// origin.
func NewHub(logger *zap.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		logger: logger.Named("ws-hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients:  make(map[*Client]bool),
		channels: make(map[string]map[*Client]bool),
	}
}

// Run sends heartbeats until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.logger.Debug("Client registered", zap.String("id", c.id))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		for channel := range c.subscriptions {
			if clients, ok := h.channels[channel]; ok {
				delete(clients, c)
				if len(clients) == 0 {
					delete(h.channels, channel)
				}
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("Client unregistered", zap.String("id", c.id))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.channels = make(map[string]map[*Client]bool)
}

// sendHeartbeat sends heartbeat to all clients.
func (h *Hub) sendHeartbeat() {
	data, _ := json.Marshal(WSMessage{Type: MsgTypeHeartbeat, Timestamp: time.Now().UnixMilli()})

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Subscribe subscribes a client to a channel.
func (h *Hub) Subscribe(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][c] = true
	c.subscriptions[channel] = true

	h.logger.Debug("Client subscribed to channel",
		zap.String("client", c.id),
		zap.String("channel", channel))
}

// Unsubscribe unsubscribes a client from a channel.
func (h *Hub) Unsubscribe(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.channels[channel]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
	delete(c.subscriptions, channel)
}

func encode(msgType MessageType, channel string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(WSMessage{
		Type:      msgType,
		Channel:   channel,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	})
}

// PublishToChannel publishes a message to a channel's subscribers. Slow
// clients whose buffer is full miss the message.
func (h *Hub) PublishToChannel(channel string, msgType MessageType, data interface{}) {
	msg, err := encode(msgType, channel, data)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[channel] {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Broadcast sends a message to all clients.
func (h *Hub) Broadcast(msgType MessageType, data interface{}) {
	msg, err := encode(msgType, "", data)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Attach forwards bus events to the matching channels.
func (h *Hub) Attach(bus *events.EventBus) *events.Subscription {
	return bus.SubscribeAll(func(event events.Event) error {
		switch e := event.(type) {
		case *events.TradeEvent:
			msgType := MsgTypeTrade
			if e.GetType() == events.EventTypeStopTriggered {
				msgType = MsgTypeStop
			}
			h.PublishToChannel(ChannelTrades, msgType, e.Trade)
		case *events.TickEvent:
			h.PublishToChannel(ChannelPrices, MsgTypePrice, e.Quote)
		case *events.SignalEvent:
			h.PublishToChannel(ChannelSignals, MsgTypeSignal, e.Signal)
		case *events.BacktestEvent:
			h.Broadcast(MsgTypeBacktest, e)
		case *events.ResetEvent:
			h.Broadcast(MsgTypeReset, e)
		}
		return nil
	})
}

// ServeWS upgrades the request and starts the client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		id:            uuid.New().String(),
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		subscriptions: make(map[string]bool),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

func (c *Client) reply(msgType MessageType, channel, errMsg string) {
	msg, _ := json.Marshal(WSMessage{
		Type:      msgType,
		Channel:   channel,
		Error:     errMsg,
		Timestamp: time.Now().UnixMilli(),
	})

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.hub.clients[c] {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// readPump pumps messages from the WebSocket to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.reply(MsgTypeError, "", "invalid message")
			continue
		}

		switch msg.Type {
		case MsgTypeSubscribe, MsgTypeUnsubscribe:
			if !knownChannels[msg.Channel] {
				c.reply(MsgTypeError, msg.Channel, "unknown channel")
				continue
			}
			if msg.Type == MsgTypeSubscribe {
				c.hub.Subscribe(c, msg.Channel)
				c.reply(MsgTypeSubscribed, msg.Channel, "")
			} else {
				c.hub.Unsubscribe(c, msg.Channel)
				c.reply(MsgTypeUnsubscribed, msg.Channel, "")
			}
		default:
			c.reply(MsgTypeError, "", "unknown message type")
		}
	}
}

// writePump pumps messages from the hub to the WebSocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
