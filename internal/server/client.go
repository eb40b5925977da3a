// Package server adapts individual WebSocket connections to the relay,
// handling read/write pumps and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/medrelay/internal/relay"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one WebSocket peer. It implements relay.Connection: the hub
// queues frames through Send and the write pump delivers them in order.
type Client struct {
	id     string
	conn   *websocket.Conn
	hub    *relay.Hub
	addr   string
	log    *slog.Logger
	config *Config

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

var _ relay.Connection = (*Client)(nil)

// NewClient creates a Client with a fresh identifier and a buffered send
// queue. The client can be admitted into the hub before its socket exists;
// frames sent in the meantime wait in the queue until Attach and Start.
func NewClient(hub *relay.Hub, addr string, cfg *Config, log *slog.Logger) *Client {
	id := uuid.NewString()

	return &Client{
		id:     id,
		hub:    hub,
		addr:   addr,
		log:    log.With("connectionId", id, "addr", addr),
		config: cfg,
		send:   make(chan []byte, cfg.SendBufferSize),
	}
}

// ID returns the connection identifier assigned at connect time.
func (c *Client) ID() string { return c.id }

// Send queues a frame for the write pump without blocking.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and tears down the
// socket. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

// Attach binds the upgraded socket to the client.
func (c *Client) Attach(conn *websocket.Conn) {
	conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn = conn
}

// Start launches the pumps. The caller must have admitted the client into
// the hub and attached its socket first.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	pongWait := c.config.PongWait
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// logReadError logs why the read loop is ending.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("message exceeded maximum size", "limit", c.config.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Info("client disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("client connection closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Warn("unexpected websocket close", "error", err)
	default:
		c.log.Info("websocket read ended", "error", err)
	}
}

// processMessage decodes one frame and forwards chatMessage payloads to the
// hub. Anything else is ignored.
func (c *Client) processMessage(raw []byte) {
	var envelope relay.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.log.Debug("ignoring malformed frame", "error", err)
		return
	}

	if envelope.Event != relay.EventChatMessage {
		c.log.Debug("ignoring unknown event", "event", envelope.Event)
		return
	}

	if err := c.hub.HandleChatMessage(c, envelope.Data); err != nil {
		c.log.Debug("chat message not submitted", "error", err)
	}
}

func (c *Client) readPump() {
	defer func() {
		if err := c.hub.OnDisconnect(c); err != nil {
			c.log.Debug("disconnect not submitted", "error", err)
		}
		_ = c.Close()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("error closing connection in readPump", "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod())
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("error closing connection in writePump", "error", err)
	}
}

// handleMessage writes one outgoing frame and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
		c.log.Warn("error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil && !isExpectedCloseError(err) {
		c.log.Warn("error writing close message", "error", err)
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
		c.log.Warn("error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error writing ping message", "error", err)
		}
		return false
	}
	return true
}
