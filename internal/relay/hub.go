// Package relay coordinates admission, chat fan-out and removal of
// connections through the Hub's single event loop.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

const defaultQueueSize = 256

type eventKind int

const (
	eventConnect eventKind = iota
	eventDisconnect
	eventChat
	eventStats
)

type hubEvent struct {
	kind     eventKind
	conn     Connection
	payload  json.RawMessage
	reply    chan Stats
	admitted chan struct{}
}

// Hub is the broadcast relay. All connects, disconnects and chat events go
// through one queue and are handled to completion, one at a time, by Run.
// Every member of a room therefore observes broadcasts in the order the hub
// received them, and the registry needs no locking.
type Hub struct {
	registry *Registry
	events   chan hubEvent
	now      func() time.Time
	log      *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock overrides the wall clock used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithQueueSize sets the capacity of the hub's inbound queue.
func WithQueueSize(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.events = make(chan hubEvent, size)
		}
	}
}

// NewHub creates a Hub with an empty registry. Call Run to start processing.
func NewHub(opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry: NewRegistry(),
		events:   make(chan hubEvent, defaultQueueSize),
		now:      time.Now,
		log:      slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnConnect admits conn into the default room and returns once the event
// loop has done so. Every broadcast handled after OnConnect returns reaches
// conn.
func (h *Hub) OnConnect(conn Connection) error {
	admitted := make(chan struct{})
	if err := h.enqueue(hubEvent{kind: eventConnect, conn: conn, admitted: admitted}); err != nil {
		return err
	}
	select {
	case <-admitted:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

// OnDisconnect removes conn from its room. Calling it more than once for the
// same connection has no further effect.
func (h *Hub) OnDisconnect(conn Connection) error {
	return h.enqueue(hubEvent{kind: eventDisconnect, conn: conn})
}

// HandleChatMessage submits a raw chatMessage payload received from conn.
// The sender gets no signal about the outcome: the payload is normalized and
// either broadcast to the sender's room or dropped when its message is empty.
func (h *Hub) HandleChatMessage(conn Connection, payload json.RawMessage) error {
	return h.enqueue(hubEvent{kind: eventChat, conn: conn, payload: payload})
}

// Stats returns the registry counters as seen by the event loop.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := h.enqueue(hubEvent{kind: eventStats, reply: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case stats := <-reply:
		return stats, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-h.ctx.Done():
		return Stats{}, ErrHubStopped
	}
}

func (h *Hub) enqueue(ev hubEvent) error {
	if h.ctx.Err() != nil {
		return ErrHubStopped
	}
	select {
	case h.events <- ev:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

// Run processes hub events until Shutdown is called. It should be started in
// its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return
		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev hubEvent) {
	switch ev.kind {
	case eventConnect:
		h.registry.Admit(ev.conn)
		close(ev.admitted)
		h.log.Info("connection admitted",
			"connectionId", ev.conn.ID(),
			"room", DefaultRoom,
			"members", len(h.registry.Members(DefaultRoom)))
	case eventDisconnect:
		if h.registry.Remove(ev.conn) {
			h.log.Info("connection removed",
				"connectionId", ev.conn.ID(),
				"connections", h.registry.Stats().Connections)
		}
	case eventChat:
		h.handleChat(ev.conn, ev.payload)
	case eventStats:
		ev.reply <- h.registry.Stats()
	}
}

func (h *Hub) handleChat(sender Connection, payload json.RawMessage) {
	room, ok := h.registry.RoomOf(sender.ID())
	if !ok {
		h.log.Debug("chat message from unregistered connection dropped", "connectionId", sender.ID())
		return
	}

	event := Normalize(payload, h.now())
	if event.Message == "" {
		return
	}

	data, err := EncodeChatEvent(event)
	if err != nil {
		h.log.Error("failed to encode chat event", "connectionId", sender.ID(), "error", err)
		return
	}

	members := h.registry.Members(room)
	h.log.Debug("broadcasting chat message", "room", room, "members", len(members))

	failed := h.broadcastToMembers(members, data)
	h.removeFailed(failed)
}

// broadcastToMembers delivers data to every member, sender included, and
// returns the members whose Send failed.
func (h *Hub) broadcastToMembers(members []Connection, data []byte) []Connection {
	var failed []Connection
	for _, member := range members {
		if err := member.Send(data); err != nil {
			h.log.Warn("send failed", "connectionId", member.ID(), "error", err)
			failed = append(failed, member)
		}
	}
	return failed
}

func (h *Hub) removeFailed(failed []Connection) {
	for _, conn := range failed {
		if !h.registry.Remove(conn) {
			continue
		}
		if err := conn.Close(); err != nil {
			h.log.Debug("close after failed send", "connectionId", conn.ID(), "error", err)
		}
		h.log.Info("connection removed after failed send", "connectionId", conn.ID())
	}
}

func (h *Hub) closeAll() {
	var members []Connection
	for _, room := range h.registry.rooms {
		members = append(members, h.registry.Members(room.Name())...)
	}
	for _, conn := range members {
		h.registry.Remove(conn)
		if err := conn.Close(); err != nil {
			h.log.Debug("close on shutdown", "connectionId", conn.ID(), "error", err)
		}
	}
	h.log.Info("closed client connections", "count", len(members))
}

// Shutdown stops the event loop, closes every registered connection and
// waits for Run to return or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Info("initiating hub shutdown")
	h.cancel()

	select {
	case <-h.done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-ctx.Done():
		h.log.Warn("hub shutdown timeout reached")
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
