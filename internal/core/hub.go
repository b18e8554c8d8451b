package core

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredispatch/internal/metrics"
	"github.com/vovakirdan/wiredispatch/internal/proto"
)

// Hub owns the client and channel registries and the outbound queue. It
// decodes inbound frames, routes them to channels and exposes the channel
// API used by server-side code.
//
// Handlers never run concurrently with each other, whether they were
// reached from the drain loop or from a connection's inbound frame.
type Hub struct {
	mu       sync.RWMutex
	clients  map[ClientID]*Client
	channels map[string]*Channel

	// dispatchMu serializes handler invocations. It is taken only while mu is
	// not held; handlers may take mu under it.
	dispatchMu sync.Mutex

	sender  *Sender
	log     *zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger used for delivery and routing diagnostics.
func WithLogger(logger *zerolog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithMetrics sets the collectors the hub updates.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// NewHub creates an empty hub. Call Run to start draining the queue.
func NewHub(opts ...Option) *Hub {
	nop := zerolog.Nop()
	h := &Hub{
		clients:  make(map[ClientID]*Client),
		channels: make(map[string]*Channel),
		log:      &nop,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.New(nil)
	}
	h.sender = NewSender(h.deliver, h.metrics)
	return h
}

// Run drains the outbound queue until ctx is cancelled, then clears both
// registries.
func (h *Hub) Run(ctx context.Context) {
	h.sender.Run(ctx)

	h.mu.Lock()
	clear(h.clients)
	clear(h.channels)
	h.updateGaugesLocked()
	h.mu.Unlock()

	h.log.Debug().Msg("hub stopped")
}

// Flush waits until every packet queued so far has been delivered.
func (h *Hub) Flush(ctx context.Context) error {
	return h.sender.Flush(ctx)
}

// ==== Clients ====

// AddClient registers a new connection and fires the connection event.
// Registering an id twice is a transport bug and is reported as
// ErrClientExists.
func (h *Hub) AddClient(id ClientID, conn Conn) (*Client, error) {
	h.mu.Lock()
	if _, exists := h.clients[id]; exists {
		h.mu.Unlock()
		return nil, coreError(ErrCodeDuplicateClient, fmt.Sprintf("client %q already registered", id), ErrClientExists)
	}
	client := NewClient(id, conn)
	h.clients[id] = client
	h.updateGaugesLocked()
	h.mu.Unlock()

	h.log.Debug().Str("client_id", string(id)).Msg("client added")
	h.handleReserved(proto.EventConnection, id)
	return client, nil
}

// RemoveClient unregisters a client and drops it from every channel it
// subscribed to, then fires the disconnect event. Unknown ids are ignored.
func (h *Hub) RemoveClient(id ClientID) {
	h.mu.Lock()
	client, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	for _, name := range client.Subscriptions() {
		if ch, exists := h.channels[name]; exists {
			ch.RemoveSubscriber(id)
		}
	}
	delete(h.clients, id)
	h.updateGaugesLocked()
	h.mu.Unlock()

	h.log.Debug().Str("client_id", string(id)).Msg("client removed")
	h.handleReserved(proto.EventDisconnect, id)
}

// Client returns a snapshot of a registered client.
func (h *Hub) Client(id ClientID) (ClientInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[id]
	if !ok {
		return ClientInfo{}, false
	}
	return client.info(), true
}

// Clients returns snapshots of all registered clients ordered by id.
func (h *Hub) Clients() []ClientInfo {
	h.mu.RLock()
	out := make([]ClientInfo, 0, len(h.clients))
	for _, client := range h.clients {
		out = append(out, client.info())
	}
	h.mu.RUnlock()

	slices.SortFunc(out, func(a, b ClientInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// ==== Channels ====

// ChannelBuilder targets the channel returned by CreateChannel so handlers
// can be chained onto it.
type ChannelBuilder struct {
	hub     *Hub
	channel *Channel
}

// Name returns the channel name.
func (b *ChannelBuilder) Name() string {
	return b.channel.Name
}

// OnMessage registers h on the channel this builder was created for.
func (b *ChannelBuilder) OnMessage(handler MessageHandler) *ChannelBuilder {
	b.hub.mu.Lock()
	b.channel.callbacks = append(b.channel.callbacks, handler)
	b.hub.mu.Unlock()
	return b
}

// OnMessageFunc is OnMessage for a plain function.
func (b *ChannelBuilder) OnMessageFunc(fn func(Packet)) *ChannelBuilder {
	return b.OnMessage(MessageHandlerFunc(fn))
}

// CreateChannel registers a new empty channel. It fails with
// ErrChannelExists if the name is taken and leaves the existing channel
// untouched.
func (h *Hub) CreateChannel(name string) (*ChannelBuilder, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.channels[name]; exists {
		return nil, coreError(ErrCodeDuplicateChannel, fmt.Sprintf("channel %q already exists", name), ErrChannelExists)
	}
	ch := NewChannel(name)
	h.channels[name] = ch
	h.updateGaugesLocked()
	return &ChannelBuilder{hub: h, channel: ch}, nil
}

// On registers handler on name, creating the channel if needed.
func (h *Hub) On(name string, handler MessageHandler) {
	h.mu.Lock()
	ch := h.getOrCreateLocked(name)
	ch.callbacks = append(ch.callbacks, handler)
	h.mu.Unlock()
}

// OnConnect registers a handler fired after a client is added.
func (h *Hub) OnConnect(handler LifecycleHandler) {
	h.onLifecycle(proto.EventConnection, handler)
}

// OnDisconnect registers a handler fired after a client is removed.
func (h *Hub) OnDisconnect(handler LifecycleHandler) {
	h.onLifecycle(proto.EventDisconnect, handler)
}

func (h *Hub) onLifecycle(name string, handler LifecycleHandler) {
	h.mu.Lock()
	ch := h.getOrCreateLocked(name)
	ch.lifecycle = append(ch.lifecycle, handler)
	h.mu.Unlock()
}

// AddListener subscribes a client to name, creating the channel if needed.
// Subscribing twice is a no-op.
func (h *Hub) AddListener(name string, id ClientID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[id]
	if !ok {
		return coreError(ErrCodeClientNotFound, fmt.Sprintf("client %q not found", id), ErrClientNotFound)
	}
	ch := h.getOrCreateLocked(name)
	if ch.AddSubscriber(id, client.conn) {
		client.addSubscription(name)
	}
	return nil
}

// RemoveListener unsubscribes a client from name. Returns true if the client
// was subscribed.
func (h *Hub) RemoveListener(name string, id ClientID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := false
	if ch, ok := h.channels[name]; ok {
		removed = ch.RemoveSubscriber(id)
	}
	if client, ok := h.clients[id]; ok {
		client.removeSubscription(name)
	}
	return removed
}

// CloseChannel removes a channel entirely. Clients keep the name in their
// subscription lists; later packets for it are dropped.
func (h *Hub) CloseChannel(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.channels[name]; !ok {
		return false
	}
	delete(h.channels, name)
	h.updateGaugesLocked()
	return true
}

// Channel returns a snapshot of a registered channel.
func (h *Hub) Channel(name string) (ChannelInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ch, ok := h.channels[name]
	if !ok {
		return ChannelInfo{}, false
	}
	return ch.info(), true
}

// Channels lists channel names in sorted order, lifecycle channels excluded.
func (h *Hub) Channels() []string {
	h.mu.RLock()
	names := make([]string, 0, len(h.channels))
	for name := range h.channels {
		if proto.IsReserved(name) {
			continue
		}
		names = append(names, name)
	}
	h.mu.RUnlock()

	slices.Sort(names)
	return names
}

func (h *Hub) getOrCreateLocked(name string) *Channel {
	ch, ok := h.channels[name]
	if !ok {
		ch = NewChannel(name)
		h.channels[name] = ch
		h.updateGaugesLocked()
	}
	return ch
}

// ==== Sending ====

// Send queues message for every subscriber and handler of name.
func (h *Hub) Send(name string, message any) {
	h.To(name, Raw{Value: message})
}

// To queues payload on name. A nil payload is sent as a null message.
func (h *Hub) To(name string, payload Payload) {
	if payload == nil {
		payload = Raw{}
	}
	if !h.sender.Enqueue(payload.packet(name)) {
		h.log.Warn().Str("channel", name).Msg("hub stopped, packet discarded")
	}
}

// ==== Routing ====

// HandleFrame decodes an inbound frame from a client and routes each key in
// order. Lifecycle keys trigger lifecycle handling with the value as event
// name, known channels run their handlers synchronously, unknown names are
// ignored. Inbound frames reach handlers only; subscribers are not pushed.
func (h *Hub) HandleFrame(id ClientID, data []byte) error {
	h.metrics.FramesTotal.Inc()

	frame, err := proto.DecodeFrame(data)
	if err == nil {
		err = validateLifecycleFields(frame)
	}
	if err != nil {
		h.metrics.DecodeErrors.Inc()
		return coreError(ErrCodeDecode, err.Error(), err)
	}

	for _, field := range frame.Fields {
		if proto.IsReserved(field.Key) {
			h.handleReserved(field.Value.(string), id)
			continue
		}

		h.mu.RLock()
		ch, ok := h.channels[field.Key]
		var callbacks []MessageHandler
		if ok {
			callbacks = ch.callbackList()
		}
		h.mu.RUnlock()

		if !ok {
			h.log.Debug().Str("client_id", string(id)).Str("channel", field.Key).Msg("frame for unknown channel ignored")
			continue
		}
		h.invoke(callbacks, Packet{Channel: field.Key, Message: field.Value, From: id}, "inbound")
	}
	return nil
}

func validateLifecycleFields(frame proto.Frame) error {
	for _, field := range frame.Fields {
		if !proto.IsReserved(field.Key) {
			continue
		}
		if _, ok := field.Value.(string); !ok {
			return &proto.DecodeError{Reason: fmt.Sprintf("%q expects a string event name", field.Key)}
		}
	}
	return nil
}

// handleReserved fires lifecycle handlers for connection/disconnect and
// treats any other event name as a subscription request.
func (h *Hub) handleReserved(event string, id ClientID) {
	switch event {
	case proto.EventConnection, proto.EventDisconnect:
		h.mu.RLock()
		var handlers []LifecycleHandler
		if ch, ok := h.channels[event]; ok {
			handlers = ch.lifecycleList()
		}
		h.mu.RUnlock()

		for _, handler := range handlers {
			h.safeCall(event, handler.OnLifecycleEvent)
			h.metrics.CallbacksInvoked.WithLabelValues("lifecycle").Inc()
		}
	default:
		if err := h.AddListener(event, id); err != nil {
			h.log.Debug().Err(err).Str("client_id", string(id)).Str("channel", event).Msg("subscribe failed")
		}
	}
}

// deliver pushes a queued packet to the channel's current subscribers and
// runs its handlers in registration order.
func (h *Hub) deliver(ctx context.Context, p Packet) {
	h.mu.RLock()
	ch, ok := h.channels[p.Channel]
	var (
		targets   []subscriber
		callbacks []MessageHandler
	)
	if ok {
		targets = ch.subscriberList()
		callbacks = ch.callbackList()
	}
	h.mu.RUnlock()

	if !ok {
		h.log.Debug().Str("channel", p.Channel).Msg("packet for unknown channel dropped")
		return
	}

	if len(targets) > 0 {
		data, err := proto.EncodeMessage(p.Message)
		if err != nil {
			h.log.Warn().Err(err).Str("channel", p.Channel).Msg("encode message")
		} else {
			for _, target := range targets {
				if err := target.conn.Send(ctx, data); err != nil {
					h.metrics.PushFailures.Inc()
					h.log.Warn().Err(err).
						Str("channel", p.Channel).
						Str("client_id", string(target.id)).
						Msg("push to subscriber failed")
				}
			}
		}
	}

	h.invoke(callbacks, p, "queue")
}

func (h *Hub) invoke(handlers []MessageHandler, p Packet, path string) {
	for _, handler := range handlers {
		h.safeCall(p.Channel, func() { handler.OnMessage(p) })
		h.metrics.CallbacksInvoked.WithLabelValues(path).Inc()
	}
}

// safeCall runs one handler under dispatchMu and keeps a panic from taking
// down the drain loop or the connection goroutine that routed the frame.
func (h *Hub) safeCall(channel string, fn func()) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("channel", channel).Msg("channel handler panicked")
		}
	}()
	fn()
}

func (h *Hub) updateGaugesLocked() {
	h.metrics.ConnectedClients.Set(float64(len(h.clients)))
	h.metrics.Channels.Set(float64(len(h.channels)))
}
