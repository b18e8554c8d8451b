package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredispatch/internal/core"
	"github.com/vovakirdan/wiredispatch/internal/metrics"
	"github.com/vovakirdan/wiredispatch/internal/proto"
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errConnClosed     = errors.New("connection closed")
)

// WSOptions tunes per-connection limits.
type WSOptions struct {
	MaxMessageBytes    int64
	SendBuffer         int
	RateLimitPerMinute int
	OriginPatterns     []string
}

// WSHandler upgrades HTTP connections and bridges them to the hub.
type WSHandler struct {
	hub     Dispatcher
	opts    WSOptions
	metrics *metrics.Metrics
	log     *zerolog.Logger

	// Hijacked sockets are invisible to http.Server.Shutdown, so the
	// handler tracks them itself.
	mu       sync.Mutex
	closing  bool
	active   sync.WaitGroup
	shutdown context.Context
	stop     context.CancelFunc
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub Dispatcher, opts WSOptions, m *metrics.Metrics, logger *zerolog.Logger) *WSHandler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if m == nil {
		m = metrics.New(nil)
	}
	shutdown, stop := context.WithCancel(context.Background())
	return &WSHandler{
		hub:      hub,
		opts:     opts,
		metrics:  m,
		log:      logger,
		shutdown: shutdown,
		stop:     stop,
	}
}

// Close refuses new upgrades, closes every live socket with StatusGoingAway
// and waits until each one has been removed from the hub.
func (h *WSHandler) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
	h.stop()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WSHandler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.active.Add(1)
	return true
}

// wsConn is the hub's send handle for one socket. Pushes never block: a
// full buffer drops the frame and reports an error.
type wsConn struct {
	outbound chan []byte
	done     chan struct{}
}

func newWSConn(buffer int) *wsConn {
	return &wsConn{
		outbound: make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (c *wsConn) Send(_ context.Context, data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.outbound <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *wsConn) close() {
	close(c.done)
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if !h.track() {
		stdhttp.Error(w, "server shutting down", stdhttp.StatusServiceUnavailable)
		return
	}
	defer h.active.Done()

	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.opts.OriginPatterns,
		InsecureSkipVerify: len(h.opts.OriginPatterns) == 0,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	id := core.ClientID(uuid.NewString())
	handle := newWSConn(h.opts.SendBuffer)
	if _, err := h.hub.AddClient(id, handle); err != nil {
		h.log.Error().Err(err).Str("client_id", string(id)).Msg("register client")
		conn.Close(websocket.StatusInternalError, "registration failed")
		return
	}
	defer h.hub.RemoveClient(id)
	defer handle.close()

	h.log.Debug().Str("client_id", string(id)).Str("remote", r.RemoteAddr).Msg("client connected")

	// Close performs the handshake while the read loop is still running, so
	// the peer sees StatusGoingAway rather than a dropped socket.
	defer context.AfterFunc(h.shutdown, func() {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	})()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, id)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, id, handle)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	if h.shutdown.Err() != nil {
		// Already closed by the shutdown hook.
		return
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", string(id)).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, id core.ClientID) error {
	limiter := newRateLimiter(h.opts.RateLimitPerMinute, time.Minute)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			h.metrics.RateLimitedFrames.Inc()
			h.log.Warn().Str("client_id", string(id)).Msg("inbound frame rate limited")
			continue
		}

		if err := h.hub.HandleFrame(id, data); err != nil {
			var decodeErr *proto.DecodeError
			if errors.As(err, &decodeErr) {
				h.log.Warn().Err(err).Str("client_id", string(id)).Msg("rejected inbound frame")
				continue
			}
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, id core.ClientID, handle *wsConn) error {
	for {
		select {
		case data := <-handle.outbound:
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.log.Error().Err(err).Str("client_id", string(id)).Msg("write ws frame")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
