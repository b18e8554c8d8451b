package http

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vovakirdan/wiredispatch/internal/core"
)

func dial(ctx context.Context, t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func write(ctx context.Context, t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()

	if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("write %s: %v", frame, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t, testConfig())

	resp, err := env.server.Client().Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketSubscribeAndReceive(t *testing.T) {
	env := startTestServer(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, env)
	write(ctx, t, conn, `{"connection":"chan1"}`)

	waitFor(t, "subscription", func() bool {
		info, ok := env.hub.Channel("chan1")
		return ok && len(info.Subscribers) == 1
	})

	env.hub.Send("chan1", "hello")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected verbatim push, got %q", data)
	}
}

func TestWebSocketInboundFrameRunsCallbacks(t *testing.T) {
	env := startTestServer(t, testConfig())

	received := make(chan core.Packet, 1)
	builder, err := env.hub.CreateChannel("chan1")
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	builder.OnMessageFunc(func(p core.Packet) { received <- p })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, env)
	write(ctx, t, conn, `{"chan1":"This is a chan1 message."}`)

	select {
	case p := <-received:
		if p.Message != "This is a chan1 message." || p.From == "" {
			t.Fatalf("unexpected packet: %+v", p)
		}
		if _, ok := env.hub.Client(p.From); !ok {
			t.Fatalf("packet sender %q is not a registered client", p.From)
		}
	case <-ctx.Done():
		t.Fatal("callback not invoked")
	}
}

func TestWebSocketDecodeErrorKeepsConnection(t *testing.T) {
	env := startTestServer(t, testConfig())

	received := make(chan any, 1)
	env.hub.On("chan1", core.MessageHandlerFunc(func(p core.Packet) { received <- p.Message }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, env)
	write(ctx, t, conn, `not json at all`)
	write(ctx, t, conn, `{"chan1":"after"}`)

	select {
	case msg := <-received:
		if msg != "after" {
			t.Fatalf("unexpected message: %v", msg)
		}
	case <-ctx.Done():
		t.Fatal("connection did not survive a bad frame")
	}
	if got := testutil.ToFloat64(env.metrics.DecodeErrors); got != 1 {
		t.Fatalf("expected 1 decode error, got %v", got)
	}
}

func TestWebSocketDisconnectRemovesClient(t *testing.T) {
	env := startTestServer(t, testConfig())

	disconnected := make(chan struct{}, 1)
	env.hub.OnDisconnect(core.LifecycleHandlerFunc(func() { disconnected <- struct{}{} }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	write(ctx, t, conn, `{"connection":"news"}`)
	waitFor(t, "subscription", func() bool {
		info, ok := env.hub.Channel("news")
		return ok && len(info.Subscribers) == 1
	})

	conn.Close(websocket.StatusNormalClosure, "bye")

	select {
	case <-disconnected:
	case <-ctx.Done():
		t.Fatal("disconnect handler not invoked")
	}
	if clients := env.hub.Clients(); len(clients) != 0 {
		t.Fatalf("client not removed: %+v", clients)
	}
	if info, _ := env.hub.Channel("news"); len(info.Subscribers) != 0 {
		t.Fatalf("subscriber not removed: %v", info.Subscribers)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	env := startTestServer(t, cfg)

	received := make(chan any, 4)
	env.hub.On("chan1", core.MessageHandlerFunc(func(p core.Packet) { received <- p.Message }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, env)
	write(ctx, t, conn, `{"chan1":"first"}`)
	write(ctx, t, conn, `{"chan1":"second"}`)

	waitFor(t, "rate limited frame", func() bool {
		return testutil.ToFloat64(env.metrics.RateLimitedFrames) == 1
	})
	if len(received) != 1 || <-received != "first" {
		t.Fatal("only the first frame should reach the channel")
	}
}

func TestWebSocketSlowConsumerDoesNotBlockOthers(t *testing.T) {
	cfg := testConfig()
	cfg.SendBuffer = 1
	env := startTestServer(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slow := dial(ctx, t, env)
	fast := dial(ctx, t, env)
	write(ctx, t, slow, `{"connection":"burst"}`)
	write(ctx, t, fast, `{"connection":"burst"}`)
	waitFor(t, "subscriptions", func() bool {
		info, ok := env.hub.Channel("burst")
		return ok && len(info.Subscribers) == 2
	})

	const n = 20
	for _i := 0; _i < n; _i++ {
		env.hub.Send("burst", "x")
	}
	if err := env.hub.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	// The fast reader keeps receiving even though the slow one never reads.
	if _, _, err := fast.Read(ctx); err != nil {
		t.Fatalf("fast reader: %v", err)
	}
}

func TestShutdownClosesLiveConnections(t *testing.T) {
	env := startTestServer(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, env)
	write(ctx, t, conn, `{"connection":"news"}`)
	waitFor(t, "subscription", func() bool {
		info, ok := env.hub.Channel("news")
		return ok && len(info.Subscribers) == 1
	})

	readErr := make(chan error, 1)
	go func() {
		_, _, err := conn.Read(ctx)
		readErr <- err
	}()

	if err := env.http.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// Shutdown returns only after the socket is unregistered.
	if clients := env.hub.Clients(); len(clients) != 0 {
		t.Fatalf("client still registered after shutdown: %+v", clients)
	}
	if info, _ := env.hub.Channel("news"); len(info.Subscribers) != 0 {
		t.Fatalf("subscriber still registered after shutdown: %v", info.Subscribers)
	}

	select {
	case err := <-readErr:
		if status := websocket.CloseStatus(err); status != websocket.StatusGoingAway {
			t.Fatalf("expected going away close, got %v (%v)", status, err)
		}
	case <-ctx.Done():
		t.Fatal("client was not disconnected")
	}

	if _, _, err := websocket.Dial(ctx, env.wsURL(), nil); err == nil {
		t.Fatal("upgrade after shutdown should be refused")
	} else if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("dial after shutdown hung: %v", err)
	}
}
