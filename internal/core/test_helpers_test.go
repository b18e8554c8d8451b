package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingConn captures every push it receives.
type recordingConn struct {
	mu     sync.Mutex
	frames []string
	onSend func(data []byte)
}

func (c *recordingConn) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	c.frames = append(c.frames, string(data))
	c.mu.Unlock()
	if c.onSend != nil {
		c.onSend(data)
	}
	return nil
}

func (c *recordingConn) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

var errConnGone = errors.New("connection gone")

// failingConn rejects every push.
type failingConn struct{}

func (failingConn) Send(context.Context, []byte) error {
	return errConnGone
}

// recorder collects values from handlers in call order.
type recorder struct {
	mu     sync.Mutex
	values []any
}

func (r *recorder) add(v any) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder) Values() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.values...)
}

// startHub runs hub until the test ends.
func startHub(t *testing.T, hub *Hub) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func mustFlush(t *testing.T, hub *Hub) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hub.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func mustAddClient(t *testing.T, hub *Hub, id ClientID, conn Conn) *Client {
	t.Helper()

	client, err := hub.AddClient(id, conn)
	if err != nil {
		t.Fatalf("add client %s: %v", id, err)
	}
	return client
}
