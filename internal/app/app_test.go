package app

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredispatch/internal/config"
	"github.com/vovakirdan/wiredispatch/internal/core"
)

func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestNewDeclaresChannels(t *testing.T) {
	cfg := config.Default()
	cfg.Channels = []string{"chan1", "chan2"}
	logger := zerolog.Nop()

	a, err := New(&cfg, &logger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := a.Hub().Channels(); len(got) != 2 {
		t.Fatalf("expected 2 declared channels, got %v", got)
	}
}

func TestNewRejectsDuplicateDeclarations(t *testing.T) {
	cfg := config.Default()
	cfg.Channels = []string{"chan1", "chan1"}
	logger := zerolog.Nop()

	_, err := New(&cfg, &logger)
	if !errors.Is(err, core.ErrChannelExists) {
		t.Fatalf("expected ErrChannelExists, got %v", err)
	}
}

func TestRunDrainsQueueOnShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = freeAddr(t)
	cfg.ShutdownTimeout = 2 * time.Second
	logger := zerolog.Nop()

	a, err := New(&cfg, &logger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	delivered := make(chan any, 1)
	a.Hub().On("chan1", core.MessageHandlerFunc(func(p core.Packet) { delivered <- p.Message }))

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	a.Hub().Send("chan1", "last words")
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}

	select {
	case msg := <-delivered:
		if msg != "last words" {
			t.Fatalf("unexpected message: %v", msg)
		}
	default:
		t.Fatal("queued message was not delivered before shutdown")
	}
}
