package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	api := flag.String("api", "http://localhost:8080/api", "admin API base URL")
	token := flag.String("token", "", "admin bearer token (see `wiredispatch token`)")
	channel := flag.String("channel", "general", "channel to subscribe and publish to")
	text := flag.String("text", "hello from smoke test", "message to publish")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, map[string]string{"connection": *channel}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := wsjson.Write(ctx, conn, map[string]string{*channel: *text}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	// The subscription is applied asynchronously by the server.
	time.Sleep(100 * time.Millisecond)

	if err := publish(ctx, *api, *token, *channel, *text); err != nil {
		return err
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	fmt.Printf("Received push on %s: %s\n", *channel, data)
	return nil
}

func publish(ctx context.Context, api, token, channel, text string) error {
	body, err := json.Marshal(map[string]any{"message": text})
	if err != nil {
		return fmt.Errorf("marshal publish: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api+"/channels/"+channel+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("publish: unexpected status %s", resp.Status)
	}
	return nil
}
