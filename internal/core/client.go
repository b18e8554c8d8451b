package core

import (
	"context"
	"slices"
	"sync"
)

// ClientID identifies one connection. It is assigned by the transport and is
// unique for the lifetime of the connection.
type ClientID string

// Conn pushes raw bytes to a connected peer.
type Conn interface {
	Send(ctx context.Context, data []byte) error
}

// Client is a connected peer as seen by the core layer.
type Client struct {
	ID   ClientID
	conn Conn

	mu            sync.RWMutex
	subscriptions []string
}

// NewClient constructs a client with no subscriptions.
func NewClient(id ClientID, conn Conn) *Client {
	return &Client{
		ID:   id,
		conn: conn,
	}
}

// Subscriptions returns the channel names this client listens to, in
// subscription order. Names of channels closed since are kept.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.subscriptions)
}

func (c *Client) addSubscription(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.Contains(c.subscriptions, name) {
		return false
	}
	c.subscriptions = append(c.subscriptions, name)
	return true
}

func (c *Client) removeSubscription(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.Index(c.subscriptions, name)
	if i < 0 {
		return false
	}
	c.subscriptions = slices.Delete(c.subscriptions, i, i+1)
	return true
}

// ClientInfo is a point-in-time view of a client.
type ClientInfo struct {
	ID            ClientID
	Subscriptions []string
}

func (c *Client) info() ClientInfo {
	return ClientInfo{ID: c.ID, Subscriptions: c.Subscriptions()}
}
