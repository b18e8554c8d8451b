package core

import "slices"

// Channel is a named topic. It holds the send handles of subscribed clients
// and the server-side handlers that run when a message targets it.
type Channel struct {
	Name        string
	subscribers map[ClientID]Conn
	callbacks   []MessageHandler
	lifecycle   []LifecycleHandler
}

// NewChannel constructs a channel with no subscribers and no handlers.
func NewChannel(name string) *Channel {
	return &Channel{
		Name:        name,
		subscribers: make(map[ClientID]Conn),
	}
}

// AddSubscriber inserts a client. Returns true if newly added.
func (ch *Channel) AddSubscriber(id ClientID, conn Conn) bool {
	if _, exists := ch.subscribers[id]; exists {
		return false
	}
	ch.subscribers[id] = conn
	return true
}

// RemoveSubscriber deletes a client. Returns true if removed.
func (ch *Channel) RemoveSubscriber(id ClientID) bool {
	if _, exists := ch.subscribers[id]; !exists {
		return false
	}
	delete(ch.subscribers, id)
	return true
}

type subscriber struct {
	id   ClientID
	conn Conn
}

func (ch *Channel) subscriberList() []subscriber {
	out := make([]subscriber, 0, len(ch.subscribers))
	for id, conn := range ch.subscribers {
		out = append(out, subscriber{id: id, conn: conn})
	}
	return out
}

func (ch *Channel) callbackList() []MessageHandler {
	return slices.Clone(ch.callbacks)
}

func (ch *Channel) lifecycleList() []LifecycleHandler {
	return slices.Clone(ch.lifecycle)
}

// ChannelInfo is a point-in-time view of a channel.
type ChannelInfo struct {
	Name              string
	Subscribers       []ClientID
	Callbacks         int
	LifecycleHandlers int
}

func (ch *Channel) info() ChannelInfo {
	ids := make([]ClientID, 0, len(ch.subscribers))
	for id := range ch.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ChannelInfo{
		Name:              ch.Name,
		Subscribers:       ids,
		Callbacks:         len(ch.callbacks),
		LifecycleHandlers: len(ch.lifecycle),
	}
}
