package core

// MessageHandler runs server-side when a packet targets its channel.
//
// The hub runs at most one handler at a time across all channels. A handler
// may call Send, To and the registry methods, but must not call HandleFrame,
// AddClient, RemoveClient or Flush: those run or wait for handlers and would
// deadlock.
type MessageHandler interface {
	OnMessage(p Packet)
}

// MessageHandlerFunc adapts a plain function to MessageHandler.
type MessageHandlerFunc func(p Packet)

// OnMessage calls f(p).
func (f MessageHandlerFunc) OnMessage(p Packet) {
	f(p)
}

// LifecycleHandler runs when a client connects or disconnects. It is
// serialized with message handlers and bound by the same call restrictions.
type LifecycleHandler interface {
	OnLifecycleEvent()
}

// LifecycleHandlerFunc adapts a plain function to LifecycleHandler.
type LifecycleHandlerFunc func()

// OnLifecycleEvent calls f().
func (f LifecycleHandlerFunc) OnLifecycleEvent() {
	f()
}
