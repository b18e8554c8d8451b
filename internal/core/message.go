package core

// Packet is one message addressed to a channel. From is empty for messages
// originated by the server.
type Packet struct {
	Channel string
	Message any
	From    ClientID
}

// FromServer reports whether the packet has no client sender.
func (p Packet) FromServer() bool {
	return p.From == ""
}

// Payload is what To accepts: either a bare value or a value forwarded on
// behalf of a client.
type Payload interface {
	packet(channel string) Packet
}

// Raw is a bare message value with no sender.
type Raw struct {
	Value any
}

func (r Raw) packet(channel string) Packet {
	return Packet{Channel: channel, Message: r.Value}
}

// Forwarded carries a message value together with the client it came from.
type Forwarded struct {
	Value any
	From  ClientID
}

func (f Forwarded) packet(channel string) Packet {
	return Packet{Channel: channel, Message: f.Value, From: f.From}
}
