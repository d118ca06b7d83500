// Package bridge forwards link payloads to and from packet transports
// (TCP, serial port, MQTT, websocket).
package bridge

import "context"

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// Sender sends payloads over the link. *link.Link implements it.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}
