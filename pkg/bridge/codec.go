package bridge

import (
	"fmt"

	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes/wrappers"
)

// Codec converts between link payloads and transport packets.
type Codec interface {
	Encode(payload []byte) ([]byte, error)
	Decode(pkt []byte) ([]byte, error)
}

// RawCodec passes payloads through unchanged.
type RawCodec struct{}

// Encode implements Codec.
func (RawCodec) Encode(payload []byte) ([]byte, error) {
	return payload, nil
}

// Decode implements Codec.
func (RawCodec) Decode(pkt []byte) ([]byte, error) {
	return pkt, nil
}

// ProtoCodec wraps payloads in a google.protobuf.BytesValue so that
// transports shared with protobuf peers can carry them.
type ProtoCodec struct{}

// Encode implements Codec.
func (ProtoCodec) Encode(payload []byte) ([]byte, error) {
	return proto.Marshal(&wrappers.BytesValue{Value: payload})
}

// Decode implements Codec.
func (ProtoCodec) Decode(pkt []byte) ([]byte, error) {
	var msg wrappers.BytesValue
	if err := proto.Unmarshal(pkt, &msg); err != nil {
		return nil, err
	}
	if msg.Value == nil {
		return []byte{}, nil
	}
	return msg.Value, nil
}

// CodecByName returns the codec for "raw" (or empty) and "proto".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "raw":
		return RawCodec{}, nil
	case "proto":
		return ProtoCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}
