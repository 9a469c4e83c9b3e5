package schema

import (
	"encoding/binary"
	"fmt"
)

// ChannelMessage is one decoded per-channel message: the channel it
// targets, its type, and the still-encoded payload.
type ChannelMessage struct {
	ChannelID uint32
	Type      Type
	Payload   []byte
}

// EncodeHeader packs the varint header (channel_id << 4) | type, per
// spec §4.6.
func EncodeHeader(channelID uint32, typ Type) []byte {
	header := (uint64(channelID) << 4) | uint64(typ)
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, header)
	return buf[:n]
}

// DecodeHeader unpacks a varint header into its channel ID and type,
// returning the number of bytes consumed.
func DecodeHeader(b []byte) (channelID uint32, typ Type, n int, err error) {
	header, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, 0, 0, fmt.Errorf("schema: decode header: invalid varint")
	}
	return uint32(header >> 4), Type(header & 0xF), n, nil
}

// EncodeChannelMessage packs a full channel message: header followed by
// the message's own protobuf encoding.
func EncodeChannelMessage(channelID uint32, typ Type, payload []byte) []byte {
	header := EncodeHeader(channelID, typ)
	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

// DecodeChannelMessage splits a raw frame body into its channel ID, type,
// and remaining (still protobuf-encoded) payload.
func DecodeChannelMessage(b []byte) (ChannelMessage, error) {
	channelID, typ, n, err := DecodeHeader(b)
	if err != nil {
		return ChannelMessage{}, err
	}
	return ChannelMessage{ChannelID: channelID, Type: typ, Payload: b[n:]}, nil
}
