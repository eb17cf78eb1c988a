package object

import (
	"fmt"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

// MinChunk0 is the first-chunk capacity given to new objects so small
// groups can gain links without relocating their header.
const MinChunk0 = 120

const v2MsgHeader = 4

// MsgsSize returns the encoded size of msgs inside a version 2 chunk.
func MsgsSize(msgs []Msg) int {
	n := 0
	for _, m := range msgs {
		n += v2MsgHeader + len(m.Data)
	}
	return n
}

func chunk0Width(capacity int) (uint8, int) {
	switch {
	case capacity < 1<<8:
		return 0, 1
	case capacity < 1<<16:
		return 1, 2
	default:
		return 2, 4
	}
}

// PrefixSize returns the OHDR prefix size for a first chunk of capacity bytes.
func PrefixSize(capacity int) int {
	_, w := chunk0Width(capacity)
	return 6 + w
}

// EncodedSize returns the total size of a header written with Encode.
func EncodedSize(capacity int) int {
	return PrefixSize(capacity) + capacity + 4
}

// Encode writes msgs into a version 2 header whose first chunk holds exactly
// capacity bytes; the remainder is filled with a NIL message. Rewriting an
// object with the same capacity keeps its size, so it can be updated in place.
func Encode(msgs []Msg, capacity int) ([]byte, error) {
	need := MsgsSize(msgs)
	if need > capacity {
		return nil, fmt.Errorf("object: %d bytes of messages exceed chunk capacity %d", need, capacity)
	}
	if gap := capacity - need; gap > 0 && gap < v2MsgHeader {
		return nil, fmt.Errorf("object: gap of %d bytes cannot hold a NIL message", gap)
	}
	flagBits, width := chunk0Width(capacity)

	e := binary.NewEncoder(binary.DefaultSizes)
	e.Raw([]byte("OHDR"))
	e.U8(2)
	e.U8(flagBits)
	e.Uint(uint64(capacity), width)
	encodeMsgs(e, msgs)
	if gap := capacity - need; gap > 0 {
		e.U8(uint8(message.TypeNIL))
		e.U16(uint16(gap - v2MsgHeader))
		e.U8(0)
		e.Zero(gap - v2MsgHeader)
	}
	e.Checksum(0)
	return e.Bytes(), nil
}

// EncodeContinuation writes msgs as an OCHK continuation chunk.
func EncodeContinuation(msgs []Msg) []byte {
	e := binary.NewEncoder(binary.DefaultSizes)
	e.Raw([]byte("OCHK"))
	encodeMsgs(e, msgs)
	e.Checksum(0)
	return e.Bytes()
}

// ContinuationSize is the encoded size of an OCHK chunk holding msgs.
func ContinuationSize(msgs []Msg) int {
	return 4 + MsgsSize(msgs) + 4
}

func encodeMsgs(e *binary.Encoder, msgs []Msg) {
	for _, m := range msgs {
		e.U8(uint8(m.Type))
		e.U16(uint16(len(m.Data)))
		e.U8(m.Flags)
		e.Raw(m.Data)
	}
}

// Capacity returns the first-chunk capacity for msgs: MinChunk0 when the
// messages leave room for a NIL message, otherwise their exact size.
func Capacity(msgs []Msg) int {
	n := MsgsSize(msgs)
	if n+v2MsgHeader <= MinChunk0 {
		return MinChunk0
	}
	return n
}

// Fits reports whether msgs can be encoded into a first chunk of capacity
// bytes.
func Fits(msgs []Msg, capacity int) bool {
	n := MsgsSize(msgs)
	return n == capacity || n+v2MsgHeader <= capacity
}

// ContinuationMsg returns the header message pointing at an OCHK chunk.
func ContinuationMsg(addr uint64, length int, sz binary.Sizes) Msg {
	e := binary.NewEncoder(sz)
	e.Addr(addr)
	e.Length(uint64(length))
	return Msg{Type: message.TypeContinuation, Data: e.Bytes()}
}
