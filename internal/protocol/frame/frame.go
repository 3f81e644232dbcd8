package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderLen is the fixed wire header size: type, channel, seq, u32 length.
	HeaderLen = 7

	// MaxFrameLen bounds one frame to what a single UDP datagram can carry.
	MaxFrameLen = 65507
)

var (
	ErrIncomplete = errors.New("frame: incomplete frame")
	ErrMalformed  = errors.New("frame: malformed frame")
)

// Type tags the delivery semantics of one frame.
type Type uint8

const (
	TypeAck         Type = 1
	TypeData        Type = 2
	TypeLowLatency  Type = 3
	TypeDataWithAck Type = 4
)

func (t Type) Valid() bool {
	return t >= TypeAck && t <= TypeDataWithAck
}

func (t Type) String() string {
	switch t {
	case TypeAck:
		return "ack"
	case TypeData:
		return "data"
	case TypeLowLatency:
		return "low_latency"
	case TypeDataWithAck:
		return "data_with_ack"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Frame is one multiplexed wire message. The declared length on the wire
// counts the 7 header bytes plus the payload.
type Frame struct {
	Type      Type
	ChannelID uint8
	Seq       uint8
	Payload   []byte
}

// Encode serializes f into header+payload wire bytes.
func Encode(f Frame) []byte {
	buf := make([]byte, HeaderLen+len(f.Payload))
	buf[0] = byte(f.Type)
	buf[1] = f.ChannelID
	buf[2] = f.Seq
	binary.LittleEndian.PutUint32(buf[3:7], uint32(HeaderLen+len(f.Payload)))
	copy(buf[HeaderLen:], f.Payload)
	return buf
}

// Decode parses one frame from the front of buf and returns it along with the
// number of bytes consumed. ErrIncomplete means buf holds a valid prefix and
// the caller should supply more bytes; ErrMalformed means the bytes can never
// form a valid frame. Reassembly policy belongs to the caller: a datagram
// transport treats Incomplete mid-datagram as Malformed.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < HeaderLen {
		return Frame{}, 0, ErrIncomplete
	}
	t := Type(buf[0])
	if !t.Valid() {
		return Frame{}, 0, fmt.Errorf("%w: unknown frame type %d", ErrMalformed, buf[0])
	}
	size := binary.LittleEndian.Uint32(buf[3:7])
	if size < HeaderLen {
		return Frame{}, 0, fmt.Errorf("%w: declared length %d below header size", ErrMalformed, size)
	}
	if size > MaxFrameLen {
		return Frame{}, 0, fmt.Errorf("%w: declared length %d exceeds frame limit", ErrMalformed, size)
	}
	if uint32(len(buf)) < size {
		return Frame{}, 0, ErrIncomplete
	}
	f := Frame{
		Type:      t,
		ChannelID: buf[1],
		Seq:       buf[2],
	}
	if size > HeaderLen {
		f.Payload = make([]byte, size-HeaderLen)
		copy(f.Payload, buf[HeaderLen:size])
	}
	return f, int(size), nil
}
