// Package packet frames encoded video for the live stream wire protocol.
//
// Every message is a 16-byte big-endian header followed by the payload:
//
//	type u8 | flags u8 | reserved u16 | timestamp u64 (ns) | length u32 | payload
package packet

import (
	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/media"
)

const HeaderSize = 16

type MessageType byte

const (
	// Stream description: the payload is the encoding name, e.g. "H264".
	TypeHello MessageType = 1

	// Codec configuration, e.g. H.264 parameter sets.
	TypeConfig MessageType = 2

	// One encoded frame.
	TypeFrame MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case TypeHello:
		return "hello"
	case TypeConfig:
		return "config"
	case TypeFrame:
		return "frame"
	default:
		return "unknown"
	}
}

type Message struct {
	Type      MessageType
	Flags     media.FrameFlags
	Timestamp int64
	Payload   []byte
}

// Size returns the encoded length of m.
func (m *Message) Size() int {
	return HeaderSize + len(m.Payload)
}

// Marshal appends the encoded message to w.
func (m *Message) Marshal(w *Writer) error {
	if err := w.CheckCapacity(m.Size()); err != nil {
		return err
	}
	w.WriteByte(byte(m.Type))
	w.WriteByte(byte(m.Flags))
	w.WriteUint16(0)
	w.WriteUint64(uint64(m.Timestamp))
	w.WriteUint32(uint32(len(m.Payload)))
	return w.WriteSlice(m.Payload)
}

// Bytes encodes m into a new buffer.
func (m *Message) Bytes() []byte {
	w := NewWriterSize(m.Size())
	m.Marshal(w)
	return w.Bytes()
}

// ParseMessage decodes one message the way a live stream client does. The
// streamer only encodes; this serves clients written in Go and the tests. The
// payload aliases b.
func ParseMessage(b []byte) (Message, error) {
	r := NewReader(b)
	if err := r.CheckRemaining(HeaderSize); err != nil {
		return Message{}, errors.Wrap(err, "short message header")
	}
	var m Message
	typ, _ := r.ReadByte()
	flags, _ := r.ReadByte()
	m.Type = MessageType(typ)
	m.Flags = media.FrameFlags(flags)
	r.Skip(2)
	m.Timestamp = int64(r.ReadUint64())
	length := int(r.ReadUint32())

	payload, err := r.ReadSlice(length)
	if err != nil {
		return Message{}, errors.Wrapf(err, "%v message payload", m.Type)
	}
	if r.Remaining() != 0 {
		return Message{}, errors.Errorf("%d trailing bytes after %v message", r.Remaining(), m.Type)
	}
	m.Payload = payload
	return m, nil
}
