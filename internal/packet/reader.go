package packet

import (
	"github.com/pkg/errors"
)

// Reader consumes big-endian fields from a buffer. Fixed-width reads assume
// the caller checked Remaining.
type Reader struct {
	buffer []byte
	offset int
}

func NewReader(buffer []byte) *Reader {
	return &Reader{buffer, 0}
}

func (r *Reader) ReadByte() (byte, error) {
	if err := r.CheckRemaining(1); err != nil {
		return 0, err
	}
	v := r.buffer[r.offset]
	r.offset++
	return v, nil
}

func (r *Reader) ReadUint16() uint16 {
	v := networkOrder.Uint16(r.buffer[r.offset:])
	r.offset += 2
	return v
}

func (r *Reader) ReadUint32() uint32 {
	v := networkOrder.Uint32(r.buffer[r.offset:])
	r.offset += 4
	return v
}

func (r *Reader) ReadUint64() uint64 {
	v := networkOrder.Uint64(r.buffer[r.offset:])
	r.offset += 8
	return v
}

func (r *Reader) ReadSlice(n int) ([]byte, error) {
	if err := r.CheckRemaining(n); err != nil {
		return nil, err
	}
	v := r.buffer[r.offset : r.offset+n]
	r.offset += n
	return v, nil
}

func (r *Reader) Skip(n int) {
	r.offset += n
}

// Return the number of bytes left in the buffer.
func (r *Reader) Remaining() int {
	return len(r.buffer) - r.offset
}

func (r *Reader) CheckRemaining(needed int) error {
	if r.Remaining() < needed {
		return errors.Errorf("%d bytes remaining, %d needed", r.Remaining(), needed)
	}
	return nil
}
