package rtp

import (
	"io"
	"sync"

	pion "github.com/pion/rtp"
	"github.com/pkg/errors"
)

// RTP Data Transfer Protocol, as defined in RFC 3550 Section 5.

const (
	// Fixed header size without CSRC identifiers or extensions.
	rtpHeaderSize = 12
)

// rtpWriter maintains state necessary for sending RTP data packets.
type rtpWriter struct {
	conn      io.Writer
	ssrc      uint32
	sequencer pion.Sequencer

	// Number of RTP packets sent.
	count uint64

	// Total number of payload bytes sent.
	totalBytes uint64

	// Buffer used for serializing packets.
	buf []byte

	sync.Mutex
}

func newRTPWriter(conn io.Writer, ssrc uint32, sequencer pion.Sequencer, maxPacketSize int) *rtpWriter {
	return &rtpWriter{
		conn:      conn,
		ssrc:      ssrc,
		sequencer: sequencer,
		buf:       make([]byte, maxPacketSize),
	}
}

// Largest payload that fits in one packet.
func (w *rtpWriter) maxPayload() int {
	return len(w.buf) - rtpHeaderSize
}

// Send a single RTP packet.
func (w *rtpWriter) writePacket(payloadType byte, marker bool, timestamp uint32, payload []byte) error {
	w.Lock()
	defer w.Unlock()

	if len(payload) > w.maxPayload() {
		return errors.Errorf("RTP payload of %d bytes exceeds %d", len(payload), w.maxPayload())
	}
	p := pion.Packet{
		Header: pion.Header{
			Version:        rtpVersion,
			Marker:         marker,
			PayloadType:    payloadType,
			SequenceNumber: w.sequencer.NextSequenceNumber(),
			Timestamp:      timestamp,
			SSRC:           w.ssrc,
		},
		Payload: payload,
	}
	n, err := p.MarshalTo(w.buf)
	if err != nil {
		return errors.Wrap(err, "marshal RTP packet")
	}

	w.count += 1
	w.totalBytes += uint64(len(payload))

	_, err = w.conn.Write(w.buf[:n])
	return err
}

func (w *rtpWriter) stats() (packets, bytes uint64) {
	w.Lock()
	defer w.Unlock()
	return w.count, w.totalBytes
}
