package rtp

import (
	"github.com/lanikai/alohacam/internal/h264"
	"github.com/lanikai/alohacam/internal/packet"
)

// RTP packetization of H.264 video streams.
// See [RFC 6184](https://tools.ietf.org/html/rfc6184).

const (
	// Aggregation and fragmentation unit types.
	// See https://tools.ietf.org/html/rfc6184#section-5.2
	naluTypeSTAP_A = 24
	naluTypeFU_A   = 28
)

type h264Writer struct {
	*rtpWriter

	payloadType byte

	// Accumulated STAP-A packet. This is initialized when a SPS, PPS or SEI is
	// encountered, and saved until the next coded picture needs to be sent.
	stap []byte

	// Scratch buffer for FU-A payloads.
	fu *packet.Writer
}

func newH264Writer(w *rtpWriter, payloadType byte) *h264Writer {
	return &h264Writer{
		rtpWriter:   w,
		payloadType: payloadType,
		fu:          packet.NewWriterSize(w.maxPayload()),
	}
}

// writeAccessUnit sends every NAL unit of one access unit. The marker bit is
// set on the last packet carrying picture data.
func (w *h264Writer) writeAccessUnit(nalus []h264.NALU, timestamp uint32) error {
	last := -1
	for i, nalu := range nalus {
		if len(nalu) > 0 && isPicture(nalu) {
			last = i
		}
	}

	for i, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch nalu.Type() {
		case h264.TypeAUD:
		case h264.TypeSEI, h264.TypeSPS, h264.TypePPS:
			// Merge consecutive SEI/SPS/PPS into a single STAP-A packet.
			if w.stapSize(nalu) > w.maxPayload() {
				if err := w.flushSTAP(timestamp); err != nil {
					return err
				}
			}
			if w.stapSize(nalu) > w.maxPayload() {
				// Too big to aggregate even alone.
				if err := w.packetize(nalu, timestamp, false); err != nil {
					return err
				}
				continue
			}
			w.appendSTAP(nalu)
		default:
			if err := w.packetize(nalu, timestamp, i == last); err != nil {
				return err
			}
		}
	}
	return nil
}

func isPicture(nalu h264.NALU) bool {
	switch nalu.Type() {
	case h264.TypeAUD, h264.TypeSEI, h264.TypeSPS, h264.TypePPS:
		return false
	}
	return true
}

// stapSize is the STAP-A payload size once nalu is appended, counting the
// STAP-A header byte if nalu would be the first unit.
func (w *h264Writer) stapSize(nalu h264.NALU) int {
	n := len(w.stap) + 2 + len(nalu)
	if len(w.stap) == 0 {
		n++
	}
	return n
}

// See https://tools.ietf.org/html/rfc6184#section-5.7.1
func (w *h264Writer) appendSTAP(nalu h264.NALU) {
	n := len(nalu)
	if len(w.stap) == 0 {
		// Initialize NALU of type STAP-A, with F and NRI set to 0.
		w.stap = append(w.stap, naluTypeSTAP_A)
	}
	w.stap = append(w.stap, byte(n>>8), byte(n))
	w.stap = append(w.stap, nalu...)

	// STAP-A forbidden bit is bitwise-OR of all forbidden bits.
	w.stap[0] |= nalu[0] & 0x80

	// STAP-A NRI value is maximum of all NRI values.
	nri := nalu[0] & 0x60
	stapNRI := w.stap[0] & 0x60
	if nri > stapNRI {
		w.stap[0] = (w.stap[0] &^ 0x60) | nri
	}
}

func (w *h264Writer) flushSTAP(timestamp uint32) error {
	if len(w.stap) == 0 {
		return nil
	}
	err := w.writePacket(w.payloadType, false, timestamp, w.stap)
	w.stap = w.stap[:0]
	return err
}

func (w *h264Writer) packetize(nalu h264.NALU, timestamp uint32, marker bool) error {
	// First send STAP-A packet, if present.
	if err := w.flushSTAP(timestamp); err != nil {
		return err
	}

	maxSize := w.maxPayload()

	// If it fits, send the NALU as a single RTP packet.
	// See https://tools.ietf.org/html/rfc6184#section-5.6
	if len(nalu) <= maxSize {
		return w.writePacket(w.payloadType, marker, timestamp, nalu)
	}

	// Otherwise, fragment the NALU into multiple FU-A packets.
	// See https://tools.ietf.org/html/rfc6184#section-5.8
	indicator := nalu[0]&0xe0 | naluTypeFU_A
	start := byte(0x80)
	end := byte(0)
	typ := nalu.Type()
	p := w.fu
	for i := 1; i < len(nalu); i += maxSize - 2 {
		tail := i + maxSize - 2
		if tail >= len(nalu) {
			tail = len(nalu)
			end = 0x40
		}

		p.Reset()
		p.WriteByte(indicator)         // FU indicator
		p.WriteByte(start | end | typ) // FU header
		if err := p.WriteSlice(nalu[i:tail]); err != nil {
			return err
		}

		if err := w.writePacket(w.payloadType, marker && end != 0, timestamp, p.Bytes()); err != nil {
			return err
		}
		start = 0
	}
	return nil
}
