// Package h264 handles the H.264 elementary stream pieces the pipeline
// touches: NAL unit framing and parameter sets.
package h264

// NAL unit types. See ITU-T H.264 table 7-1.
const (
	TypeSlice    = 1
	TypeIDR      = 5
	TypeSEI      = 6
	TypeSPS      = 7
	TypePPS      = 8
	TypeAUD      = 9
	TypeEndOfSeq = 10
)

type NALU []byte

func (nalu NALU) ForbiddenBit() byte {
	return nalu[0] & 0x80 >> 7
}

func (nalu NALU) NRI() byte {
	return nalu[0] & 0x60 >> 5
}

func (nalu NALU) Type() byte {
	return nalu[0] & 0x1f
}

// IsParameterSet reports whether the unit is an SPS or PPS.
func (nalu NALU) IsParameterSet() bool {
	t := nalu.Type()
	return t == TypeSPS || t == TypePPS
}

// IsKeyFrame reports whether the unit is an IDR slice.
func (nalu NALU) IsKeyFrame() bool {
	return nalu.Type() == TypeIDR
}

func header(nri, typ byte) byte {
	return nri<<5 | typ&0x1f
}
