package h264

import (
	"encoding/binary"
)

var startCode = []byte{0, 0, 0, 1}

// SplitAnnexB splits an Annex-B byte stream into NAL units. Both 3- and
// 4-byte start codes are recognized; bytes before the first start code are
// ignored. The returned units alias b.
func SplitAnnexB(b []byte) []NALU {
	var nalus []NALU
	start := -1
	i := 0
	for i+2 < len(b) {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			if start >= 0 {
				end := i
				// A 4-byte start code owns the preceding zero.
				if end > start && b[end-1] == 0 {
					end--
				}
				if end > start {
					nalus = append(nalus, NALU(b[start:end]))
				}
			}
			i += 3
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(b) {
		nalus = append(nalus, NALU(b[start:]))
	}
	return nalus
}

// AppendAnnexB appends each unit to dst, prefixed by a 4-byte start code.
func AppendAnnexB(dst []byte, nalus ...NALU) []byte {
	for _, n := range nalus {
		dst = append(dst, startCode...)
		dst = append(dst, n...)
	}
	return dst
}

// AppendAVCC appends each unit to dst, prefixed by its 4-byte big-endian
// length, the framing MP4 samples use.
func AppendAVCC(dst []byte, nalus ...NALU) []byte {
	var length [4]byte
	for _, n := range nalus {
		binary.BigEndian.PutUint32(length[:], uint32(len(n)))
		dst = append(dst, length[:]...)
		dst = append(dst, n...)
	}
	return dst
}
