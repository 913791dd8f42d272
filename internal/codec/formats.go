package codec

import (
	"github.com/lanikai/alohacam/internal/media"
)

const (
	PacketizationMode0 = "packetization-mode=0"
	PacketizationMode1 = "packetization-mode=1"
)

// EncoderInputFormats lists what an encoder accepts: a surface in direct
// surface mode, planar YUV otherwise.
func EncoderInputFormats(surface bool) []media.Format {
	if surface {
		return []media.Format{media.SurfaceFormat(media.Size{}, 0)}
	}
	return []media.Format{media.RawFormat(media.I420, media.Size{}, 0)}
}

// EncoderOutputFormats lists the streams an encoder can produce from in.
func EncoderOutputFormats(in media.Format) []media.Format {
	if !in.IsRaw() && !in.IsSurface() {
		return nil
	}
	return []media.Format{
		media.VideoFormat(media.VP8, in.Size, in.FrameRate, ""),
		media.VideoFormat(media.H263P, in.Size, in.FrameRate, ""),
		media.VideoFormat(media.H264, in.Size, in.FrameRate, PacketizationMode0),
		media.VideoFormat(media.H264, in.Size, in.FrameRate, PacketizationMode1),
	}
}

// DecoderInputFormats lists the streams a decoder accepts.
func DecoderInputFormats() []media.Format {
	return []media.Format{
		{Encoding: media.VP8},
		{Encoding: media.H263P},
		{Encoding: media.H264},
		{Encoding: media.H264, Params: PacketizationMode1},
	}
}

// DecoderOutputFormats lists what a decoder produces from in.
func DecoderOutputFormats(in media.Format, surface bool) []media.Format {
	if surface {
		return []media.Format{media.SurfaceFormat(in.Size, 0)}
	}
	return []media.Format{media.RawFormat(media.I420, in.Size, 0)}
}

// Match returns the first candidate matching f.
func Match(f media.Format, candidates []media.Format) (media.Format, bool) {
	for _, c := range candidates {
		if f.Matches(c) {
			return c, true
		}
	}
	return media.Format{}, false
}
