package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMatches(t *testing.T) {
	vga := Size{640, 480}
	hd := Size{1280, 720}

	assert.True(t, RawFormat(I420, vga, 30).Matches(RawFormat(I420, vga, 15)))
	assert.True(t, RawFormat(I420, vga, 30).Matches(Format{Encoding: YUV}))
	assert.False(t, RawFormat(I420, vga, 30).Matches(RawFormat(I420, hd, 30)))
	assert.False(t, RawFormat(I420, vga, 30).Matches(RawFormat(YV12, vga, 30)))
	assert.False(t, RawFormat(I420, vga, 30).Matches(SurfaceFormat(vga, 30)))

	h264 := VideoFormat(H264, vga, 30, "packetization-mode=1")
	assert.True(t, h264.Matches(Format{Encoding: H264}))
	assert.False(t, h264.Matches(VideoFormat(H264, vga, 30, "packetization-mode=0")))
}

func TestFrameSize(t *testing.T) {
	cases := []struct {
		format Format
		size   int
	}{
		{RawFormat(I420, Size{640, 480}, 0), 640 * 480 * 3 / 2},
		{RawFormat(NV21, Size{176, 144}, 0), 176 * 144 * 3 / 2},
		// 176 is 16-aligned, chroma stride 88 pads to 96.
		{RawFormat(YV12, Size{176, 144}, 0), 176*144 + 2*96*72},
		// 640 luma stride, 320 chroma stride: no padding.
		{RawFormat(YV12, Size{640, 480}, 0), 640 * 480 * 3 / 2},
		{RawFormat(YUYV, Size{640, 480}, 0), 640 * 480 * 2},
		{SurfaceFormat(Size{640, 480}, 0), 0},
		{VideoFormat(H264, Size{640, 480}, 0, ""), 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.size, c.format.FrameSize(), c.format.String())
	}
}

func TestFormatString(t *testing.T) {
	f := VideoFormat(H264, Size{1280, 720}, 30, "packetization-mode=1")
	assert.Equal(t, "H264 1280x720 @30fps [packetization-mode=1]", f.String())
	assert.Equal(t, "YUV 640x480 I420", RawFormat(I420, Size{640, 480}, 0).String())
}
