package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanikai/alohacam/internal/media"
)

func TestKindLookup(t *testing.T) {
	assert.Equal(t, KindH264, KindForMime("video/avc"))
	assert.Equal(t, KindVP8, KindForMime("video/x-vnd.on2.vp8"))
	assert.Equal(t, KindH263, KindForMime("video/3gpp"))
	assert.Equal(t, KindUnknown, KindForMime("audio/opus"))

	assert.Equal(t, KindH263, KindForEncoding(media.H263P))
	assert.Equal(t, KindUnknown, KindForEncoding(media.YUV))
	assert.Equal(t, "video/avc", KindH264.Mime())
	assert.Equal(t, "Unknown", KindUnknown.String())
}

func TestProfileLevelNames(t *testing.T) {
	assert.Equal(t, "ProfileHigh(0x8)", KindH264.Profile(0x08).String())
	assert.Equal(t, "Level31", KindH264.Level(0x200).Name)
	assert.Equal(t, "HighLatency", KindH263.Profile(0x100).Name)
	assert.Equal(t, "Version3", KindVP8.Level(0x08).Name)

	unknown := KindVP8.Profile(0x02)
	assert.Equal(t, "Unknown", unknown.Name)
	assert.Equal(t, 0x02, unknown.Value)
}

func TestColorFormatNames(t *testing.T) {
	assert.Equal(t, "YUV420Planar", ColorYUV420Planar.Name())
	assert.Equal(t, "Surface", ColorSurface.Name())
	assert.Equal(t, "QCOM_FormatYUV420SemiPlanar", ColorQCOMYUV420SP.Name())
	assert.Equal(t, "24BitABGR6666", ColorFormat(43).Name())
	assert.Equal(t, "VENDOR", ColorFormat(0x7f000999).Name())
	assert.Equal(t, "YUV420SemiPlanar(0x15)", ColorYUV420SemiPlanar.String())
}

func TestInfoString(t *testing.T) {
	info := Info{
		Name:          "OMX.test.avc.enc",
		Encoder:       true,
		Types:         []string{MimeH264},
		Colors:        []ColorFormat{ColorYUV420Planar, ColorSurface},
		ProfileLevels: []ProfileLevel{{0x01, 0x200}},
	}
	expected := "OMX.test.avc.enc(H264)\ncolors:\nYUV420Planar(0x13), \nSurface(0x7f000789)\nprofiles:\nP: ProfileBaseline(0x1) L: Level31(0x200)"
	assert.Equal(t, expected, info.String())
}
