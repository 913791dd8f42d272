package sdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacam/internal/h264"
)

func TestParseOrigin(t *testing.T) {
	o, err := parseOrigin("username id 123 IN IP4 0.0.0.0")
	require.NoError(t, err)
	assert.Equal(t, "username", o.Username, "username")
	assert.Equal(t, "id", o.SessionId)
	assert.EqualValues(t, 123, o.SessionVersion)
	assert.Equal(t, "IN", o.NetworkType)
	assert.Equal(t, "IP4", o.AddressType)
	assert.Equal(t, "0.0.0.0", o.Address)
}

func TestWriteOrigin(t *testing.T) {
	o, _ := parseOrigin("username id 123 IN IP4 0.0.0.0")
	assert.Equal(t, o.String(), "username id 123 IN IP4 0.0.0.0")
}

// As written by `ffmpeg -f rtp`.
const ffmpegSDP = `v=0
o=- 0 0 IN IP4 127.0.0.1
s=No Name
c=IN IP4 127.0.0.1
t=0 0
a=tool:libavformat 58.29.100
m=video 5004 RTP/AVP 96
b=AS:2000
a=rtpmap:96 H264/90000
a=fmtp:96 packetization-mode=1; sprop-parameter-sets=Z0LAHtoCgL/lwFqAgICgAAADACAAAAeR4sXU,aM48gA==; profile-level-id=42C01E
`

func TestParseSession(t *testing.T) {
	s, err := ParseSession(ffmpegSDP)
	require.NoError(t, err)
	assert.EqualValues(t, 0, s.Version)
	assert.Equal(t, "No Name", s.Name)
	assert.Equal(t, "libavformat 58.29.100", s.GetAttr("tool"))

	o := s.Origin
	assert.Equal(t, "-", o.Username)
	assert.Equal(t, "0", o.SessionId)
	assert.EqualValues(t, "127.0.0.1", o.Address)

	require.NotNil(t, s.Connection)
	assert.Equal(t, "127.0.0.1", s.Connection.Address)
	require.Len(t, s.Time, 1)
	assert.Nil(t, s.Time[0].Start)

	require.Len(t, s.Media, 1)
	m := s.Media[0]
	assert.Equal(t, "video", m.Type)
	assert.Equal(t, 5004, m.Port)
	assert.Equal(t, "RTP/AVP", m.Proto)
	assert.Equal(t, []string{"96"}, m.Format)
	assert.Equal(t, "H264/90000", m.PayloadAttr("rtpmap", 96))
	assert.Empty(t, m.PayloadAttr("rtpmap", 97))

	var fmtp H264FormatParameters
	require.NoError(t, fmtp.Unmarshal(m.PayloadAttr("fmtp", 96)))
	assert.Equal(t, 1, fmtp.PacketizationMode)
	assert.Equal(t, 0x42c01e, fmtp.ProfileLevelID)
	require.Len(t, fmtp.ParameterSets, 2)
	assert.EqualValues(t, h264.TypeSPS, fmtp.ParameterSets[0].Type())
	assert.EqualValues(t, h264.TypePPS, fmtp.ParameterSets[1].Type())
	assert.Equal(t, 0x42c01e, ProfileLevelID(fmtp.ParameterSets[0]))
}

func TestParseSessionErrors(t *testing.T) {
	for _, text := range []string{
		"v=x\r\n",
		"o=too short\r\n",
		"bogus\r\n",
		"v=0\r\nm=video\r\n",
		"v=0\r\nm=video nine RTP/AVP 96\r\n",
	} {
		_, err := ParseSession(text)
		assert.Error(t, err, "%q", text)
	}
}

func TestWriteSession(t *testing.T) {
	s := Session{
		Version: 0,
		Origin: Origin{
			Username:       "fred",
			SessionId:      "123",
			SessionVersion: 9,
			NetworkType:    "IN",
			AddressType:    "IP4",
			Address:        "127.0.0.1",
		},
		Name: "mysession",
	}

	assert.Equal(t,
		"v=0\r\no=fred 123 9 IN IP4 127.0.0.1\r\ns=mysession\r\n",
		s.String())

	s.Time = []Time{{}}
	s.Media = []Media{{
		Type:       "video",
		Port:       5004,
		Proto:      "RTP/AVP",
		Format:     []string{"96"},
		Attributes: []Attribute{{"rtpmap", "96 H264/90000"}, {"recvonly", ""}},
	}}
	text := s.String()
	assert.Contains(t, text, "t=0 0\r\nm=video 5004 RTP/AVP 96\r\na=rtpmap:96 H264/90000\r\na=recvonly\r\n")

	back, err := ParseSession(text)
	require.NoError(t, err)
	assert.Equal(t, s.Media, back.Media)
}

func TestH264FormatParameters(t *testing.T) {
	sps, err := h264.BuildSPS(h264.SPSParams{Width: 640, Height: 480})
	require.NoError(t, err)
	fmtp := H264FormatParameters{
		PacketizationMode: 1,
		ProfileLevelID:    ProfileLevelID(sps),
		ParameterSets:     []h264.NALU{sps, h264.BuildPPS()},
	}
	text := fmtp.Marshal()
	assert.Contains(t, text, "profile-level-id=42c01e;packetization-mode=1;sprop-parameter-sets=")

	var back H264FormatParameters
	require.NoError(t, back.Unmarshal(text))
	assert.Equal(t, fmtp, back)

	for _, bad := range []string{
		"packetization-mode",
		"packetization-mode=3",
		"profile-level-id=42",
		"level-asymmetry-allowed=yes",
		"sprop-parameter-sets=!!!",
	} {
		assert.Error(t, back.Unmarshal(bad), bad)
	}
}
