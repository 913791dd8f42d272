package rtp

import (
	"net"
	"strconv"

	"github.com/lanikai/alohacam/internal/h264"
	"github.com/lanikai/alohacam/internal/sdp"
)

// Description returns the SDP a receiver needs to play the stream, e.g. with
// `ffplay -protocol_whitelist file,udp,rtp stream.sdp`. Parameter sets are
// included once the encoder has produced them.
func (s *Sender) Description() sdp.Session {
	host, port := "0.0.0.0", 0
	if h, p, err := net.SplitHostPort(s.dest); err == nil {
		host = h
		port, _ = strconv.Atoi(p)
	}
	addrType := "IP4"
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		addrType = "IP6"
	}

	fmtp := sdp.H264FormatParameters{
		PacketizationMode: 1,
		ProfileLevelID:    h264.ProfileBaseline<<16 | 0xc0<<8 | h264.LevelFor(s.format.Size.Width, s.format.Size.Height),
	}
	s.mu.Lock()
	if len(s.sps) > 0 {
		fmtp.ProfileLevelID = sdp.ProfileLevelID(s.sps)
		if len(s.pps) > 0 {
			fmtp.ParameterSets = []h264.NALU{
				append(h264.NALU(nil), s.sps...),
				append(h264.NALU(nil), s.pps...),
			}
		}
	}
	s.mu.Unlock()

	pt := strconv.Itoa(int(s.opts.PayloadType))
	conn := &sdp.Connection{NetworkType: "IN", AddressType: addrType, Address: host}
	return sdp.Session{
		Origin: sdp.Origin{
			Username:    "-",
			SessionId:   strconv.FormatUint(uint64(s.opts.SSRC), 10),
			NetworkType: "IN",
			AddressType: addrType,
			Address:     host,
		},
		Name:       "alohacam",
		Connection: conn,
		Time:       []sdp.Time{{}},
		Media: []sdp.Media{{
			Type:   "video",
			Port:   port,
			Proto:  "RTP/AVP",
			Format: []string{pt},
			Attributes: []sdp.Attribute{
				{Key: "rtpmap", Value: pt + " H264/" + strconv.Itoa(videoClockRate)},
				{Key: "fmtp", Value: pt + " " + fmtp.Marshal()},
				{Key: "framerate", Value: strconv.FormatFloat(s.format.FrameRate, 'g', -1, 64)},
			},
		}},
	}
}
