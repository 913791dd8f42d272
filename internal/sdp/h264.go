package sdp

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/h264"
)

// H.264 format parameters ("a=fmtp:"), as defined in RFC 6184 Section 8.1.
type H264FormatParameters struct {
	LevelAsymmetryAllowed bool
	PacketizationMode     int

	// profile_idc, constraint flags and level_idc, as in bytes 1-3 of a SPS.
	ProfileLevelID int

	// Out-of-band SPS and PPS, so receivers can decode before the first
	// in-band parameter sets arrive.
	ParameterSets []h264.NALU
}

// ProfileLevelID reads the profile-level-id from a SPS NAL unit.
func ProfileLevelID(sps h264.NALU) int {
	if len(sps) < 4 {
		return 0
	}
	return int(sps[1])<<16 | int(sps[2])<<8 | int(sps[3])
}

// Marshal format parameters to string
func (fmtp *H264FormatParameters) Marshal() string {
	format := []string{
		fmt.Sprintf("profile-level-id=%06x", fmtp.ProfileLevelID),
	}

	if fmtp.LevelAsymmetryAllowed {
		format = append(format, "level-asymmetry-allowed=1")
	}

	if fmtp.PacketizationMode > 0 {
		format = append(format, fmt.Sprintf("packetization-mode=%d", fmtp.PacketizationMode))
	}

	if len(fmtp.ParameterSets) > 0 {
		sets := make([]string, len(fmtp.ParameterSets))
		for i, nalu := range fmtp.ParameterSets {
			sets[i] = base64.StdEncoding.EncodeToString(nalu)
		}
		format = append(format, "sprop-parameter-sets="+strings.Join(sets, ","))
	}

	return strings.Join(format, ";")
}

var errMalformedFormatParameters = errors.New("malformed format parameters")

// Unmarshal format parameters from string. Unknown parameters are ignored.
func (fmtp *H264FormatParameters) Unmarshal(format string) error {
	for _, param := range strings.Split(format, ";") {
		pieces := strings.SplitN(strings.TrimSpace(param), "=", 2)
		if len(pieces) < 2 {
			return errors.Wrap(errMalformedFormatParameters, param)
		}

		switch key, value := pieces[0], pieces[1]; key {
		case "level-asymmetry-allowed":
			switch value {
			case "0":
				fmtp.LevelAsymmetryAllowed = false
			case "1":
				fmtp.LevelAsymmetryAllowed = true
			default:
				return errors.Wrap(errMalformedFormatParameters, param)
			}
		case "packetization-mode":
			mode, err := strconv.Atoi(value)
			if err != nil || mode < 0 || mode > 2 {
				return errors.Wrap(errMalformedFormatParameters, param)
			}
			fmtp.PacketizationMode = mode
		case "profile-level-id":
			id, err := strconv.ParseUint(value, 16, 24)
			if err != nil || len(value) != 6 {
				return errors.Wrap(errMalformedFormatParameters, param)
			}
			fmtp.ProfileLevelID = int(id)
		case "sprop-parameter-sets":
			fmtp.ParameterSets = nil
			for _, set := range strings.Split(value, ",") {
				nalu, err := base64.StdEncoding.DecodeString(set)
				if err != nil || len(nalu) == 0 {
					return errors.Wrap(errMalformedFormatParameters, param)
				}
				fmtp.ParameterSets = append(fmtp.ParameterSets, nalu)
			}
		}
	}

	return nil
}
