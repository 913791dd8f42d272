// Package codec drives platform hardware video codecs: it selects a codec from
// the platform's capability list, configures it, and steps data through it.
package codec

import (
	"fmt"

	"github.com/lanikai/alohacam/internal/logging"
	"github.com/lanikai/alohacam/internal/media"
)

var log = logging.DefaultLogger.WithTag("codec")

// MIME types hardware codecs are registered under.
const (
	MimeH264 = "video/avc"
	MimeVP8  = "video/x-vnd.on2.vp8"
	MimeH263 = "video/3gpp"
)

// Kind identifies a video codec family. Each kind carries its own profile and
// level vocabulary.
type Kind int

const (
	KindUnknown Kind = iota
	KindH264
	KindVP8
	KindH263
)

// A Named value is a profile or level constant with its OMX name.
type Named struct {
	Name  string
	Value int
}

func (n Named) String() string {
	return fmt.Sprintf("%s(0x%x)", n.Name, n.Value)
}

type kindTraits struct {
	name     string
	mime     string
	encoding media.Encoding
	profiles []Named
	levels   []Named
}

var traits = map[Kind]kindTraits{
	KindH264: {
		name:     "H264",
		mime:     MimeH264,
		encoding: media.H264,
		profiles: []Named{
			{"ProfileBaseline", 0x01},
			{"ProfileMain", 0x02},
			{"ProfileExtended", 0x04},
			{"ProfileHigh", 0x08},
			{"ProfileHigh10", 0x10},
			{"ProfileHigh422", 0x20},
			{"ProfileHigh444", 0x40},
		},
		levels: []Named{
			{"Level1", 0x01},
			{"Level1b", 0x02},
			{"Level11", 0x04},
			{"Level12", 0x08},
			{"Level13", 0x10},
			{"Level2", 0x20},
			{"Level21", 0x40},
			{"Level22", 0x80},
			{"Level3", 0x100},
			{"Level31", 0x200},
			{"Level32", 0x400},
			{"Level4", 0x800},
			{"Level41", 0x1000},
			{"Level42", 0x2000},
			{"Level5", 0x4000},
			{"Level51", 0x8000},
		},
	},
	KindH263: {
		name:     "H263",
		mime:     MimeH263,
		encoding: media.H263P,
		profiles: []Named{
			{"Baseline", 0x01},
			{"H320Coding", 0x02},
			{"BackwardCompatible", 0x04},
			{"ISWV2", 0x08},
			{"ISWV3", 0x10},
			{"HighCompression", 0x20},
			{"Internet", 0x40},
			{"Interlace", 0x80},
			{"HighLatency", 0x100},
		},
		levels: []Named{
			{"Level10", 0x01},
			{"Level20", 0x02},
			{"Level30", 0x04},
			{"Level40", 0x08},
			{"Level45", 0x10},
			{"Level50", 0x20},
			{"Level60", 0x40},
			{"Level70", 0x80},
		},
	},
	KindVP8: {
		name:     "VP8",
		mime:     MimeVP8,
		encoding: media.VP8,
		profiles: []Named{
			{"ProfileMain", 0x01},
		},
		levels: []Named{
			{"Version0", 0x01},
			{"Version1", 0x02},
			{"Version2", 0x04},
			{"Version3", 0x08},
		},
	},
}

// KindForMime maps a codec MIME type to its kind.
func KindForMime(mime string) Kind {
	for k, t := range traits {
		if t.mime == mime {
			return k
		}
	}
	return KindUnknown
}

// KindForEncoding maps a compressed media encoding to its kind.
func KindForEncoding(enc media.Encoding) Kind {
	for k, t := range traits {
		if t.encoding == enc {
			return k
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	if t, ok := traits[k]; ok {
		return t.name
	}
	return "Unknown"
}

func (k Kind) Mime() string {
	return traits[k].mime
}

func (k Kind) Encoding() media.Encoding {
	return traits[k].encoding
}

func lookup(table []Named, value int) Named {
	for _, n := range table {
		if n.Value == value {
			return n
		}
	}
	return Named{"Unknown", value}
}

// Profile names a profile constant reported by the platform.
func (k Kind) Profile(value int) Named {
	return lookup(traits[k].profiles, value)
}

// Level names a level constant reported by the platform.
func (k Kind) Level(value int) Named {
	return lookup(traits[k].levels, value)
}
