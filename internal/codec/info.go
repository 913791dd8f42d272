package codec

import (
	"strings"
)

// ProfileLevel is a profile/level pair a codec claims to support.
type ProfileLevel struct {
	Profile int
	Level   int
}

// Info describes one platform codec.
type Info struct {
	Name    string
	Encoder bool

	// MIME types the codec handles.
	Types []string

	Colors        []ColorFormat
	ProfileLevels []ProfileLevel
}

// Kind returns the first codec family the codec supports, preferring the
// types in the order the platform listed them.
func (info Info) Kind() Kind {
	for _, t := range info.Types {
		if k := KindForMime(t); k != KindUnknown {
			return k
		}
	}
	return KindUnknown
}

// Supports reports whether the codec handles the given MIME type.
func (info Info) Supports(mime string) bool {
	for _, t := range info.Types {
		if t == mime {
			return true
		}
	}
	return false
}

// SupportsColor reports whether the codec accepts the given color format.
func (info Info) SupportsColor(c ColorFormat) bool {
	for _, have := range info.Colors {
		if have == c {
			return true
		}
	}
	return false
}

func (info Info) String() string {
	var b strings.Builder
	k := info.Kind()
	b.WriteString(info.Name)
	b.WriteString("(")
	b.WriteString(string(k.Encoding()))
	b.WriteString(")\ncolors:\n")
	for i, c := range info.Colors {
		if i > 0 {
			b.WriteString(", \n")
		}
		b.WriteString(c.String())
	}
	b.WriteString("\nprofiles:\n")
	for i, pl := range info.ProfileLevels {
		if i > 0 {
			b.WriteString(", \n")
		}
		b.WriteString("P: ")
		b.WriteString(k.Profile(pl.Profile).String())
		b.WriteString(" L: ")
		b.WriteString(k.Level(pl.Level).String())
	}
	return b.String()
}
