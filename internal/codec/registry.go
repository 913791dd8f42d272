package codec

import (
	"sync"

	"golang.org/x/xerrors"

	"github.com/lanikai/alohacam/internal/media"
)

// Codecs known to misbehave. They are never selected.
var DefaultDenylist = []string{
	"OMX.SEC.avc.enc",
	"OMX.SEC.h263.enc",
	"OMX.Nvidia.h264.decode",
	"OMX.SEC.vp8.dec",
	"OMX.google.vpx.encoder",
}

// Registry is a snapshot of the platform's codec list. It is built once and
// never changes afterwards, so it can be shared freely between goroutines.
type Registry struct {
	platform Platform
	codecs   []Info
	denied   map[string]bool
}

// NewRegistry enumerates the platform codecs, skipping those whose kind is
// unknown. extraDenied names are rejected in addition to DefaultDenylist.
func NewRegistry(p Platform, extraDenied ...string) *Registry {
	r := &Registry{
		platform: p,
		denied:   make(map[string]bool),
	}
	for _, name := range DefaultDenylist {
		r.denied[name] = true
	}
	for _, name := range extraDenied {
		r.denied[name] = true
	}
	for _, info := range p.Codecs() {
		if info.Kind() == KindUnknown {
			continue
		}
		r.codecs = append(r.codecs, info)
		if log.Enabled(5) {
			log.Trace(5, "codec %v", info)
		}
	}
	log.Debug("%d supported codecs, %d denylisted names", len(r.codecs), len(r.denied))
	return r
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Init builds the process-wide registry on first call. Later calls return the
// same registry and ignore their arguments.
func Init(p Platform, extraDenied ...string) *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(p, extraDenied...)
	})
	return defaultRegistry
}

// Default returns the registry built by Init, or nil.
func Default() *Registry {
	return defaultRegistry
}

// Codecs returns a copy of every known codec.
func (r *Registry) Codecs() []Info {
	return append([]Info(nil), r.codecs...)
}

// IsDenied reports whether the named codec is denylisted.
func (r *Registry) IsDenied(name string) bool {
	return r.denied[name]
}

// ForType returns the first non-denylisted codec for the MIME type and
// direction.
func (r *Registry) ForType(mime string, encoder bool) (Info, error) {
	for _, info := range r.codecs {
		if info.Encoder != encoder || !info.Supports(mime) {
			continue
		}
		if r.denied[info.Name] {
			log.Debug("skipping denylisted codec %s", info.Name)
			continue
		}
		return info, nil
	}
	dir := "decoder"
	if encoder {
		dir = "encoder"
	}
	return Info{}, xerrors.Errorf("codec: no %s for %s: %w", dir, mime, media.ErrResourceUnavailable)
}

// Nominated reports whether info is the codec ForType would pick for its kind
// and direction.
func (r *Registry) Nominated(info Info) bool {
	chosen, err := r.ForType(info.Kind().Mime(), info.Encoder)
	return err == nil && chosen.Name == info.Name
}

// Supports reports whether some usable codec handles enc in the given
// direction.
func (r *Registry) Supports(enc media.Encoding, encoder bool) bool {
	k := KindForEncoding(enc)
	if k == KindUnknown {
		return false
	}
	_, err := r.ForType(k.Mime(), encoder)
	return err == nil
}

func (r *Registry) create(info Info) (Hardware, error) {
	hw, err := r.platform.CreateByName(info.Name)
	if err != nil {
		return nil, xerrors.Errorf("codec: create %s: %v: %w", info.Name, err, media.ErrResourceUnavailable)
	}
	return hw, nil
}
