package codec

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"github.com/lanikai/alohacam/internal/media"
	"github.com/lanikai/alohacam/internal/provider"
)

const (
	DefaultFrameRate      = 30
	DefaultIFrameInterval = 30

	// Decoders start at this size until the stream reports its own.
	defaultDecodeWidth  = 176
	defaultDecodeHeight = 144
)

// Config describes one codec session.
type Config struct {
	Encoder bool

	// Hardware coding switched off by configuration. Open refuses to select
	// a codec.
	Disabled bool

	Input  media.Format
	Output media.Format

	// Encoder: read frames from an input surface instead of byte buffers.
	// Decoder: render frames into a surface from RenderSurface.
	Surface bool

	BitRateKiB     int
	FrameRate      int
	IFrameInterval int

	// Decoder render target in surface mode.
	RenderSurface *provider.Provider[media.Surface]

	// Called when the codec reports the real frame size.
	OnSizeDiscovered func(media.Size)
}

// Adapter wraps one hardware codec instance. Step is the only per-frame call;
// it always drains output before feeding input.
type Adapter struct {
	cfg  Config
	info Info
	hw   Hardware

	inputBuffers  [][]byte
	outputBuffers [][]byte

	inputSurface  media.Surface
	renderSurface media.Surface

	// Current output format; its size is updated when the codec reports it.
	output media.Format

	bufInfo BufferInfo

	configured bool
	closed     bool
	mu         sync.Mutex
}

// Open selects a codec for cfg from the registry and instantiates it.
func Open(r *Registry, cfg Config) (*Adapter, error) {
	if cfg.Disabled {
		return nil, xerrors.Errorf("codec: hardware coding disabled: %w", media.ErrResourceUnavailable)
	}

	var stream media.Format
	if cfg.Encoder {
		if _, ok := Match(cfg.Input, EncoderInputFormats(cfg.Surface)); !ok {
			return nil, xerrors.Errorf("codec: encoder cannot take %v: %w", cfg.Input, media.ErrUnsupportedFormat)
		}
		stream = cfg.Output
	} else {
		if _, ok := Match(cfg.Input, DecoderInputFormats()); !ok {
			return nil, xerrors.Errorf("codec: decoder cannot take %v: %w", cfg.Input, media.ErrUnsupportedFormat)
		}
		if cfg.Surface && cfg.RenderSurface == nil {
			return nil, xerrors.Errorf("codec: surface decoding needs a render surface provider: %w", media.ErrConfiguration)
		}
		stream = cfg.Input
	}

	kind := KindForEncoding(stream.Encoding)
	if kind == KindUnknown {
		return nil, xerrors.Errorf("codec: no codec kind for %v: %w", stream, media.ErrUnsupportedFormat)
	}
	info, err := r.ForType(kind.Mime(), cfg.Encoder)
	if err != nil {
		return nil, err
	}
	hw, err := r.create(info)
	if err != nil {
		return nil, err
	}

	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	if cfg.IFrameInterval <= 0 {
		cfg.IFrameInterval = DefaultIFrameInterval
	}

	a := &Adapter{
		cfg:    cfg,
		info:   info,
		hw:     hw,
		output: cfg.Output,
	}
	if !cfg.Encoder {
		if outs := DecoderOutputFormats(cfg.Input, cfg.Surface); len(outs) > 0 && cfg.Output.Encoding == "" {
			a.output = outs[0]
		}
	}
	log.Info("opened %s for %v -> %v", info.Name, cfg.Input, a.output)
	return a, nil
}

// Info describes the selected codec.
func (a *Adapter) Info() Info {
	return a.info
}

// mediaFormat builds the hardware configuration.
func (a *Adapter) mediaFormat() MediaFormat {
	size := a.cfg.Input.Size
	if size.IsZero() {
		size = a.cfg.Output.Size
	}
	if size.IsZero() && !a.cfg.Encoder {
		size = media.Size{Width: defaultDecodeWidth, Height: defaultDecodeHeight}
	}

	f := MediaFormat{
		Mime:   a.info.Kind().Mime(),
		Width:  size.Width,
		Height: size.Height,
	}
	if a.cfg.Encoder {
		f.BitRate = a.cfg.BitRateKiB * 1024
		f.FrameRate = a.cfg.FrameRate
		f.IFrameInterval = a.cfg.IFrameInterval
	}
	if a.cfg.Surface {
		f.ColorFormat = ColorSurface
	} else {
		f.ColorFormat = ColorYUV420Planar
	}
	return f
}

// Configure configures and starts the codec. A surface-mode decoder waits
// (bounded) for its render surface; a surface-mode encoder creates its input
// surface, available from InputSurface afterwards.
func (a *Adapter) Configure(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return xerrors.New("codec: adapter closed")
	}
	if a.configured {
		return nil
	}

	f := a.mediaFormat()
	if a.cfg.Encoder && (f.Width <= 0 || f.Height <= 0) {
		return xerrors.Errorf("codec: encoder needs a frame size: %w", media.ErrConfiguration)
	}
	if !a.cfg.Surface && !a.info.SupportsColor(f.ColorFormat) && len(a.info.Colors) > 0 {
		log.Warn("%s does not list %v among its color formats", a.info.Name, f.ColorFormat)
	}

	if !a.cfg.Encoder && a.cfg.Surface {
		s, err := a.cfg.RenderSurface.Obtain(ctx)
		if err != nil {
			return xerrors.Errorf("codec: render surface: %w", err)
		}
		a.renderSurface = s
	}

	log.Debug("configuring %s with %v", a.info.Name, f)
	if err := a.hw.Configure(f, a.renderSurface, a.cfg.Encoder); err != nil {
		return xerrors.Errorf("codec: configure %s: %v: %w", a.info.Name, err, media.ErrConfiguration)
	}

	if a.cfg.Encoder && a.cfg.Surface {
		s, err := a.hw.CreateInputSurface()
		if err != nil {
			return xerrors.Errorf("codec: create input surface: %v: %w", err, media.ErrConfiguration)
		}
		a.inputSurface = s
	}

	if err := a.hw.Start(); err != nil {
		return xerrors.Errorf("codec: start %s: %v: %w", a.info.Name, err, media.ErrConfiguration)
	}
	a.inputBuffers = a.hw.InputBuffers()
	a.outputBuffers = a.hw.OutputBuffers()
	a.configured = true
	return nil
}

// InputSurface is the encoder input surface in surface mode, nil otherwise.
func (a *Adapter) InputSurface() media.Surface {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inputSurface
}

// OutputFormat returns the current output format.
func (a *Adapter) OutputFormat() media.Format {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.output
}

// Step moves data through the codec once. Pending output always wins: input
// is only fed when no output was produced. A nil in drains output only.
//
// consumed reports that in was taken by the codec; produced that out was
// filled.
func (a *Adapter) Step(in, out *media.FrameBuffer) (consumed, produced bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.configured || a.closed {
		return false, false, xerrors.New("codec: step on an adapter that is not running")
	}

	produced, err = a.drain(out)
	if err != nil || produced {
		return false, produced, err
	}
	if in == nil {
		return false, false, nil
	}
	consumed, err = a.feed(in)
	return consumed, false, err
}

func (a *Adapter) drain(out *media.FrameBuffer) (bool, error) {
	idx := a.hw.DequeueOutputBuffer(&a.bufInfo, 0)
	switch {
	case idx == InfoOutputBuffersChanged:
		a.outputBuffers = a.hw.OutputBuffers()
		log.Debug("output buffers changed (%d)", len(a.outputBuffers))
		return false, nil

	case idx == InfoOutputFormatChanged:
		return false, a.formatChanged()

	case idx == InfoTryAgainLater:
		if log.Enabled(5) {
			log.Trace(5, "output not available yet")
		}
		return false, nil

	case idx < 0:
		log.Warn("output reports %d", idx)
		return false, nil
	}

	info := a.bufInfo
	render := !a.cfg.Encoder && a.cfg.Surface
	produced := false
	if render {
		out.Data = nil
		out.Surface = a.renderSurface
		produced = true
	} else if info.Size > 0 {
		if idx >= len(a.outputBuffers) {
			a.hw.ReleaseOutputBuffer(idx, false)
			return false, xerrors.Errorf("codec: output index %d out of range (%d buffers)", idx, len(a.outputBuffers))
		}
		src := a.outputBuffers[idx][info.Offset : info.Offset+info.Size]
		out.Data = append(out.Data[:0], src...)
		out.Surface = nil
		produced = true
	}
	if produced {
		out.Format = a.output
		out.Timestamp = info.PresentationTimeUs * 1000
		out.Flags = 0
		if info.Flags&BufferFlagSyncFrame != 0 {
			out.Flags |= media.FlagKeyFrame
		}
		if info.Flags&BufferFlagCodecConfig != 0 {
			out.Flags |= media.FlagCodecConfig
		}
		if info.Flags&BufferFlagEndOfStream != 0 {
			out.Flags |= media.FlagEndOfStream
		}
		if log.Enabled(5) {
			log.Trace(5, "read output %d:%d flags=%d", info.Offset, info.Size, info.Flags)
		}
	}

	if err := a.hw.ReleaseOutputBuffer(idx, render); err != nil {
		return false, xerrors.Errorf("codec: release output buffer %d: %w", idx, err)
	}
	return produced, nil
}

func (a *Adapter) formatChanged() error {
	f := a.hw.OutputFormat()
	log.Info("output format changed to %v", f)

	if !a.cfg.Encoder && !a.cfg.Surface && f.ColorFormat != ColorYUV420Planar {
		return xerrors.Errorf("codec: %s returned color format %v (requested %v), try surface decoding: %w",
			a.info.Name, f.ColorFormat, ColorYUV420Planar, media.ErrConfiguration)
	}

	size := media.Size{Width: f.Width, Height: f.Height}
	if !size.IsZero() && size != a.output.Size {
		a.output = a.output.WithSize(size)
		if a.cfg.OnSizeDiscovered != nil {
			a.cfg.OnSizeDiscovered(size)
		}
	}
	return nil
}

func (a *Adapter) feed(in *media.FrameBuffer) (bool, error) {
	if a.cfg.Encoder && a.cfg.Surface {
		// Frames reach the codec through the input surface.
		in.Surface = a.inputSurface
		return true, nil
	}

	idx := a.hw.DequeueInputBuffer(0)
	if idx < 0 {
		if idx == InfoTryAgainLater {
			log.Debug("input not available, try again later")
		} else {
			log.Warn("input reports %d", idx)
		}
		return false, nil
	}
	if idx >= len(a.inputBuffers) {
		return false, xerrors.Errorf("codec: input index %d out of range (%d buffers)", idx, len(a.inputBuffers))
	}

	buf := a.inputBuffers[idx]
	if len(buf) < len(in.Data) {
		a.hw.QueueInputBuffer(idx, 0, 0, 0, 0)
		return false, xerrors.Errorf("codec: input buffer too small: %d < %d: %w",
			len(buf), len(in.Data), media.ErrConfiguration)
	}
	n := copy(buf, in.Data)

	flags := 0
	if in.Flags&media.FlagEndOfStream != 0 {
		flags |= BufferFlagEndOfStream
	}
	if err := a.hw.QueueInputBuffer(idx, 0, n, in.Timestamp/1000, flags); err != nil {
		return false, xerrors.Errorf("codec: queue input buffer %d: %w", idx, err)
	}
	if log.Enabled(5) {
		log.Trace(5, "fed input with %d bytes", n)
	}
	return true, nil
}

// Close stops and releases the codec. Later calls do nothing.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	if a.configured {
		if err := a.hw.Stop(); err != nil {
			log.Warn("stop %s: %v", a.info.Name, err)
			firstErr = err
		}
	}
	if err := a.hw.Release(); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.inputSurface != nil {
		if err := a.inputSurface.Release(); err != nil {
			log.Warn("release input surface: %v", err)
		}
		a.inputSurface = nil
	}
	if a.renderSurface != nil {
		a.cfg.RenderSurface.Release(a.renderSurface)
		a.renderSurface = nil
	}
	a.inputBuffers = nil
	a.outputBuffers = nil
	log.Debug("closed %s", a.info.Name)
	return firstErr
}
