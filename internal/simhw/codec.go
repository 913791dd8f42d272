package simhw

import (
	"encoding/binary"
	"sync"

	"github.com/nareix/joy4/codec/h264parser"
	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/codec"
	"github.com/lanikai/alohacam/internal/h264"
	"github.com/lanikai/alohacam/internal/media"
)

const (
	bufferCount       = 4
	encodedBufferSize = 64 * 1024
	inputBufferSize   = 256 * 1024
)

var simColors = []codec.ColorFormat{codec.ColorYUV420Planar, codec.ColorSurface}

// DefaultCodecs lists the simulated codecs. Denylisted names come first, so
// the registry has to skip them.
func DefaultCodecs() []codec.Info {
	h264Levels := []codec.ProfileLevel{{Profile: 0x01, Level: 0x200}}
	return []codec.Info{
		{Name: "OMX.SEC.avc.enc", Encoder: true, Types: []string{codec.MimeH264}, Colors: simColors},
		{Name: "OMX.sim.avc.encoder", Encoder: true, Types: []string{codec.MimeH264}, Colors: simColors, ProfileLevels: h264Levels},
		{Name: "OMX.google.vpx.encoder", Encoder: true, Types: []string{codec.MimeVP8}, Colors: simColors},
		{Name: "OMX.sim.vp8.encoder", Encoder: true, Types: []string{codec.MimeVP8}, Colors: simColors},
		{Name: "OMX.sim.h263.encoder", Encoder: true, Types: []string{codec.MimeH263}, Colors: simColors},
		{Name: "OMX.Nvidia.h264.decode", Types: []string{codec.MimeH264}, Colors: simColors},
		{Name: "OMX.sim.avc.decoder", Types: []string{codec.MimeH264}, Colors: simColors, ProfileLevels: h264Levels},
	}
}

// Platform is a codec.Platform of simulated codecs.
type Platform struct {
	// Color format decoders report, ColorYUV420Planar when zero.
	DecoderColor codec.ColorFormat

	infos []codec.Info

	mu        sync.Mutex
	instances []*Codec
}

func NewPlatform(infos ...codec.Info) *Platform {
	if len(infos) == 0 {
		infos = DefaultCodecs()
	}
	return &Platform{infos: infos}
}

func (p *Platform) Codecs() []codec.Info {
	return p.infos
}

func (p *Platform) CreateByName(name string) (codec.Hardware, error) {
	for _, info := range p.infos {
		if info.Name == name {
			c := &Codec{info: info, decoderColor: p.DecoderColor}
			p.mu.Lock()
			p.instances = append(p.instances, c)
			p.mu.Unlock()
			return c, nil
		}
	}
	return nil, errors.Errorf("simhw: no codec named %s", name)
}

// Instances returns every codec created so far.
func (p *Platform) Instances() []*Codec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Codec(nil), p.instances...)
}

type pendingOutput struct {
	data []byte
	info codec.BufferInfo
}

// Codec simulates a hardware codec. Encoders emit well-formed bitstream
// headers (H.264 parameter sets and slice NAL units, VP8 frame tags, H.263
// picture start codes) around a small payload. Decoders parse H.264
// parameter sets to learn the real frame size and emit gray frames.
type Codec struct {
	info         codec.Info
	decoderColor codec.ColorFormat

	mu sync.Mutex

	format       codec.MediaFormat
	outputFormat codec.MediaFormat
	encoder      bool
	render       media.Surface
	inputSurface *Window

	configured bool
	started    bool
	released   bool

	inputs  [][]byte
	freeIn  []int
	outputs [][]byte
	freeOut []int

	pending        []pendingOutput
	formatPending  bool
	buffersChanged bool

	frames      int
	configSent  bool
	rendered    int
	queuedInput int
}

func (c *Codec) Name() string {
	return c.info.Name
}

func (c *Codec) kind() codec.Kind {
	return c.info.Kind()
}

func (c *Codec) Configure(f codec.MediaFormat, surface media.Surface, encoder bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return errors.New("simhw: codec released")
	}
	if encoder != c.info.Encoder {
		return errors.Errorf("simhw: %s cannot be configured as encoder=%v", c.info.Name, encoder)
	}
	if f.Mime != c.kind().Mime() {
		return errors.Errorf("simhw: %s does not handle %s", c.info.Name, f.Mime)
	}
	if encoder && (f.Width <= 0 || f.Height <= 0) {
		return errors.Errorf("simhw: invalid size %dx%d", f.Width, f.Height)
	}
	c.format = f
	c.encoder = encoder
	c.render = surface
	c.outputFormat = f
	if !encoder {
		c.outputFormat.ColorFormat = c.decoderColor
		if c.outputFormat.ColorFormat == 0 {
			c.outputFormat.ColorFormat = codec.ColorYUV420Planar
		}
	}

	inSize := inputBufferSize
	if encoder {
		inSize = f.Width*f.Height*3/2 + 1024
	}
	c.inputs = makeBuffers(inSize)
	c.outputs = makeBuffers(c.outputSize())
	c.configured = true
	return nil
}

func (c *Codec) outputSize() int {
	if c.encoder {
		return encodedBufferSize
	}
	return c.outputFormat.Width * c.outputFormat.Height * 3 / 2
}

func makeBuffers(size int) [][]byte {
	bufs := make([][]byte, bufferCount)
	for i := range bufs {
		bufs[i] = make([]byte, size)
	}
	return bufs
}

func indices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func (c *Codec) CreateInputSurface() (media.Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.configured || c.started || !c.encoder {
		return nil, errors.New("simhw: input surface needs a configured, stopped encoder")
	}
	if c.format.ColorFormat != codec.ColorSurface {
		return nil, errors.New("simhw: encoder not configured for surface input")
	}
	c.inputSurface = newWindow(c.info.Name+" input", true, func(pts int64) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.started {
			c.encode(pts/1000, false)
		}
	})
	return c.inputSurface, nil
}

func (c *Codec) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.configured {
		return errors.New("simhw: start before configure")
	}
	c.started = true
	c.freeIn = indices(len(c.inputs))
	c.freeOut = indices(len(c.outputs))
	// Encoders announce their output format before the first buffer.
	c.formatPending = c.encoder
	return nil
}

func (c *Codec) InputBuffers() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs
}

func (c *Codec) OutputBuffers() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputs
}

func (c *Codec) DequeueInputBuffer(timeoutUs int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.inputSurface != nil || len(c.freeIn) == 0 {
		return codec.InfoTryAgainLater
	}
	idx := c.freeIn[0]
	c.freeIn = c.freeIn[1:]
	return idx
}

func (c *Codec) QueueInputBuffer(index, offset, size int, pts int64, flags int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return errors.New("simhw: codec not started")
	}
	if index < 0 || index >= len(c.inputs) {
		return errors.Errorf("simhw: no input buffer %d", index)
	}
	c.freeIn = append(c.freeIn, index)
	c.queuedInput++
	eos := flags&codec.BufferFlagEndOfStream != 0
	if size == 0 && !eos {
		return nil
	}

	if c.encoder {
		c.encode(pts, eos)
		return nil
	}
	data := append([]byte(nil), c.inputs[index][offset:offset+size]...)
	c.decode(data, pts, eos)
	return nil
}

// encode emits the bitstream for one frame. Must hold c.mu.
func (c *Codec) encode(ptsUs int64, eos bool) {
	interval := c.format.FrameRate * c.format.IFrameInterval
	if interval <= 0 {
		interval = 1
	}
	key := c.frames%interval == 0
	c.frames++

	var flags int
	if key {
		flags |= codec.BufferFlagSyncFrame
	}
	if eos {
		flags |= codec.BufferFlagEndOfStream
	}

	var payload []byte
	switch c.kind() {
	case codec.KindH264:
		if !c.configSent {
			sps, err := h264.BuildSPS(h264.SPSParams{Width: c.format.Width, Height: c.format.Height})
			if err != nil {
				log.Error("%s: %v", c.info.Name, err)
				return
			}
			config := h264.AppendAnnexB(nil, sps, h264.BuildPPS())
			c.queue(config, ptsUs, codec.BufferFlagCodecConfig)
			c.configSent = true
		}
		nalu := h264.NALU{0x41, 0x9a}
		if key {
			nalu = h264.NALU{0x65, 0x88}
		}
		nalu = append(nalu, c.counterBytes()...)
		payload = h264.AppendAnnexB(nil, nalu)

	case codec.KindVP8:
		// Frame tag: bit 0 clear marks a key frame, bit 4 shows the frame.
		tag := byte(0x10)
		if !key {
			tag |= 0x01
		}
		payload = []byte{tag, 0, 0}
		if key {
			payload = append(payload, 0x9d, 0x01, 0x2a)
			payload = binary.LittleEndian.AppendUint16(payload, uint16(c.format.Width))
			payload = binary.LittleEndian.AppendUint16(payload, uint16(c.format.Height))
		}
		payload = append(payload, c.counterBytes()...)

	case codec.KindH263:
		// Picture start code.
		payload = append([]byte{0x00, 0x00, 0x80, 0x02}, c.counterBytes()...)
	}
	c.queue(payload, ptsUs, flags)
}

func (c *Codec) counterBytes() []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(c.frames))
}

// decode consumes one access unit. Must hold c.mu.
func (c *Codec) decode(data []byte, ptsUs int64, eos bool) {
	picture := false
	for _, nalu := range h264.SplitAnnexB(data) {
		switch nalu.Type() {
		case h264.TypeSPS:
			info, err := h264parser.ParseSPS(h264.Unescape(nalu))
			if err != nil {
				log.Warn("%s: bad SPS: %v", c.info.Name, err)
				continue
			}
			w, h := int(info.Width), int(info.Height)
			if w != c.outputFormat.Width || h != c.outputFormat.Height {
				c.outputFormat.Width, c.outputFormat.Height = w, h
				c.formatPending = true
				if c.render == nil {
					c.resizeOutputs()
				}
			}
		case h264.TypeIDR, h264.TypeSlice:
			picture = true
		}
	}
	if !picture && !eos {
		return
	}

	flags := 0
	if eos {
		flags |= codec.BufferFlagEndOfStream
	}
	if c.render != nil {
		c.queue(nil, ptsUs, flags)
		return
	}
	frame := make([]byte, c.outputFormat.Width*c.outputFormat.Height*3/2)
	for i := range frame {
		frame[i] = 0x80
	}
	c.queue(frame, ptsUs, flags)
}

// resizeOutputs reallocates decoder output buffers for a new frame size.
// Must hold c.mu.
func (c *Codec) resizeOutputs() {
	c.outputs = makeBuffers(c.outputSize())
	c.freeOut = indices(len(c.outputs))
	c.buffersChanged = true
}

// Must hold c.mu.
func (c *Codec) queue(data []byte, ptsUs int64, flags int) {
	c.pending = append(c.pending, pendingOutput{
		data: data,
		info: codec.BufferInfo{Size: len(data), PresentationTimeUs: ptsUs, Flags: flags},
	})
}

func (c *Codec) DequeueOutputBuffer(info *codec.BufferInfo, timeoutUs int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return codec.InfoTryAgainLater
	}
	if c.buffersChanged {
		c.buffersChanged = false
		return codec.InfoOutputBuffersChanged
	}
	if c.formatPending {
		c.formatPending = false
		return codec.InfoOutputFormatChanged
	}
	if len(c.pending) == 0 || len(c.freeOut) == 0 {
		return codec.InfoTryAgainLater
	}
	out := c.pending[0]
	c.pending = c.pending[1:]
	idx := c.freeOut[0]
	c.freeOut = c.freeOut[1:]

	if len(out.data) > len(c.outputs[idx]) {
		log.Warn("%s: output of %d bytes truncated", c.info.Name, len(out.data))
		out.data = out.data[:len(c.outputs[idx])]
		out.info.Size = len(out.data)
	}
	copy(c.outputs[idx], out.data)
	*info = out.info
	return idx
}

func (c *Codec) ReleaseOutputBuffer(index int, render bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.outputs) {
		return errors.Errorf("simhw: no output buffer %d", index)
	}
	c.freeOut = append(c.freeOut, index)
	if render {
		c.rendered++
		if w, ok := c.render.(*Window); ok {
			go w.post(0)
		}
	}
	return nil
}

func (c *Codec) OutputFormat() codec.MediaFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputFormat
}

func (c *Codec) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.pending = nil
	return nil
}

func (c *Codec) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.released = true
	c.pending = nil
	return nil
}

// Stats returns how many input buffers were queued, frames encoded, and
// frames rendered.
func (c *Codec) Stats() (queued, frames, rendered int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queuedInput, c.frames, c.rendered
}

// Released reports whether Release was called.
func (c *Codec) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}
