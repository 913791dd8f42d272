// Package config holds the camera pipeline settings, loaded from a JSON file
// and overridden by command line flags.
package config

import (
	"encoding/json"
	"io/ioutil"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/capture"
	"github.com/lanikai/alohacam/internal/codec"
	"github.com/lanikai/alohacam/internal/logging"
	"github.com/lanikai/alohacam/internal/media"
	"github.com/lanikai/alohacam/internal/provider"
	"github.com/lanikai/alohacam/internal/rtp"
	"github.com/lanikai/alohacam/internal/yuv"
)

// Config is the camera pipeline configuration.
type Config struct {
	// Camera locator, "<driver>:<id>[/<facing>]".
	Input string `json:"input"`

	Width     int `json:"width"`
	Height    int `json:"height"`
	FrameRate int `json:"frameRate"`

	// Hardware coding switches. Direct surface coding needs the matching
	// hardware switch.
	HardwareEncode bool `json:"hardwareEncode"`
	HardwareDecode bool `json:"hardwareDecode"`
	SurfaceEncode  bool `json:"surfaceEncode"`
	SurfaceDecode  bool `json:"surfaceDecode"`

	// Encoder bitrate in KiB per second, and frames between key frames.
	BitRateKiB     int `json:"bitrate"`
	IFrameInterval int `json:"iframeInterval"`

	// Capture buffers queued with the driver, plus spares.
	CaptureDepth  int `json:"captureDepth"`
	CaptureSpares int `json:"captureSpares"`

	FrameTimeout   Duration `json:"frameTimeout"`
	CreateTimeout  Duration `json:"createTimeout"`
	RemoveTimeout  Duration `json:"removeTimeout"`
	ProbeInterval  Duration `json:"probeInterval"`
	SurfaceTimeout Duration `json:"surfaceTimeout"`

	// Rotation of the display in degrees.
	DisplayDegrees int `json:"displayDegrees"`

	// Chroma order per source layout, e.g. {"NV21": "u-first"}.
	ChromaOrder map[string]string `json:"chromaOrder"`

	// Codec names refused in addition to the built-in denylist.
	DenyCodecs []string `json:"denyCodecs"`

	// MP4 output file. Empty disables recording.
	Record string `json:"record"`

	// Address of the live websocket server. Empty disables it.
	Listen string `json:"listen"`

	// UDP destination (host:port) for plain RTP. Empty disables it.
	RTP string `json:"rtp"`

	// Dynamic RTP payload type, 96 to 127.
	RTPPayloadType int `json:"rtpPayloadType"`

	// File to write the RTP session description to.
	SDP string `json:"sdp"`

	// Log level directives, e.g. "info,codec=debug". Replaces LOGLEVEL when
	// set.
	LogLevel string `json:"logLevel"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Input:          "sim:0",
		Width:          640,
		Height:         480,
		FrameRate:      codec.DefaultFrameRate,
		HardwareEncode: true,
		HardwareDecode: true,
		BitRateKiB:     256,
		IFrameInterval: codec.DefaultIFrameInterval,
		CaptureDepth:   capture.DefaultDepth,
		CaptureSpares:  capture.DefaultSpares,
		FrameTimeout:   Duration(capture.DefaultFrameTimeout),
		CreateTimeout:  Duration(provider.DefaultCreateTimeout),
		RemoveTimeout:  Duration(provider.DefaultRemoveTimeout),
		ProbeInterval:  Duration(capture.DefaultProbeInterval),
		SurfaceTimeout: Duration(capture.DefaultSurfaceTimeout),
		RTPPayloadType: rtp.DefaultPayloadType,
	}
}

// Load reads a JSON file over the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if _, err := capture.ParseLocator(c.Input); err != nil {
		return err
	}
	if c.Width <= 0 || c.Height <= 0 || c.Width%2 != 0 || c.Height%2 != 0 {
		return errors.Errorf("invalid frame size %dx%d", c.Width, c.Height)
	}
	if c.FrameRate <= 0 || c.FrameRate > 120 {
		return errors.Errorf("invalid frame rate %d", c.FrameRate)
	}
	if c.BitRateKiB <= 0 {
		return errors.Errorf("invalid bitrate %d KiB", c.BitRateKiB)
	}
	if c.IFrameInterval < 0 {
		return errors.Errorf("invalid I-frame interval %d", c.IFrameInterval)
	}
	if c.CaptureDepth < 0 || c.CaptureSpares < 0 {
		return errors.New("capture buffer counts must not be negative")
	}
	if c.SurfaceEncode && !c.HardwareEncode {
		return errors.Wrap(media.ErrConfiguration, "surface encoding needs hardware encoding")
	}
	if c.SurfaceDecode && !c.HardwareDecode {
		return errors.Wrap(media.ErrConfiguration, "surface decoding needs hardware decoding")
	}
	for name, d := range map[string]Duration{
		"frameTimeout":   c.FrameTimeout,
		"createTimeout":  c.CreateTimeout,
		"removeTimeout":  c.RemoveTimeout,
		"probeInterval":  c.ProbeInterval,
		"surfaceTimeout": c.SurfaceTimeout,
	} {
		if d < 0 {
			return errors.Errorf("%s must not be negative", name)
		}
	}
	if _, err := c.chromaOrders(); err != nil {
		return err
	}
	if _, err := logging.ParseDirectives(c.LogLevel); err != nil {
		return err
	}
	if c.SDP != "" && c.RTP == "" {
		return errors.New("sdp output needs an rtp destination")
	}
	if c.RTP != "" {
		if _, _, err := net.SplitHostPort(c.RTP); err != nil {
			return errors.Wrap(err, "rtp destination")
		}
		if c.RTPPayloadType < 96 || c.RTPPayloadType > 127 {
			return errors.Errorf("invalid RTP payload type %d", c.RTPPayloadType)
		}
	}
	return nil
}

func (c *Config) Size() media.Size {
	return media.Size{Width: c.Width, Height: c.Height}
}

// CaptureFormat is the format to negotiate with the camera.
func (c *Config) CaptureFormat() media.Format {
	if c.SurfaceEncode {
		return media.SurfaceFormat(c.Size(), float64(c.FrameRate))
	}
	return media.RawFormat(media.I420, c.Size(), float64(c.FrameRate))
}

// CaptureOptions converts the capture settings. GL bindings and the preview
// are left for the caller.
func (c *Config) CaptureOptions() (capture.Options, error) {
	orders, err := c.chromaOrders()
	if err != nil {
		return capture.Options{}, err
	}
	return capture.Options{
		Depth:          c.CaptureDepth,
		Spares:         c.CaptureSpares,
		ChromaOrder:    orders,
		DisplayDegrees: c.DisplayDegrees,
		FrameTimeout:   time.Duration(c.FrameTimeout),
		ProbeInterval:  time.Duration(c.ProbeInterval),
		SurfaceTimeout: time.Duration(c.SurfaceTimeout),
	}, nil
}

// RTPOptions converts the RTP sender settings.
func (c *Config) RTPOptions() rtp.Options {
	return rtp.Options{PayloadType: byte(c.RTPPayloadType)}
}

// EncoderConfig describes an H.264 encoder for frames of format in.
func (c *Config) EncoderConfig(in media.Format) codec.Config {
	return codec.Config{
		Encoder:        true,
		Disabled:       !c.HardwareEncode,
		Input:          in,
		Output:         media.VideoFormat(media.H264, in.Size, in.FrameRate, codec.PacketizationMode1),
		Surface:        c.SurfaceEncode,
		BitRateKiB:     c.BitRateKiB,
		FrameRate:      c.FrameRate,
		IFrameInterval: c.IFrameInterval,
	}
}

// DecoderConfig describes a decoder for stream in. Surface decoding renders
// into target.
func (c *Config) DecoderConfig(in media.Format, target *provider.Provider[media.Surface]) codec.Config {
	return codec.Config{
		Disabled:      !c.HardwareDecode,
		Input:         in,
		Surface:       c.SurfaceDecode,
		RenderSurface: target,
	}
}

// SurfaceProvider creates a surface provider with the configured timeouts.
func (c *Config) SurfaceProvider(name string) *provider.Provider[media.Surface] {
	p := provider.New[media.Surface](name)
	if c.CreateTimeout > 0 {
		p.CreateTimeout = time.Duration(c.CreateTimeout)
	}
	if c.RemoveTimeout > 0 {
		p.RemoveTimeout = time.Duration(c.RemoveTimeout)
	}
	return p
}

func (c *Config) chromaOrders() (map[media.PixelLayout]yuv.ChromaOrder, error) {
	if len(c.ChromaOrder) == 0 {
		return nil, nil
	}
	orders := make(map[media.PixelLayout]yuv.ChromaOrder, len(c.ChromaOrder))
	for name, value := range c.ChromaOrder {
		layout, err := parseLayout(name)
		if err != nil {
			return nil, err
		}
		order, err := yuv.ParseChromaOrder(value)
		if err != nil {
			return nil, errors.Wrapf(err, "chroma order for %s", name)
		}
		orders[layout] = order
	}
	return orders, nil
}

func parseLayout(s string) (media.PixelLayout, error) {
	for _, l := range []media.PixelLayout{media.I420, media.YV12, media.NV12, media.NV21} {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return media.LayoutUnspecified, errors.Errorf("unknown pixel layout '%s'", s)
}

// Duration is a time.Duration that reads from JSON as a string such as
// "2.5s", or as a number of milliseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Millisecond)))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "invalid duration")
		}
		*d = Duration(parsed)
	default:
		return errors.Errorf("invalid duration %s", b)
	}
	return nil
}
