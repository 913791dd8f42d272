package codec

import (
	"fmt"

	"github.com/lanikai/alohacam/internal/media"
)

// Special results of Hardware.DequeueOutputBuffer and DequeueInputBuffer.
const (
	InfoTryAgainLater        = -1
	InfoOutputFormatChanged  = -2
	InfoOutputBuffersChanged = -3
)

// Flags of BufferInfo and QueueInputBuffer.
const (
	BufferFlagSyncFrame   = 1
	BufferFlagCodecConfig = 2
	BufferFlagEndOfStream = 4
)

// BufferInfo describes a dequeued output buffer.
type BufferInfo struct {
	Offset             int
	Size               int
	PresentationTimeUs int64
	Flags              int
}

// MediaFormat is the configuration handed to, and reported by, a hardware
// codec.
type MediaFormat struct {
	Mime   string
	Width  int
	Height int

	// Encoder parameters.
	BitRate        int
	FrameRate      int
	IFrameInterval int

	ColorFormat ColorFormat
}

func (f MediaFormat) String() string {
	return fmt.Sprintf("{mime=%s %dx%d bitrate=%d fps=%d iframe=%ds color=%v}",
		f.Mime, f.Width, f.Height, f.BitRate, f.FrameRate, f.IFrameInterval, f.ColorFormat)
}

// Hardware is one platform codec instance. Buffer indices handed out by the
// dequeue calls stay owned by the caller until queued or released. Timeouts
// are in microseconds; zero means do not wait.
type Hardware interface {
	// Configure prepares the codec. surface is the decoder render target, nil
	// for byte output.
	Configure(format MediaFormat, surface media.Surface, encoder bool) error

	// CreateInputSurface returns the surface an encoder reads frames from.
	// Must be called between Configure and Start.
	CreateInputSurface() (media.Surface, error)

	Start() error

	InputBuffers() [][]byte
	OutputBuffers() [][]byte

	DequeueInputBuffer(timeoutUs int64) int
	QueueInputBuffer(index, offset, size int, presentationTimeUs int64, flags int) error

	DequeueOutputBuffer(info *BufferInfo, timeoutUs int64) int
	ReleaseOutputBuffer(index int, render bool) error

	// OutputFormat is valid after InfoOutputFormatChanged.
	OutputFormat() MediaFormat

	Stop() error
	Release() error
}

// Platform exposes the device's codec list.
type Platform interface {
	// Codecs enumerates every codec the platform offers, in preference
	// order.
	Codecs() []Info

	// CreateByName instantiates the named codec.
	CreateByName(name string) (Hardware, error)
}
