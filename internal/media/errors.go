//////////////////////////////////////////////////////////////////////////////
//
// Media errors
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package media

import "github.com/pkg/errors"

// Pipeline error kinds. Call sites wrap these with context; test with
// errors.Is.
var (
	// Camera missing, or held by another session.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// No requested format is supported by the hardware.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// GL or codec setup rejected, or the codec reported an unexpected
	// output format.
	ErrConfiguration = errors.New("configuration error")

	// No usable codec, or the hardware refused to allocate one.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// A bounded wait for a frame, surface or provided resource expired.
	ErrPipelineStall = errors.New("pipeline stall")
)
