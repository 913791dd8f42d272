package capture

// DisplayRotation returns the clockwise rotation to apply to the preview so
// it appears upright on a display rotated by displayDegrees. Front cameras
// are mirrored, so their rotation runs the other way.
func DisplayRotation(info DeviceInfo, displayDegrees int) int {
	displayDegrees = ((displayDegrees % 360) + 360) % 360
	if info.Facing == FacingFront {
		return (360 - (info.Orientation+displayDegrees)%360) % 360
	}
	return (info.Orientation - displayDegrees + 360) % 360
}
