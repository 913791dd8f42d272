package simhw

// System bundles the simulated parts of one device.
type System struct {
	Cameras  *Driver
	EGL      *EGL
	Renderer *Renderer
	Codecs   *Platform
}

// NewSystem returns a device with the default cameras and codecs. Its camera
// driver is named "sim".
func NewSystem() *System {
	egl := NewEGL()
	return &System{
		Cameras:  NewDriver("sim"),
		EGL:      egl,
		Renderer: NewRenderer(egl),
		Codecs:   NewPlatform(),
	}
}
