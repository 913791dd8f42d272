package capture

// SetAfterLoop installs a hook that runs when the capture loop returns,
// before Stop releases GL resources.
func SetAfterLoop(st *SurfaceStream, f func()) {
	st.afterLoop = f
}

// HeldCameras returns the number of cameras held by open sessions.
func HeldCameras() int {
	held.Lock()
	defer held.Unlock()
	return len(held.ids)
}
