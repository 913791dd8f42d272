package media

// A Surface is a GPU-side frame destination, e.g. a codec input surface or a
// preview window. Producers render into it instead of filling byte buffers.
type Surface interface {
	// Platform window handle the GL layer creates its window surface from.
	NativeWindow() uintptr

	Release() error
}
