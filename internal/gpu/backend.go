// Package gpu implements the GPU backend abstraction (H.gpu_backend), the
// per-monitor render/convert stage (H.gpu.render), and the monitor table
// that ties imported pixmaps to encode textures.
package gpu

// Kind tags the two supported GPU backend variants. Pairings other than
// {EGL, DMABUF} and {GLX, TextureInput} are rejected at init: the vendor
// that requires GLX uses the texture-input encoder path, the vendor that
// requires EGL uses the DMA-BUF export path, and cross-pairing is not
// supported.
type Kind int

const (
	KindEGL Kind = iota
	KindGLX
)

func (k Kind) String() string {
	if k == KindEGL {
		return "egl"
	}
	return "glx"
}

// ImageHandle is an opaque reference to a GPU-imported pixmap, valid only
// for the backend that created it.
type ImageHandle uintptr

// Backend is the capability set each GPU implementation provides: bind a
// shared pixmap as a GL texture for the duration of a render pass, then
// release it so the display server may write to it again.
type Backend interface {
	Kind() Kind

	// Init binds the GL API, opens the display, and creates a current
	// GL context. Called once before the event loop starts.
	Init(displayName string) error

	// CreateImage wraps an X11 pixmap id as a GPU image.
	CreateImage(pixmapXID uint32) (ImageHandle, error)

	// DestroyImage releases a GPU image created by CreateImage.
	DestroyImage(h ImageHandle) error

	// BindTexImage binds h as the current 2D texture's backing store.
	// Must be paired with ReleaseTexImage before the source pixmap may
	// be written to again by the display server.
	BindTexImage(h ImageHandle) error

	// ReleaseTexImage undoes BindTexImage.
	ReleaseTexImage(h ImageHandle) error

	// WriteMonitorTag stamps magic, conID, and monID into the pixel
	// (0,0)-(3,3) block of the X11 pixmap identified by pixmapXID, so the
	// display server side can recognize the imported pixmap it handed
	// off (control sub-record type 2, spec §4.1).
	WriteMonitorTag(pixmapXID uint32, magic, conID, monID uint32) error

	// WaitFD optionally exposes a pollable descriptor for the dispatch
	// loop (e.g. a DRI fence fd). Most backends have none.
	WaitFD() (fd int, ok bool)

	// RawDisplay exposes the backend's native display handle (an
	// EGLDisplay for the EGL backend, unused by GLX) so the encoder
	// package can perform DMA-BUF export against the same display the
	// render pass uses.
	RawDisplay() uintptr
}

// DetectBackend tries the EGL backend first and falls back to GLX if EGL's
// Init fails; each Init opens its own X11 connection to displayName. The
// cgo-backed Init calls in egl.go/glx.go check only that the API version
// and a context can be obtained; extension availability is not checked.
// ErrBackendInit is returned when neither Init succeeds.
func DetectBackend(displayName string) (Backend, error) {
	egl := newEGLBackend()
	if err := egl.Init(displayName); err == nil {
		return egl, nil
	}

	glx := newGLXBackend()
	if err := glx.Init(displayName); err == nil {
		return glx, nil
	}

	return nil, ErrBackendInit
}
