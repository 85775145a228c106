package gpu

import "errors"

var (
	// ErrMonitorExists is returned when a Monitor is created at a slot
	// that already holds one; re-creation without prior deletion is an
	// error per the data-model invariant.
	ErrMonitorExists = errors.New("gpu: monitor slot already occupied")

	// ErrNoMonitor is returned when an operation references a monitor
	// slot that has not been created.
	ErrNoMonitor = errors.New("gpu: no monitor at slot")

	// ErrBackendInit is returned when neither the EGL nor the GLX
	// backend could be initialized against the current X server.
	ErrBackendInit = errors.New("gpu: backend initialization failed")

	// ErrUnsupportedPairing is returned for any (GPU backend, encoder
	// backend) combination other than the two supported tagged
	// variants {EGL+DMABUF, GLX+TextureInput}.
	ErrUnsupportedPairing = errors.New("gpu: unsupported backend pairing")

	// ErrRectOutOfBounds is returned when a dirty rectangle passed to
	// the render pass falls outside the monitor's source dimensions.
	ErrRectOutOfBounds = errors.New("gpu: dirty rectangle out of bounds")
)
