// Package encoder implements the two H.264 hardware encoder backends
// (H.encoder_backend): Vendor A takes an OpenGL texture as input, Vendor B
// takes a DMA-BUF export of the render pass's encode texture. Selection is
// fixed by the GPU backend pairing (see internal/gpu): GLX pairs with
// Vendor A's texture-input path, EGL pairs with Vendor B's DMA-BUF path.
package encoder

import "errors"

var (
	// ErrBufferTooSmall is returned when the caller-provided output
	// buffer cannot hold the encoded bitstream; encoder state is left
	// unchanged so the caller may retry with a larger buffer.
	ErrBufferTooSmall = errors.New("encoder: output buffer too small")

	// ErrEncodeFailed wraps a vendor-specific failure from any step of
	// the per-frame submit/lock/copy sequence.
	ErrEncodeFailed = errors.New("encoder: frame encode failed")

	// ErrInit wraps a vendor-specific failure during backend
	// initialization (library load, device open, runtime init).
	ErrInit = errors.New("encoder: backend initialization failed")
)

// Backend is the capability set the render pass drives: create one H.264
// encode session per monitor, then submit one texture per frame and
// receive back a compressed bitstream.
type Backend interface {
	// Kind names the backend ("vendor-a", "vendor-b") for logging.
	Kind() string

	// NewSession creates a per-monitor encode session at width x height.
	NewSession(width, height int) (Session, error)
}

// Session is one monitor's encoder context: vendor-opaque handle, target
// dimensions, and a monotonically increasing frame counter.
type Session interface {
	// Encode submits the source (a GL texture name for Vendor A, a GPU
	// image handle to export as DMA-BUF for Vendor B) for the current
	// frame, writes the compressed bitstream into dst, and returns the
	// number of bytes written. forceKeyFrame requests an IDR frame.
	Encode(source uintptr, dst []byte, forceKeyFrame bool) (int, error)

	// FrameCount returns the number of frames submitted so far.
	FrameCount() uint64

	// Close releases the encoder context and any input resources it
	// registered.
	Close() error
}
