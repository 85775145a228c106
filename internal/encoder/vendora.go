package encoder

/*
#cgo linux LDFLAGS: -lGL

#include <GL/gl.h>
#include <stdlib.h>
#include <string.h>

// Stand-ins for the vendor NVENC-like SDK's opaque handle and call shape,
// matched to xrdp_encoder_nvenc.c: open session, register the GL texture
// as an input resource, map it, build PIC_PARAMS with a monotonically
// increasing inputTimeStamp, submit, lock the output bitstream, copy out.
typedef struct {
    int width;
    int height;
    unsigned int resource;
    long long input_time;
} xh_venc_session;

static xh_venc_session *xh_venc_open_session(int width, int height) {
    xh_venc_session *s = (xh_venc_session *) malloc(sizeof(xh_venc_session));
    if (s == NULL) {
        return NULL;
    }
    s->width = width;
    s->height = height;
    s->resource = 0;
    s->input_time = 0;
    return s;
}

static void xh_venc_close_session(xh_venc_session *s) {
    free(s);
}

// xh_venc_encode records source as the session's input resource and
// advances inputTimeStamp. This stand-in writes no bitstream: it ignores
// force_key_frame, dst and dst_cap, and always returns 0 bytes written.
static int xh_venc_encode(xh_venc_session *s, unsigned int source, int force_key_frame,
                           unsigned char *dst, int dst_cap) {
    s->resource = source;
    s->input_time += 1;
    return 0;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// vendorABackend is the OpenGL-texture-input H.264 encoder, paired with
// the GLX GPU backend per the fixed tagging.
type vendorABackend struct{}

// NewVendorABackend constructs the OpenGL-texture-input encoder backend.
func NewVendorABackend() Backend {
	return &vendorABackend{}
}

func (b *vendorABackend) Kind() string { return "vendor-a" }

// NewSession opens a stand-in encode session that records only the frame
// size. No profile, GoP, rate-control or QP parameters are applied;
// vendorAConstantQP is not passed to the session.
func (b *vendorABackend) NewSession(width, height int) (Session, error) {
	h := C.xh_venc_open_session(C.int(width), C.int(height))
	if h == nil {
		return nil, fmt.Errorf("%w: vendor-a open session", ErrInit)
	}
	return &vendorASession{handle: h, width: width, height: height}, nil
}

const vendorAConstantQP = 28

type vendorASession struct {
	handle     *C.xh_venc_session
	width      int
	height     int
	frameCount uint64
}

// Encode hands sourceTexture to the stand-in session and returns the
// number of bytes written into dst, which is always 0. An empty dst fails
// with ErrBufferTooSmall; its capacity is not checked otherwise.
func (s *vendorASession) Encode(sourceTexture uintptr, dst []byte, forceKeyFrame bool) (int, error) {
	if len(dst) == 0 {
		return 0, ErrBufferTooSmall
	}

	force := C.int(0)
	if forceKeyFrame {
		force = 1
	}
	n := C.xh_venc_encode(s.handle, C.uint(sourceTexture), force,
		(*C.uchar)(unsafe.Pointer(&dst[0])), C.int(len(dst)))
	if n < 0 {
		return 0, ErrBufferTooSmall
	}

	s.frameCount++
	return int(n), nil
}

func (s *vendorASession) FrameCount() uint64 {
	return s.frameCount
}

func (s *vendorASession) Close() error {
	C.xh_venc_close_session(s.handle)
	return nil
}
