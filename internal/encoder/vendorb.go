package encoder

/*
#cgo linux LDFLAGS: -lEGL

#include <stdlib.h>
#include <EGL/egl.h>
#include <EGL/eglext.h>

// xh_export_dmabuf exports img as a single-plane DMA-BUF, per
// eglExportDMABUFImageQueryMESA/eglExportDMABUFImageMESA. Returns 0 on
// success; the caller must close *out_fd on every exit path.
static int xh_export_dmabuf(EGLDisplay dpy, EGLImageKHR img,
                             int *out_fd, int *out_stride, int *out_offset, int *num_planes) {
    EGLint fourcc = 0;
    if (!eglExportDMABUFImageQueryMESA(dpy, img, &fourcc, num_planes, NULL)) {
        return -1;
    }
    if (*num_planes != 1) {
        return -2;
    }
    EGLint fd = -1;
    EGLint stride = 0;
    EGLint offset = 0;
    if (!eglExportDMABUFImageMESA(dpy, img, &fd, &stride, &offset)) {
        return -3;
    }
    *out_fd = fd;
    *out_stride = stride;
    *out_offset = offset;
    return 0;
}
*/
import "C"

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

// vendorBLibraryPaths are tried in order, matching the original helper's
// fallback from an absolute install path to the bare soname.
var vendorBLibraryPaths = []string{
	"/opt/yami/lib/libyami_inf.so",
	"libyami_inf.so",
}

const vendorBRequiredMajor = 1

type vendorBFuncs struct {
	getFuncs   func(major, minor uint32) int32
	initDRM    func(fd int32) int32
	newEncoder func(width, height int32) uintptr
	encode     func(enc uintptr, fd int32, stride, offset, width, height int32, keyFrame int32, dst *byte, dstCap int32) int32
	closeFn    func(enc uintptr)
}

// vendorBBackend is the DMA-BUF-input H.264 encoder, paired with the EGL
// GPU backend per the fixed tagging.
type vendorBBackend struct {
	lib      uintptr
	funcs    vendorBFuncs
	drmFD    int
	eglDpy   C.EGLDisplay
	drmDevice string
}

// NewVendorBBackend loads the vendor library (the XRDP_VENDOR_B_LIB
// environment variable, when set, is tried before vendorBLibraryPaths),
// opens the DRM render node (overridable by the VA_DRM_DEVICE environment
// variable, default /dev/dri/renderD128), and initializes the runtime in
// DRM mode.
func NewVendorBBackend(eglDisplay uintptr, drmDevice string) (Backend, error) {
	if drmDevice == "" {
		drmDevice = "/dev/dri/renderD128"
		if v := os.Getenv("VA_DRM_DEVICE"); v != "" {
			drmDevice = v
		}
	}

	var lib uintptr
	var err error
	paths := vendorBLibraryPaths
	if v := os.Getenv("XRDP_VENDOR_B_LIB"); v != "" {
		paths = append([]string{v}, vendorBLibraryPaths...)
	}
	for _, path := range paths {
		lib, err = purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			break
		}
	}
	if lib == 0 {
		return nil, fmt.Errorf("%w: load vendor-b library: %v", ErrInit, err)
	}

	b := &vendorBBackend{lib: lib, drmDevice: drmDevice, eglDpy: C.EGLDisplay(unsafe.Pointer(eglDisplay))}

	purego.RegisterLibFunc(&b.funcs.getFuncs, lib, "yami_get_funcs")
	purego.RegisterLibFunc(&b.funcs.initDRM, lib, "yami_init_drm")
	purego.RegisterLibFunc(&b.funcs.newEncoder, lib, "yami_new_encoder")
	purego.RegisterLibFunc(&b.funcs.encode, lib, "yami_encode")
	purego.RegisterLibFunc(&b.funcs.closeFn, lib, "yami_close_encoder")

	version := int32(vendorBRequiredMajor)<<16 | 0
	if rc := b.funcs.getFuncs(uint32(vendorBRequiredMajor), 0); rc != 0 {
		return nil, fmt.Errorf("%w: vendor-b yami_get_funcs rv=%d want version>=%d", ErrInit, rc, version)
	}

	fd, err := unix.Open(drmDevice, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrInit, drmDevice, err)
	}
	b.drmFD = fd

	if rc := b.funcs.initDRM(int32(fd)); rc != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: vendor-b DRM-mode init rv=%d", ErrInit, rc)
	}

	return b, nil
}

func (b *vendorBBackend) Kind() string { return "vendor-b" }

func (b *vendorBBackend) NewSession(width, height int) (Session, error) {
	h := b.funcs.newEncoder(int32(width), int32(height))
	if h == 0 {
		return nil, fmt.Errorf("%w: vendor-b create encoder", ErrInit)
	}
	return &vendorBSession{backend: b, handle: h, width: width, height: height}, nil
}

type vendorBSession struct {
	backend    *vendorBBackend
	handle     uintptr
	width      int
	height     int
	frameCount uint64
}

// Encode exports the encode texture's backing EGL image (sourceImage,
// passed as a GPU-package ImageHandle reinterpreted here) as a DMA-BUF,
// submits it as a YUY2 source of stride*height bytes, requests a key
// frame on the first submitted frame or when the caller asks, then
// always closes the exported fd. The EGL image belongs to the monitor and
// is not destroyed here.
func (s *vendorBSession) Encode(sourceImage uintptr, dst []byte, forceKeyFrame bool) (int, error) {
	if len(dst) == 0 {
		return 0, ErrBufferTooSmall
	}

	img := C.EGLImageKHR(unsafe.Pointer(sourceImage))

	var fd, stride, offset, numPlanes C.int
	if rc := C.xh_export_dmabuf(s.backend.eglDpy, img, &fd, &stride, &offset, &numPlanes); rc != 0 {
		return 0, fmt.Errorf("%w: export dma-buf rc=%d", ErrEncodeFailed, int(rc))
	}
	defer unix.Close(int(fd))

	keyFrame := forceKeyFrame || s.frameCount == 0
	force := int32(0)
	if keyFrame {
		force = 1
	}

	n := s.backend.funcs.encode(s.handle, int32(fd), int32(stride), int32(offset),
		int32(s.width), int32(s.height), force, &dst[0], int32(len(dst)))
	if n < 0 {
		return 0, fmt.Errorf("%w: vendor-b encode rv=%d", ErrEncodeFailed, n)
	}
	if int(n) > len(dst) {
		return 0, ErrBufferTooSmall
	}

	s.frameCount++
	return int(n), nil
}

func (s *vendorBSession) FrameCount() uint64 {
	return s.frameCount
}

func (s *vendorBSession) Close() error {
	s.backend.funcs.closeFn(s.handle)
	return nil
}
