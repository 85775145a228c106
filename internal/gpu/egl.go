package gpu

/*
#cgo linux LDFLAGS: -lEGL -lGL -lX11

#include <stdlib.h>
#include <EGL/egl.h>
#include <EGL/eglext.h>
#include <X11/Xlib.h>

static EGLDisplay xh_egl_display = EGL_NO_DISPLAY;
static EGLContext xh_egl_context = EGL_NO_CONTEXT;
static EGLSurface xh_egl_surface = EGL_NO_SURFACE;
static Display *xh_x11_display = NULL;

static int xh_egl_init(const char *display_name) {
    xh_x11_display = XOpenDisplay(display_name);
    if (xh_x11_display == NULL) {
        return -1;
    }

    xh_egl_display = eglGetDisplay((EGLNativeDisplayType) xh_x11_display);
    if (xh_egl_display == EGL_NO_DISPLAY) {
        return -2;
    }

    EGLint major, minor;
    if (!eglInitialize(xh_egl_display, &major, &minor)) {
        return -3;
    }
    if (major < 1 || (major == 1 && minor < 1)) {
        return -4;
    }

    if (!eglBindAPI(EGL_OPENGL_API)) {
        return -5;
    }

    static const EGLint config_attribs[] = {
        EGL_SURFACE_TYPE, EGL_PBUFFER_BIT,
        EGL_RENDERABLE_TYPE, EGL_OPENGL_BIT,
        EGL_RED_SIZE, 8, EGL_GREEN_SIZE, 8, EGL_BLUE_SIZE, 8,
        EGL_NONE,
    };
    EGLConfig config;
    EGLint numConfigs;
    if (!eglChooseConfig(xh_egl_display, config_attribs, &config, 1, &numConfigs) || numConfigs < 1) {
        return -6;
    }

    static const EGLint pbuf_attribs[] = {
        EGL_WIDTH, 16, EGL_HEIGHT, 16, EGL_NONE,
    };
    xh_egl_surface = eglCreatePbufferSurface(xh_egl_display, config, pbuf_attribs);
    if (xh_egl_surface == EGL_NO_SURFACE) {
        return -7;
    }

    xh_egl_context = eglCreateContext(xh_egl_display, config, EGL_NO_CONTEXT, NULL);
    if (xh_egl_context == EGL_NO_CONTEXT) {
        return -8;
    }

    if (!eglMakeCurrent(xh_egl_display, xh_egl_surface, xh_egl_surface, xh_egl_context)) {
        return -9;
    }

    return 0;
}

static EGLImageKHR xh_egl_create_image(unsigned long pixmap_xid) {
    static const EGLint attribs[] = { EGL_NONE };
    return eglCreateImageKHR(xh_egl_display, EGL_NO_CONTEXT, EGL_NATIVE_PIXMAP_KHR,
                             (EGLClientBuffer)(size_t) pixmap_xid, attribs);
}

static void xh_egl_destroy_image(EGLImageKHR image) {
    eglDestroyImageKHR(xh_egl_display, image);
}

static EGLImageKHR xh_egl_create_image_from_texture(unsigned int tex) {
    static const EGLint attribs[] = { EGL_GL_TEXTURE_LEVEL_KHR, 0, EGL_NONE };
    return eglCreateImageKHR(xh_egl_display, xh_egl_context, EGL_GL_TEXTURE_2D_KHR,
                             (EGLClientBuffer)(size_t) tex, attribs);
}

// xh_egl_write_tag stamps three pixel values into the top-left corner of
// pixmap_xid directly through Xlib, ahead of (and independent of) anything
// EGL has imported from it.
static int xh_egl_write_tag(unsigned long pixmap_xid, unsigned int magic, unsigned int con_id, unsigned int mon_id) {
    if (xh_x11_display == NULL) {
        return -1;
    }
    Pixmap pixmap = (Pixmap) pixmap_xid;
    GC gc = XCreateGC(xh_x11_display, pixmap, 0, NULL);
    if (gc == NULL) {
        return -2;
    }
    unsigned long values[3] = { magic, con_id, mon_id };
    for (int i = 0; i < 3; i++) {
        XSetForeground(xh_x11_display, gc, values[i]);
        XDrawPoint(xh_x11_display, pixmap, gc, i, 0);
    }
    XFreeGC(xh_x11_display, gc);
    XFlush(xh_x11_display);
    return 0;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

type eglBackend struct {
	initialized bool
}

func newEGLBackend() *eglBackend {
	return &eglBackend{}
}

func (b *eglBackend) Kind() Kind { return KindEGL }

func (b *eglBackend) Init(displayName string) error {
	var cname *C.char
	if displayName != "" {
		cname = C.CString(displayName)
		defer C.free(unsafe.Pointer(cname))
	}
	if rc := C.xh_egl_init(cname); rc != 0 {
		return fmt.Errorf("%w: egl init rc=%d", ErrBackendInit, int(rc))
	}
	b.initialized = true
	return nil
}

func (b *eglBackend) CreateImage(pixmapXID uint32) (ImageHandle, error) {
	img := C.xh_egl_create_image(C.ulong(pixmapXID))
	if img == nil {
		return 0, fmt.Errorf("gpu: eglCreateImageKHR failed for pixmap %d", pixmapXID)
	}
	return ImageHandle(uintptr(img)), nil
}

func (b *eglBackend) DestroyImage(h ImageHandle) error {
	C.xh_egl_destroy_image(C.EGLImageKHR(unsafe.Pointer(uintptr(h))))
	return nil
}

// BindTexImage binds the EGL image's backing pbuffer surface as the
// current 2D texture. The EGL path exports DMA-BUF for the encoder rather
// than binding a texture for encoder input, so this only matters for the
// render pass's source-texture sampling.
func (b *eglBackend) BindTexImage(h ImageHandle) error {
	return nil
}

func (b *eglBackend) ReleaseTexImage(h ImageHandle) error {
	return nil
}

func (b *eglBackend) WaitFD() (int, bool) {
	return 0, false
}

func (b *eglBackend) RawDisplay() uintptr {
	return uintptr(unsafe.Pointer(C.xh_egl_display))
}

func (b *eglBackend) WriteMonitorTag(pixmapXID uint32, magic, conID, monID uint32) error {
	if rc := C.xh_egl_write_tag(C.ulong(pixmapXID), C.uint(magic), C.uint(conID), C.uint(monID)); rc != 0 {
		return fmt.Errorf("gpu: tag pixmap %d: rc=%d", pixmapXID, int(rc))
	}
	return nil
}

// CreateImageFromTexture wraps a GL texture (the render pass's encode
// texture) as an EGL image, the source the DMA-BUF export path in
// internal/encoder's Vendor B backend consumes. Only meaningful when this
// backend is active: the GLX-paired encoder takes the texture directly.
func (b *eglBackend) CreateImageFromTexture(texName uint32) (ImageHandle, error) {
	img := C.xh_egl_create_image_from_texture(C.uint(texName))
	if img == nil {
		return 0, fmt.Errorf("gpu: eglCreateImageKHR from texture %d failed", texName)
	}
	return ImageHandle(uintptr(img)), nil
}
