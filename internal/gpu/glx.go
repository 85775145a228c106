package gpu

/*
#cgo linux LDFLAGS: -lGL -lX11

#include <stdlib.h>
#include <GL/gl.h>
#include <GL/glx.h>
#include <X11/Xlib.h>

static Display *xh_glx_display = NULL;
static GLXContext xh_glx_context = NULL;
static GLXPixmap xh_glx_dummy_pixmap = 0;

static int xh_glx_init(const char *display_name) {
    xh_glx_display = XOpenDisplay(display_name);
    if (xh_glx_display == NULL) {
        return -1;
    }

    int major, minor;
    if (!glXQueryVersion(xh_glx_display, &major, &minor)) {
        return -2;
    }
    if (major < 1 || (major == 1 && minor < 1)) {
        return -3;
    }

    int screen = DefaultScreen(xh_glx_display);
    static int visual_attribs[] = {
        GLX_RGBA, GLX_DEPTH_SIZE, 24, GLX_DOUBLEBUFFER, None,
    };
    XVisualInfo *vi = glXChooseVisual(xh_glx_display, screen, visual_attribs);
    if (vi == NULL) {
        return -4;
    }

    xh_glx_context = glXCreateContext(xh_glx_display, vi, NULL, GL_TRUE);
    if (xh_glx_context == NULL) {
        XFree(vi);
        return -5;
    }

    Window root = RootWindow(xh_glx_display, screen);
    if (!glXMakeCurrent(xh_glx_display, root, xh_glx_context)) {
        XFree(vi);
        return -6;
    }

    XFree(vi);
    return 0;
}

static GLXPixmap xh_glx_create_pixmap(unsigned long pixmap_xid) {
    int screen = DefaultScreen(xh_glx_display);
    static int visual_attribs[] = { GLX_RGBA, None };
    XVisualInfo *vi = glXChooseVisual(xh_glx_display, screen, visual_attribs);
    if (vi == NULL) {
        return 0;
    }
    GLXPixmap glxpix = glXCreateGLXPixmap(xh_glx_display, vi, (Pixmap) pixmap_xid);
    XFree(vi);
    return glxpix;
}

static void xh_glx_destroy_pixmap(GLXPixmap p) {
    glXDestroyGLXPixmap(xh_glx_display, p);
}

static void xh_glx_bind_tex_image(GLXPixmap p) {
    glXBindTexImageEXT(xh_glx_display, p, GLX_FRONT_LEFT_EXT, NULL);
}

static void xh_glx_release_tex_image(GLXPixmap p) {
    glXReleaseTexImageEXT(xh_glx_display, p, GLX_FRONT_LEFT_EXT);
}

// xh_glx_write_tag stamps three pixel values into the top-left corner of
// pixmap_xid directly through Xlib, independent of the GLXPixmap wrapper
// glXCreateGLXPixmap produced for it.
static int xh_glx_write_tag(unsigned long pixmap_xid, unsigned int magic, unsigned int con_id, unsigned int mon_id) {
    if (xh_glx_display == NULL) {
        return -1;
    }
    Pixmap pixmap = (Pixmap) pixmap_xid;
    GC gc = XCreateGC(xh_glx_display, pixmap, 0, NULL);
    if (gc == NULL) {
        return -2;
    }
    unsigned long values[3] = { magic, con_id, mon_id };
    for (int i = 0; i < 3; i++) {
        XSetForeground(xh_glx_display, gc, values[i]);
        XDrawPoint(xh_glx_display, pixmap, gc, i, 0);
    }
    XFreeGC(xh_glx_display, gc);
    XFlush(xh_glx_display);
    return 0;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

type glxBackend struct {
	initialized bool
}

func newGLXBackend() *glxBackend {
	return &glxBackend{}
}

func (b *glxBackend) Kind() Kind { return KindGLX }

func (b *glxBackend) Init(displayName string) error {
	var cname *C.char
	if displayName != "" {
		cname = C.CString(displayName)
		defer C.free(unsafe.Pointer(cname))
	}
	if rc := C.xh_glx_init(cname); rc != 0 {
		return fmt.Errorf("%w: glx init rc=%d", ErrBackendInit, int(rc))
	}
	b.initialized = true
	return nil
}

func (b *glxBackend) CreateImage(pixmapXID uint32) (ImageHandle, error) {
	p := C.xh_glx_create_pixmap(C.ulong(pixmapXID))
	if p == 0 {
		return 0, fmt.Errorf("gpu: glXCreateGLXPixmap failed for pixmap %d", pixmapXID)
	}
	return ImageHandle(p), nil
}

func (b *glxBackend) DestroyImage(h ImageHandle) error {
	C.xh_glx_destroy_pixmap(C.GLXPixmap(h))
	return nil
}

func (b *glxBackend) BindTexImage(h ImageHandle) error {
	C.xh_glx_bind_tex_image(C.GLXPixmap(h))
	return nil
}

func (b *glxBackend) ReleaseTexImage(h ImageHandle) error {
	C.xh_glx_release_tex_image(C.GLXPixmap(h))
	return nil
}

func (b *glxBackend) WaitFD() (int, bool) {
	return 0, false
}

// RawDisplay returns 0: the GLX backend pairs with the texture-input
// encoder, which never performs DMA-BUF export against an EGL display.
func (b *glxBackend) RawDisplay() uintptr {
	return 0
}

func (b *glxBackend) WriteMonitorTag(pixmapXID uint32, magic, conID, monID uint32) error {
	if rc := C.xh_glx_write_tag(C.ulong(pixmapXID), C.uint(magic), C.uint(conID), C.uint(monID)); rc != 0 {
		return fmt.Errorf("gpu: tag pixmap %d: rc=%d", pixmapXID, int(rc))
	}
	return nil
}
