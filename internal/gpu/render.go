package gpu

/*
#cgo linux LDFLAGS: -lGL

#include <stdlib.h>
#include <GL/gl.h>

static GLuint xh_compile_shader(GLenum kind, const char *src, char *log, int logcap) {
    GLuint sh = glCreateShader(kind);
    glShaderSource(sh, 1, (const char **) &src, NULL);
    glCompileShader(sh);
    GLint ok = 0;
    glGetShaderiv(sh, GL_COMPILE_STATUS, &ok);
    if (!ok) {
        GLsizei n = 0;
        glGetShaderInfoLog(sh, logcap, &n, log);
        glDeleteShader(sh);
        return 0;
    }
    return sh;
}

static GLuint xh_link_program(GLuint vs, GLuint fs, char *log, int logcap) {
    GLuint prog = glCreateProgram();
    glAttachShader(prog, vs);
    glAttachShader(prog, fs);
    glBindAttribLocation(prog, 0, "position");
    glLinkProgram(prog);
    GLint ok = 0;
    glGetProgramiv(prog, GL_LINK_STATUS, &ok);
    if (!ok) {
        GLsizei n = 0;
        glGetProgramInfoLog(prog, logcap, &n, log);
        glDeleteProgram(prog);
        return 0;
    }
    return prog;
}

static GLuint xh_gen_texture(GLsizei w, GLsizei h, GLenum internalFmt, GLenum format, GLenum kind) {
    GLuint tex;
    glGenTextures(1, &tex);
    glBindTexture(GL_TEXTURE_2D, tex);
    glTexParameteri(GL_TEXTURE_2D, GL_TEXTURE_MIN_FILTER, GL_NEAREST);
    glTexParameteri(GL_TEXTURE_2D, GL_TEXTURE_MAG_FILTER, GL_NEAREST);
    glTexParameteri(GL_TEXTURE_2D, GL_TEXTURE_WRAP_S, GL_CLAMP_TO_EDGE);
    glTexParameteri(GL_TEXTURE_2D, GL_TEXTURE_WRAP_T, GL_CLAMP_TO_EDGE);
    glTexImage2D(GL_TEXTURE_2D, 0, internalFmt, w, h, 0, format, kind, NULL);
    return tex;
}

static GLuint xh_gen_fbo(GLuint tex) {
    GLuint fbo;
    glGenFramebuffers(1, &fbo);
    glBindFramebuffer(GL_FRAMEBUFFER, fbo);
    glFramebufferTexture2D(GL_FRAMEBUFFER, GL_COLOR_ATTACHMENT0, GL_TEXTURE_2D, tex, 0);
    return fbo;
}

static void xh_destroy_texture_fbo(GLuint tex, GLuint fbo) {
    glDeleteFramebuffers(1, &fbo);
    glDeleteTextures(1, &tex);
}

// xh_draw assumes the source image is already bound as the current
// GL_TEXTURE_2D on unit 0 by the backend's bind_tex_image call; it does
// not rebind it, since the backend owns that binding's lifetime.
static void xh_draw(GLuint prog, GLuint fbo, int vx, int vy, int vw, int vh,
                     const float *verts, int nverts, float tw, float th,
                     const float *ymath, const float *umath, const float *vmath, int hasMatrix) {
    glBindFramebuffer(GL_FRAMEBUFFER, fbo);
    glViewport(vx, vy, vw, vh);
    glUseProgram(prog);

    glActiveTexture(GL_TEXTURE0);
    glUniform1i(glGetUniformLocation(prog, "tex"), 0);
    glUniform2f(glGetUniformLocation(prog, "tex_size"), tw, th);
    if (hasMatrix) {
        glUniform4fv(glGetUniformLocation(prog, "ymath"), 1, ymath);
        glUniform4fv(glGetUniformLocation(prog, "umath"), 1, umath);
        glUniform4fv(glGetUniformLocation(prog, "vmath"), 1, vmath);
    }

    glEnableVertexAttribArray(0);
    glVertexAttribPointer(0, 2, GL_FLOAT, GL_FALSE, 0, verts);
    glDrawArrays(GL_TRIANGLES, 0, nverts);
    glDisableVertexAttribArray(0);

    glBindFramebuffer(GL_FRAMEBUFFER, 0);
    glFlush();
    glFinish();
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/neutrinolabs/xrdp-gfxhelper/internal/ipc"
)

type program struct {
	handle C.GLuint
}

func compileProgram(vsSrc, fsSrc string) (*program, error) {
	cvs := C.CString(vsSrc)
	cfs := C.CString(fsSrc)
	defer C.free(unsafe.Pointer(cvs))
	defer C.free(unsafe.Pointer(cfs))

	logBuf := make([]byte, 1024)
	clog := (*C.char)(unsafe.Pointer(&logBuf[0]))

	vs := C.xh_compile_shader(C.GL_VERTEX_SHADER, cvs, clog, C.int(len(logBuf)))
	if vs == 0 {
		return nil, fmt.Errorf("gpu: vertex shader compile failed: %s", C.GoString(clog))
	}
	fs := C.xh_compile_shader(C.GL_FRAGMENT_SHADER, cfs, clog, C.int(len(logBuf)))
	if fs == 0 {
		return nil, fmt.Errorf("gpu: fragment shader compile failed: %s", C.GoString(clog))
	}
	prog := C.xh_link_program(vs, fs, clog, C.int(len(logBuf)))
	if prog == 0 {
		return nil, fmt.Errorf("gpu: program link failed: %s", C.GoString(clog))
	}
	return &program{handle: prog}, nil
}

// pipeline holds the shader programs compiled once at startup and shared
// by every Monitor.
type pipeline struct {
	copy   *program
	yuv420 *program
	yuv422 *program
	yuv444 *program
}

func newPipeline() (*pipeline, error) {
	p := &pipeline{}
	var err error
	if p.copy, err = compileProgram(vertexShaderSrc, copyShaderSrc); err != nil {
		return nil, err
	}
	if p.yuv420, err = compileProgram(vertexShaderSrc, yuv420ShaderSrc); err != nil {
		return nil, err
	}
	if p.yuv422, err = compileProgram(vertexShaderSrc, yuv422ShaderSrc); err != nil {
		return nil, err
	}
	if p.yuv444, err = compileProgram(vertexShaderSrc, yuv444ShaderSrc); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pipeline) programFor(l Layout) *program {
	switch l {
	case LayoutYUV422:
		return p.yuv422
	case LayoutYUV444:
		return p.yuv444
	default:
		return p.yuv420
	}
}

// encodeTextureSize returns the encode texture's (width, height) for a
// Monitor's layout, per the packing rules in the data model.
func encodeTextureSize(l Layout, w, h uint16) (int, int) {
	switch l {
	case LayoutYUV422:
		return int(w) / 2, int(h)
	case LayoutYUV444:
		return int(w), int(h)
	default:
		return int(w), int(h) * 3 / 2
	}
}

// buildVertices returns the triangle-list vertex buffer for one encode
// pass, in normalized device coordinates, built from the dirty rectangles.
// With num_crects == 0 a single full-screen quad is emitted.
func buildVertices(l Layout, w, h uint16, crects []ipc.Rect) []float32 {
	if len(crects) == 0 {
		crects = []ipc.Rect{{X: 0, Y: 0, W: w, H: h}}
	}

	var verts []float32
	fw, fh := float32(w), float32(h)

	appendQuad := func(x0, y0, x1, y1 float32) {
		verts = append(verts,
			x0, y0, x1, y0, x0, y1,
			x1, y0, x1, y1, x0, y1,
		)
	}

	ndc := func(px, py float32) (float32, float32) {
		return px/fw*2 - 1, 1 - py/fh*2
	}

	for _, r := range crects {
		x0, y0 := ndc(float32(r.X), float32(r.Y))
		x1, y1 := ndc(float32(r.X+r.W), float32(r.Y+r.H))
		appendQuad(x0, y1, x1, y0)

		if l == LayoutYUV420 {
			// UV region: same x extent, y mapped into the lower third of
			// the tile-packed texture per the data model's mapping.
			uy0 := y0/3 + 4.0/3 - 1
			uy1 := y1/3 + 4.0/3 - 1
			appendQuad(x0, uy1, x1, uy0)
		}
	}
	return verts
}

// render executes the encode pass for one Monitor: bind source texture,
// attach encode texture to the FBO, select shader/viewport, draw the
// dirty-rect vertex buffer, then flush and fence.
func (m *Monitor) render(pl *pipeline, backend Backend, crects []ipc.Rect) error {
	if err := backend.BindTexImage(m.image); err != nil {
		return fmt.Errorf("gpu: bind source texture: %w", err)
	}
	defer backend.ReleaseTexImage(m.image)

	prog := pl.programFor(m.Layout)
	verts := buildVertices(m.Layout, m.Width, m.Height, crects)
	tw, th := encodeTextureSize(m.Layout, m.Width, m.Height)

	ymath := m.Matrix.Y
	umath := m.Matrix.U
	vmath := m.Matrix.V
	hasMatrix := C.int(1)
	if m.Layout == LayoutYUV420 && prog == pl.copy {
		hasMatrix = 0
	}

	C.xh_draw(
		prog.handle, C.GLuint(m.fbo),
		0, 0, C.int(tw), C.int(th),
		(*C.float)(unsafe.Pointer(&verts[0])), C.int(len(verts)/2),
		C.float(m.Width), C.float(m.Height),
		(*C.float)(unsafe.Pointer(&ymath[0])), (*C.float)(unsafe.Pointer(&umath[0])), (*C.float)(unsafe.Pointer(&vmath[0])),
		hasMatrix,
	)
	m.frameCount++
	return nil
}

func createEncodeTexture(l Layout, w, h uint16) (texHandle, fboHandle) {
	tw, th := encodeTextureSize(l, w, h)
	internalFmt, format := C.GLenum(C.GL_RGBA), C.GLenum(C.GL_RGBA)
	if l == LayoutYUV420 {
		internalFmt, format = C.GLenum(C.GL_LUMINANCE), C.GLenum(C.GL_LUMINANCE)
	}
	tex := C.xh_gen_texture(C.GLsizei(tw), C.GLsizei(th), internalFmt, format, C.GL_UNSIGNED_BYTE)
	fbo := C.xh_gen_fbo(tex)
	return texHandle(tex), fboHandle(fbo)
}

func destroyEncodeTexture(tex texHandle, fbo fboHandle) {
	C.xh_destroy_texture_fbo(C.GLuint(tex), C.GLuint(fbo))
}
