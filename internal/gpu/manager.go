package gpu

import (
	"fmt"

	"github.com/neutrinolabs/xrdp-gfxhelper/internal/encoder"
	"github.com/neutrinolabs/xrdp-gfxhelper/internal/ipc"
	"github.com/neutrinolabs/xrdp-gfxhelper/internal/logging"
)

// Manager ties the monitor table, the shared render pipeline, the GPU
// backend, and the encoder backend together and implements
// ipc.MonitorManager. It is the single point that owns cgo-backed state
// for the dispatch loop.
type Manager struct {
	backend     Backend
	encoderKind encoder.Backend
	pipeline    *pipeline
	table       *Table
	matrix      ColorMatrix
	log         *logging.Logger
}

// NewManager detects the GPU backend for displayName, compiles the shared
// shader pipeline, and pairs the result with a fixed encoder backend per
// the {EGL+DMABUF, GLX+TextureInput} tagging.
func NewManager(displayName string, vendorBDRMDevice string) (*Manager, error) {
	backend, err := DetectBackend(displayName)
	if err != nil {
		return nil, err
	}

	pl, err := newPipeline()
	if err != nil {
		return nil, err
	}

	var encBackend encoder.Backend
	switch backend.Kind() {
	case KindGLX:
		encBackend = encoder.NewVendorABackend()
	case KindEGL:
		encBackend, err = encoder.NewVendorBBackend(backend.RawDisplay(), vendorBDRMDevice)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnsupportedPairing
	}

	return &Manager{
		backend:     backend,
		encoderKind: encBackend,
		pipeline:    pl,
		table:       NewTable(),
		matrix:      MatrixBT601Studio,
		log:         logging.Default().WithComponent("gpu"),
	}, nil
}

// CreateMonitor implements ipc.MonitorManager. layout is fixed to
// LayoutYUV420, the spec's primary output layout; a future capability
// negotiation could select YUV422/YUV444 per monitor.
func (m *Manager) CreateMonitor(monID uint32, width, height uint16, magic, conID uint32) error {
	mon, err := m.table.Create(monID, width, height, magic, conID, LayoutYUV420, m.matrix)
	if err != nil {
		return err
	}

	image, err := m.backend.CreateImage(conID)
	if err != nil {
		m.table.slots[m.table.slot(monID)] = nil
		return fmt.Errorf("gpu: import pixmap for monitor %d: %w", monID, err)
	}
	mon.image = image

	if err := m.backend.WriteMonitorTag(conID, magic, conID, monID); err != nil {
		m.backend.DestroyImage(image)
		m.table.slots[m.table.slot(monID)] = nil
		return fmt.Errorf("gpu: tag pixmap for monitor %d: %w", monID, err)
	}

	mon.encTex, mon.fbo = createEncodeTexture(mon.Layout, width, height)

	if egl, ok := m.backend.(*eglBackend); ok {
		encImage, err := egl.CreateImageFromTexture(uint32(mon.encTex))
		if err != nil {
			m.backend.DestroyImage(image)
			destroyEncodeTexture(mon.encTex, mon.fbo)
			m.table.slots[m.table.slot(monID)] = nil
			return fmt.Errorf("gpu: export encode texture for monitor %d: %w", monID, err)
		}
		mon.encImage = encImage
	}

	session, err := m.encoderKind.NewSession(int(width), int(height))
	if err != nil {
		m.backend.DestroyImage(image)
		if mon.encImage != 0 {
			if egl, ok := m.backend.(*eglBackend); ok {
				egl.DestroyImage(mon.encImage)
			}
		}
		destroyEncodeTexture(mon.encTex, mon.fbo)
		m.table.slots[m.table.slot(monID)] = nil
		return fmt.Errorf("gpu: encoder session for monitor %d: %w", monID, err)
	}
	mon.session = session

	return nil
}

// DeleteAllMonitors implements ipc.MonitorManager, releasing every GPU
// and encoder resource before clearing the table.
func (m *Manager) DeleteAllMonitors() {
	m.table.DeleteAll(func(mon *Monitor) {
		if mon.session != nil {
			if err := mon.session.Close(); err != nil {
				m.log.Warn("close encoder session for monitor %d: %v", mon.ID, err)
			}
		}
		if err := m.backend.DestroyImage(mon.image); err != nil {
			m.log.Warn("destroy image for monitor %d: %v", mon.ID, err)
		}
		if mon.encImage != 0 {
			if egl, ok := m.backend.(*eglBackend); ok {
				if err := egl.DestroyImage(mon.encImage); err != nil {
					m.log.Warn("destroy encode image for monitor %d: %v", mon.ID, err)
				}
			}
		}
		destroyEncodeTexture(mon.encTex, mon.fbo)
	})
}

// Encode implements ipc.MonitorManager. The upstream dirty-region record
// carries no monitor id, so per the original helper's own hardcoded
// behavior this always targets monitor 0 (see DESIGN.md).
func (m *Manager) Encode(width, height uint16, crects []ipc.Rect, dst []byte) (int, error) {
	mon, err := m.table.Get(0)
	if err != nil {
		return 0, err
	}
	if width != mon.Width || height != mon.Height {
		return 0, fmt.Errorf("%w: dirty region %dx%d vs monitor %dx%d", ErrRectOutOfBounds, width, height, mon.Width, mon.Height)
	}
	for _, r := range crects {
		if int(r.X)+int(r.W) > int(mon.Width) || int(r.Y)+int(r.H) > int(mon.Height) {
			return 0, fmt.Errorf("%w: rect (%d,%d,%d,%d)", ErrRectOutOfBounds, r.X, r.Y, r.W, r.H)
		}
	}

	if err := mon.render(m.pipeline, m.backend, crects); err != nil {
		return 0, err
	}

	source := uintptr(mon.encTex)
	if mon.encImage != 0 {
		source = uintptr(mon.encImage)
	}

	forceKey := mon.consumeKeyFrame()
	n, err := mon.session.Encode(source, dst, forceKey)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// WaitFD implements ipc.ExtraWaiter when the active GPU backend exposes a
// pollable descriptor.
func (m *Manager) WaitFD() (int, bool) {
	return m.backend.WaitFD()
}
