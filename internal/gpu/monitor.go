package gpu

import (
	"fmt"

	"github.com/neutrinolabs/xrdp-gfxhelper/internal/encoder"
)

// MaxMonitors is the size of the monitor table; slots are addressed by
// mon_id mod MaxMonitors.
const MaxMonitors = 16

// Layout selects the output texture packing a Monitor's render pass
// produces.
type Layout int

const (
	LayoutYUV420 Layout = iota
	LayoutYUV422
	LayoutYUV444
)

func (l Layout) String() string {
	switch l {
	case LayoutYUV420:
		return "yuv420"
	case LayoutYUV422:
		return "yuv422"
	case LayoutYUV444:
		return "yuv444"
	default:
		return "unknown"
	}
}

// Monitor holds the GPU-side state for one logical display: the imported
// pixmap, its source and encode textures, the FBO that renders between
// them, and the encoder context consuming the encode texture.
type Monitor struct {
	ID     uint32
	Width  uint16
	Height uint16
	Magic  uint32
	ConID  uint32

	Layout Layout
	Matrix ColorMatrix

	image    ImageHandle
	fbo      fboHandle
	encTex   texHandle
	encImage ImageHandle // set only when the active backend is EGL
	session  encoder.Session

	// PendingKeyFrames counts forced key-frame requests not yet honored
	// by the encoder; decremented, saturating at zero, each time one is
	// consumed. Redesigned from the original's process-global counter
	// into a per-monitor one (see DESIGN.md).
	PendingKeyFrames uint32

	frameCount uint64
}

// fboHandle and texHandle are thin wrappers around GL object names, kept
// as distinct types so render.go's signatures stay backend-agnostic; the
// underlying uint32 is a real GL name once created by createEncodeTexture.
type fboHandle uint32
type texHandle uint32

// Table is the fixed-size monitor slot array a Dispatcher's MonitorManager
// implementation owns. Index 0..MaxMonitors-1 mirrors the mon_id mod 16
// addressing the control channel uses.
type Table struct {
	slots [MaxMonitors]*Monitor
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) slot(monID uint32) int {
	return int(monID % MaxMonitors)
}

// Create installs a new Monitor at mon_id's slot. Returns ErrMonitorExists
// if the slot is already occupied; only DeleteAll frees occupied slots.
func (t *Table) Create(monID uint32, width, height uint16, magic, conID uint32, layout Layout, matrix ColorMatrix) (*Monitor, error) {
	idx := t.slot(monID)
	if t.slots[idx] != nil {
		return nil, fmt.Errorf("%w: slot %d (mon_id %d)", ErrMonitorExists, idx, monID)
	}
	m := &Monitor{
		ID:     monID,
		Width:  width,
		Height: height,
		Magic:  magic,
		ConID:  conID,
		Layout: layout,
		Matrix: matrix,
	}
	t.slots[idx] = m
	return m, nil
}

// Get returns the Monitor at mon_id's slot, or ErrNoMonitor if empty.
func (t *Table) Get(monID uint32) (*Monitor, error) {
	idx := t.slot(monID)
	m := t.slots[idx]
	if m == nil {
		return nil, fmt.Errorf("%w: slot %d (mon_id %d)", ErrNoMonitor, idx, monID)
	}
	return m, nil
}

// DeleteAll clears every slot, calling release on each occupied Monitor
// first so backend resources (GPU images, textures, encoder contexts) are
// never leaked.
func (t *Table) DeleteAll(release func(*Monitor)) {
	for i, m := range t.slots {
		if m == nil {
			continue
		}
		if release != nil {
			release(m)
		}
		t.slots[i] = nil
	}
}

// RequestKeyFrame increments the monitor's pending key-frame counter; the
// render pass consumes one per forced-I-frame encode.
func (m *Monitor) RequestKeyFrame() {
	m.PendingKeyFrames++
}

// consumeKeyFrame reports whether a key frame is owed and, if so,
// decrements the counter (saturating at zero) and returns true.
func (m *Monitor) consumeKeyFrame() bool {
	if m.frameCount == 0 {
		// First frame for this monitor is always a key frame.
		return true
	}
	if m.PendingKeyFrames == 0 {
		return false
	}
	m.PendingKeyFrames--
	return true
}
