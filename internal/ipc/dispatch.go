package ipc

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/neutrinolabs/xrdp-gfxhelper/internal/logging"
	"github.com/neutrinolabs/xrdp-gfxhelper/internal/shm"
)

// MonitorManager is the subset of H.gpu_backend the dispatch loop needs to
// service intercepted type-100 control records and type-3/sub-61 dirty
// regions. It is satisfied by *gpu.Manager; kept as an interface here so
// ipc has no import-time dependency on cgo.
type MonitorManager interface {
	CreateMonitor(monID uint32, width, height uint16, magic, conID uint32) error
	DeleteAllMonitors()
	// Encode renders and compresses the dirty region for monitor 0 (the
	// only monitor the upstream dirty-region record identifies; see
	// DESIGN.md) into dst, returning the number of bytes written.
	Encode(width, height uint16, crects []Rect, dst []byte) (int, error)
}

// encodeDstCap is the maximum compressed-bitstream size handed to
// MonitorManager.Encode, matching the original helper's 16 MiB scratch
// allowance (dst_cap=16 MiB in the spec).
const encodeDstCap = 16 * 1024 * 1024

// ExtraWaiter lets the GPU subsystem contribute a pollable descriptor to
// the dispatch loop (e.g. a DRI fence fd), per "one wait object from the
// GPU-subsystem descriptor if any". Optional: a MonitorManager that is not
// also an ExtraWaiter contributes nothing.
type ExtraWaiter interface {
	WaitFD() (fd int, ok bool)
}

// Dispatcher runs the single-threaded relay/interception loop described in
// H.dispatch: two PeerLinks, bounded-timeout poll, resumable framing,
// verbatim forwarding except for the intercepted sub-records.
type Dispatcher struct {
	display *PeerLink
	rdp     *PeerLink
	mon     MonitorManager
	log     *logging.Logger

	pollTimeoutMs int
	pixels        shm.Region
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(display, rdp *PeerLink, mon MonitorManager) *Dispatcher {
	return &Dispatcher{
		display:       display,
		rdp:           rdp,
		mon:           mon,
		log:           logging.Default().WithComponent("ipc"),
		pollTimeoutMs: 1000,
	}
}

// Run services both peer links until a fatal framing error occurs on
// either one, or stop reports true. A nil stop runs until error.
func (d *Dispatcher) Run(stop func() bool) error {
	for {
		if stop != nil && stop() {
			return nil
		}

		fds := []unix.PollFd{
			{Fd: int32(d.display.FD()), Events: unix.POLLIN},
			{Fd: int32(d.rdp.FD()), Events: unix.POLLIN},
		}
		if w, ok := d.mon.(ExtraWaiter); ok {
			if fd, present := w.WaitFD(); present {
				fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
			}
		}

		n, err := unix.Poll(fds, d.pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("ipc: poll: %w", err)
		}
		if n == 0 {
			continue
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			if err := d.serviceDisplay(); err != nil {
				return err
			}
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			if err := d.serviceRDP(); err != nil {
				return err
			}
		}
	}
}

func (d *Dispatcher) serviceDisplay() error {
	frames, err := d.display.ReadFrames()
	for _, f := range frames {
		if ferr := d.handleDisplayFrame(f); ferr != nil {
			d.log.Warn("dropping malformed display frame type=%d: %v", f.Type, ferr)
			continue
		}
	}
	return err
}

func (d *Dispatcher) serviceRDP() error {
	frames, err := d.rdp.ReadFrames()
	for _, f := range frames {
		// Traffic from the rdp side (FRAMEACKNOWLEDGE, GFX PDUs bound
		// for the display server) is always forwarded verbatim; only
		// display->rdp traffic is intercepted.
		if werr := d.display.WriteFrame(f); werr != nil {
			return fmt.Errorf("ipc: forward rdp->display: %w", werr)
		}
	}
	return err
}

// handleDisplayFrame applies the interception policy: types other than 3
// and 100 are forwarded verbatim; type 100 is consumed; type 3 has its
// sub-61 dirty regions encoded in place and is then forwarded.
func (d *Dispatcher) handleDisplayFrame(f *Frame) error {
	switch f.Type {
	case 3:
		if err := d.handleBitmapUpdate(f); err != nil {
			return err
		}
		return d.rdp.WriteFrame(f)

	case 100:
		return d.handleControl(f)

	default:
		return d.rdp.WriteFrame(f)
	}
}

func (d *Dispatcher) handleBitmapUpdate(f *Frame) error {
	records, err := ParseSubRecords(f.Payload)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.Type != 61 {
			continue
		}
		dr, err := ParseDirtyRegion(rec.Body)
		if err != nil {
			return err
		}
		if dr.Flags != 0 {
			// Non-screen target; nothing to encode here.
			continue
		}

		seg, err := d.pixels.Attach(int(dr.ShmemID))
		if err != nil {
			d.log.Warn("shmem attach %d failed: %v", dr.ShmemID, err)
			continue
		}
		if int(dr.ShmemOffset)+4 > len(seg) {
			d.log.Warn("shmem offset %d out of range for segment %d", dr.ShmemOffset, dr.ShmemID)
			continue
		}
		lenField := seg[dr.ShmemOffset : dr.ShmemOffset+4]
		dst := seg[dr.ShmemOffset+4:]
		if len(dst) > encodeDstCap {
			dst = dst[:encodeDstCap]
		}

		n, err := d.mon.Encode(dr.Width, dr.Height, dr.CopiedRects, dst)
		if err != nil {
			d.log.Warn("encode failed for shmem %d: %v", dr.ShmemID, err)
			continue
		}
		binary.LittleEndian.PutUint32(lenField, uint32(n))
	}
	return nil
}

func (d *Dispatcher) handleControl(f *Frame) error {
	records, err := ParseSubRecords(f.Payload)
	if err != nil {
		return err
	}
	for _, rec := range records {
		switch rec.Type {
		case 1:
			d.mon.DeleteAllMonitors()
		case 2:
			cm, err := ParseCreateMonitor(rec.Body)
			if err != nil {
				return err
			}
			if err := d.mon.CreateMonitor(cm.MonID, cm.Width, cm.Height, cm.Magic, cm.ConID); err != nil {
				d.log.Warn("create monitor %d failed: %v", cm.MonID, err)
			}
		}
	}
	return nil
}
