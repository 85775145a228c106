// Package ipc implements the bidirectional, length-framed relay between
// the display-server peer link and the RDP-server peer link, plus the
// selective interception of pixmap lifecycle and dirty-region messages
// described for H.dispatch.
package ipc

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Role identifies which side of the relay a PeerLink speaks for. The two
// sides use different framing disciplines.
type Role int

const (
	RoleDisplay Role = iota
	RoleRDP
)

func (r Role) String() string {
	if r == RoleDisplay {
		return "display"
	}
	return "rdp"
}

type parserPhase int

const (
	phaseAwaitingHeader parserPhase = iota
	phaseAwaitingBody
)

const (
	displayHeaderSize   = 8
	rdpHeaderSize       = 4
	defaultMaxFrameSize = 128 * 1024
)

// Frame is one length-framed message. Type and Num are only meaningful for
// frames read from or written to a display-side PeerLink.
type Frame struct {
	Type    uint16
	Num     uint16
	Payload []byte
}

// PeerLink tracks one half-open byte stream (display side or rdp side) and
// the incremental state of its framing parser so reads can resume across
// multiple non-blocking Read calls, per the resumable-parser-phase
// invariant.
type PeerLink struct {
	role          Role
	fd            int
	maxFrameBytes int

	phase   parserPhase
	header  []byte
	body    []byte
	bodyLen uint32

	pendingType uint16
	pendingNum  uint16
}

// NewPeerLink wraps an already-open, non-blocking file descriptor.
func NewPeerLink(role Role, fd int, maxFrameBytes int) *PeerLink {
	if maxFrameBytes <= 0 {
		maxFrameBytes = defaultMaxFrameSize
	}
	return &PeerLink{
		role:          role,
		fd:            fd,
		maxFrameBytes: maxFrameBytes,
		phase:         phaseAwaitingHeader,
	}
}

// FD returns the underlying descriptor, for use in a poll set.
func (p *PeerLink) FD() int { return p.fd }

// Role reports which side of the relay this link represents.
func (p *PeerLink) Role() Role { return p.role }

func (p *PeerLink) headerSize() int {
	if p.role == RoleDisplay {
		return displayHeaderSize
	}
	return rdpHeaderSize
}

// ReadFrames drains everything currently available on the descriptor
// (intended to be called once Poll has reported it readable) and returns
// every frame fully assembled as a result. A partial frame remains
// buffered in the PeerLink across calls.
func (p *PeerLink) ReadFrames() ([]*Frame, error) {
	var frames []*Frame
	buf := make([]byte, 65536)
	for {
		n, err := unix.Read(p.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				break
			}
			return frames, fmt.Errorf("ipc: read %s link: %w", p.role, err)
		}
		if n == 0 {
			return frames, fmt.Errorf("ipc: %s link: %w", p.role, ErrShortRead)
		}

		newFrames, err := p.feed(buf[:n])
		frames = append(frames, newFrames...)
		if err != nil {
			return frames, fmt.Errorf("ipc: %s link: %w", p.role, err)
		}
		if n < len(buf) {
			break
		}
	}
	return frames, nil
}

func (p *PeerLink) feed(data []byte) ([]*Frame, error) {
	var frames []*Frame
	for len(data) > 0 {
		switch p.phase {
		case phaseAwaitingHeader:
			need := p.headerSize() - len(p.header)
			if need > len(data) {
				p.header = append(p.header, data...)
				return frames, nil
			}
			p.header = append(p.header, data[:need]...)
			data = data[need:]
			if err := p.parseHeader(); err != nil {
				return frames, err
			}
			p.phase = phaseAwaitingBody
			p.body = make([]byte, 0, p.bodyLen)
			if p.bodyLen == 0 {
				frames = append(frames, p.finishFrame())
			}

		case phaseAwaitingBody:
			need := int(p.bodyLen) - len(p.body)
			if need > len(data) {
				p.body = append(p.body, data...)
				return frames, nil
			}
			p.body = append(p.body, data[:need]...)
			data = data[need:]
			frames = append(frames, p.finishFrame())
		}
	}
	return frames, nil
}

func (p *PeerLink) parseHeader() error {
	if p.role == RoleDisplay {
		p.pendingType = binary.LittleEndian.Uint16(p.header[0:2])
		p.pendingNum = binary.LittleEndian.Uint16(p.header[2:4])
		p.bodyLen = binary.LittleEndian.Uint32(p.header[4:8])
	} else {
		p.bodyLen = binary.LittleEndian.Uint32(p.header[0:4])
	}
	if int(p.bodyLen) > p.maxFrameBytes {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, p.bodyLen)
	}
	return nil
}

func (p *PeerLink) finishFrame() *Frame {
	f := &Frame{Type: p.pendingType, Num: p.pendingNum, Payload: p.body}
	p.header = p.header[:0]
	p.body = nil
	p.phase = phaseAwaitingHeader
	return f
}

// WriteFrame serializes f using this link's framing discipline and writes
// it in full, blocking across short writes if necessary.
func (p *PeerLink) WriteFrame(f *Frame) error {
	if len(f.Payload) > p.maxFrameBytes {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(f.Payload))
	}

	var header []byte
	if p.role == RoleDisplay {
		header = make([]byte, displayHeaderSize)
		binary.LittleEndian.PutUint16(header[0:2], f.Type)
		binary.LittleEndian.PutUint16(header[2:4], f.Num)
		binary.LittleEndian.PutUint32(header[4:8], uint32(len(f.Payload)))
	} else {
		header = make([]byte, rdpHeaderSize)
		binary.LittleEndian.PutUint32(header[0:4], uint32(len(f.Payload)))
	}

	if err := writeFull(p.fd, header); err != nil {
		return fmt.Errorf("ipc: write %s header: %w", p.role, err)
	}
	if err := writeFull(p.fd, f.Payload); err != nil {
		return fmt.Errorf("ipc: write %s payload: %w", p.role, err)
	}
	return nil
}

func writeFull(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				continue
			}
			return err
		}
		data = data[n:]
	}
	return nil
}
