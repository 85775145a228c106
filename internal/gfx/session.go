package gfx

import (
	"fmt"

	"github.com/neutrinolabs/xrdp-gfxhelper/internal/logging"
)

// Wire-level constants fixed by MS-RDPEGFX transport framing (spec §4.5).
const (
	segmentDescriptorSingle uint8 = 0xE0
	bulkHeaderRDP8          uint8 = 0x04

	// maxFragment is the largest chunk size handed to the underlying
	// channel in one write; larger messages are split as
	// data_first(maxFragment) + data(<=maxFragment) + ...
	maxFragment = 1500
)

// ChunkWriter is the subset of the enclosing dynamic virtual channel
// transport that a Session needs to emit outbound PDUs. It is satisfied by
// whatever carries MS-RDPEGFX bytes to the client; this package has no
// opinion on what that is.
type ChunkWriter interface {
	// WriteFirst announces a multi-fragment message of total bytes and
	// writes its first fragment.
	WriteFirst(total int, chunk []byte) error
	// Write sends a single-fragment message, or a non-first fragment of
	// one already announced by WriteFirst.
	Write(chunk []byte) error
}

// Session is the GFX channel endpoint state machine described in spec §4.5:
// capability negotiation, outbound surface/frame commands, and frame
// acknowledge bookkeeping, on top of one dynamic virtual channel.
type Session struct {
	channelID uint32
	out       ChunkWriter
	log       *logging.Logger

	capsNegotiated bool

	frameID   uint32
	frameOpen bool

	queueDepth         uint32
	lastAckedFrameID   uint32
	totalFramesDecoded uint32

	// reassembly holds a pending inbound multi-fragment message announced
	// by a data_first callback; reassembleWant is the total length
	// data_first announced. reassembly is nil when no reassembly is in
	// progress.
	reassembly     []byte
	reassembleWant int
}

// NewSession creates a GfxSession bound to channelID, emitting outbound
// PDUs through out.
func NewSession(channelID uint32, out ChunkWriter) *Session {
	return &Session{
		channelID: channelID,
		out:       out,
		log:       logging.Default().WithComponent("gfx"),
	}
}

// ChannelID returns the dynamic virtual channel id this session is bound to.
func (s *Session) ChannelID() uint32 { return s.channelID }

// CapsNegotiated reports whether CAPSCONFIRM has been sent.
func (s *Session) CapsNegotiated() bool { return s.capsNegotiated }

// AckCounters returns the session's advisory frame-acknowledge bookkeeping:
// queueDepth, lastAckedFrameId, totalFramesDecoded (data model, §3).
func (s *Session) AckCounters() (queueDepth, lastAckedFrameID, totalFramesDecoded uint32) {
	return s.queueDepth, s.lastAckedFrameID, s.totalFramesDecoded
}

// emit wraps body (an already cmdId/flags/pduLength-framed PDU, see
// encodeHeader) in the fixed [0xE0][0x04] transport header and writes it,
// fragmenting at maxFragment bytes when necessary.
func (s *Session) emit(body []byte) error {
	wire := make([]byte, 0, 2+len(body))
	wire = append(wire, segmentDescriptorSingle, bulkHeaderRDP8)
	wire = append(wire, body...)

	if len(wire) <= maxFragment {
		return s.out.Write(wire)
	}
	if err := s.out.WriteFirst(len(wire), wire[:maxFragment]); err != nil {
		return err
	}
	for remaining := wire[maxFragment:]; len(remaining) > 0; {
		n := len(remaining)
		if n > maxFragment {
			n = maxFragment
		}
		if err := s.out.Write(remaining[:n]); err != nil {
			return err
		}
		remaining = remaining[n:]
	}
	return nil
}

// DataFirst handles the data_first callback: it announces a reassembled
// message of total bytes and delivers the first fragment.
func (s *Session) DataFirst(total int, chunk []byte) error {
	if total < 0 || total > maxReassemblyBytes {
		return fmt.Errorf("%w: data_first total %d", ErrReassemblyOverflow, total)
	}
	s.reassembly = make([]byte, 0, total)
	s.reassembleWant = total
	return s.Data(chunk)
}

// maxReassemblyBytes bounds a single reassembled GFX PDU; generous enough
// for any PDU this endpoint emits or accepts (segmented transport, §4.5).
const maxReassemblyBytes = 4 * 1024 * 1024

// Data handles the data callback. If a data_first announced a pending
// reassembly, chunk is appended to it; the reassembled buffer is decoded
// once it reaches the announced length (completion sentinel: no further
// capacity remains). Otherwise chunk is a single-shot PDU and is decoded
// directly.
func (s *Session) Data(chunk []byte) error {
	if s.reassembly == nil {
		return s.decodeAndDispatch(chunk)
	}

	if len(s.reassembly)+len(chunk) > s.reassembleWant {
		err := fmt.Errorf("%w: reassembled %d + %d > announced %d",
			ErrReassemblyOverflow, len(s.reassembly), len(chunk), s.reassembleWant)
		s.reassembly = nil
		s.reassembleWant = 0
		return err
	}

	s.reassembly = append(s.reassembly, chunk...)
	if len(s.reassembly) < s.reassembleWant {
		return nil
	}

	data := s.reassembly
	s.reassembly = nil
	s.reassembleWant = 0
	return s.decodeAndDispatch(data)
}

// decodeAndDispatch strips the fixed [0xE0][0x04] transport header and
// decodes/dispatches every RDPGFX PDU it contains.
func (s *Session) decodeAndDispatch(wire []byte) error {
	if len(wire) < 2 {
		return fmt.Errorf("%w: transport header", ErrShortPDU)
	}
	body := wire[2:]

	pdus, err := decodePDUs(body)
	if err != nil {
		s.log.Warn("dropping malformed gfx pdu: %v", err)
		return err
	}

	for _, p := range pdus {
		if err := s.dispatch(p); err != nil {
			s.log.Warn("gfx pdu handler error cmdId=0x%02x: %v", p.CmdID, err)
			return err
		}
	}
	return nil
}

// dispatch handles one decoded inbound PDU (§4.5 "Inbound commands
// handled"). A protocol error here drops the current PDU but never tears
// down the session.
func (s *Session) dispatch(p decodedPDU) error {
	switch p.CmdID {
	case cmdCapsAdvertise:
		return s.handleCapsAdvertise(p.Body)
	case cmdFrameAcknowledge:
		return s.handleFrameAcknowledge(p.Body)
	default:
		s.log.Debug("ignoring unhandled gfx cmd 0x%02x", p.CmdID)
		return nil
	}
}

func (s *Session) handleCapsAdvertise(body []byte) error {
	sets, err := decodeCapsAdvertise(body)
	if err != nil {
		return err
	}
	selected, err := selectCaps(sets)
	if err != nil {
		// Cap rejection: no confirm, no error (spec scenario 2).
		s.log.Info("no supported gfx capability advertised")
		return nil
	}
	return s.sendCapsConfirm(selected.Version)
}

func (s *Session) handleFrameAcknowledge(body []byte) error {
	ack, err := decodeFrameAcknowledge(body)
	if err != nil {
		return err
	}
	s.queueDepth = ack.QueueDepth
	s.lastAckedFrameID = ack.FrameID
	s.totalFramesDecoded = ack.TotalFramesDecoded
	return nil
}

func (s *Session) sendCapsConfirm(version uint32) error {
	if err := s.emit(EncodeCapsConfirm(version)); err != nil {
		return err
	}
	s.capsNegotiated = true
	return nil
}

// CreateSurface emits CREATESURFACE (0x09).
func (s *Session) CreateSurface(surfaceID, width, height uint16, pixelFormat uint8) error {
	return s.emit(EncodeCreateSurface(surfaceID, width, height, pixelFormat))
}

// MapSurfaceToOutput emits MAPSURFACETOOUTPUT (0x0F).
func (s *Session) MapSurfaceToOutput(surfaceID uint16, x, y uint32) error {
	return s.emit(EncodeMapSurfaceToOutput(surfaceID, x, y))
}

// SolidFill emits SOLIDFILL (0x04).
func (s *Session) SolidFill(surfaceID uint16, fillColor uint32, rects []Rect) error {
	return s.emit(EncodeSolidFill(surfaceID, fillColor, rects))
}

// SurfaceToSurface emits SURFACETOSURFACE (0x05).
func (s *Session) SurfaceToSurface(srcID, dstID uint16, srcRect Rect, points []Point) error {
	return s.emit(EncodeSurfaceToSurface(srcID, dstID, srcRect, points))
}

// StartFrame pre-increments the session's frame id and emits STARTFRAME
// (0x0B) with that id, enforcing the frame-pair invariant (§3, §4.5): a
// STARTFRAME for id N must be followed by exactly one ENDFRAME for N
// before another STARTFRAME. timestamp is caller-supplied (monotonic
// milliseconds is conventional, but this package does not interpret it).
// The returned frame id is the one used; callers pass it to EndFrame.
func (s *Session) StartFrame(timestamp uint32) (uint32, error) {
	if s.frameOpen {
		return 0, fmt.Errorf("gfx: startframe while frame %d still open", s.frameID)
	}
	s.frameID++
	if err := s.emit(EncodeStartFrame(timestamp, s.frameID)); err != nil {
		s.frameID--
		return 0, err
	}
	s.frameOpen = true
	return s.frameID, nil
}

// EndFrame emits ENDFRAME (0x0C) for frameID, which must match the id
// returned by the most recent unmatched StartFrame.
func (s *Session) EndFrame(frameID uint32) error {
	if !s.frameOpen {
		return fmt.Errorf("gfx: endframe %d with no frame open", frameID)
	}
	if frameID != s.frameID {
		return fmt.Errorf("gfx: endframe %d does not match open frame %d", frameID, s.frameID)
	}
	if err := s.emit(EncodeEndFrame(frameID)); err != nil {
		return err
	}
	s.frameOpen = false
	return nil
}
