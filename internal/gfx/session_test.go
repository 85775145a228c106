package gfx

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChunkWriter records every fragment Session hands to the transport so
// tests can reassemble and assert on it.
type fakeChunkWriter struct {
	fragments [][]byte
	firstSeen bool
	firstTot  int
	failNext  bool
}

func (w *fakeChunkWriter) WriteFirst(total int, chunk []byte) error {
	if w.failNext {
		return assert.AnError
	}
	w.firstSeen = true
	w.firstTot = total
	w.fragments = append(w.fragments, append([]byte(nil), chunk...))
	return nil
}

func (w *fakeChunkWriter) Write(chunk []byte) error {
	if w.failNext {
		return assert.AnError
	}
	w.fragments = append(w.fragments, append([]byte(nil), chunk...))
	return nil
}

func (w *fakeChunkWriter) joined() []byte {
	var out []byte
	for _, f := range w.fragments {
		out = append(out, f...)
	}
	return out
}

func encodeCapsAdvertise(version, flags uint32) []byte {
	body := make([]byte, 0, 14)
	body = appendU16(body, 1) // count
	body = appendU32(body, version)
	body = appendU32(body, 4) // dataLen
	body = appendU32(body, flags)
	return encodeHeader(cmdCapsAdvertise, body)
}

func encodeFrameAcknowledge(queueDepth, frameID, totalFramesDecoded uint32) []byte {
	body := make([]byte, 0, 12)
	body = appendU32(body, queueDepth)
	body = appendU32(body, frameID)
	body = appendU32(body, totalFramesDecoded)
	return encodeHeader(cmdFrameAcknowledge, body)
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func wrapSingle(body []byte) []byte {
	return append([]byte{segmentDescriptorSingle, bulkHeaderRDP8}, body...)
}

func TestSession_CapsNegotiationAccepted(t *testing.T) {
	w := &fakeChunkWriter{}
	s := NewSession(1, w)

	err := s.Data(wrapSingle(encodeCapsAdvertise(CapVersion104, 0)))
	require.NoError(t, err)
	assert.True(t, s.CapsNegotiated())

	require.Len(t, w.fragments, 1)
	pdus, err := decodePDUs(w.fragments[0][2:])
	require.NoError(t, err)
	require.Len(t, pdus, 1)
	assert.Equal(t, cmdCapsConfirm, pdus[0].CmdID)
}

func TestSession_CapsNegotiationRejected(t *testing.T) {
	w := &fakeChunkWriter{}
	s := NewSession(1, w)

	err := s.Data(wrapSingle(encodeCapsAdvertise(0x000A0300, 0)))
	require.NoError(t, err)
	assert.False(t, s.CapsNegotiated())
	assert.Empty(t, w.fragments)
}

func TestSession_FrameAcknowledgeUpdatesCounters(t *testing.T) {
	w := &fakeChunkWriter{}
	s := NewSession(1, w)

	err := s.Data(wrapSingle(encodeFrameAcknowledge(2, 7, 5)))
	require.NoError(t, err)

	q, last, total := s.AckCounters()
	assert.Equal(t, uint32(2), q)
	assert.Equal(t, uint32(7), last)
	assert.Equal(t, uint32(5), total)
}

func TestSession_ReassemblyMatchesSingleShot(t *testing.T) {
	wSplit := &fakeChunkWriter{}
	sSplit := NewSession(1, wSplit)
	wire := wrapSingle(encodeCapsAdvertise(CapVersion104, 0))

	mid := len(wire) / 2
	require.NoError(t, sSplit.DataFirst(len(wire), wire[:mid]))
	require.NoError(t, sSplit.Data(wire[mid:]))
	assert.True(t, sSplit.CapsNegotiated())

	wSingle := &fakeChunkWriter{}
	sSingle := NewSession(1, wSingle)
	require.NoError(t, sSingle.Data(wire))
	assert.True(t, sSingle.CapsNegotiated())

	assert.Equal(t, wSingle.joined(), wSplit.joined())
}

func TestSession_FragmentsLargeOutboundPDU(t *testing.T) {
	w := &fakeChunkWriter{}
	s := NewSession(1, w)

	rects := make([]Rect, 186) // wire size (2+8+8+186*8=1506) spans two fragments
	err := s.SolidFill(1, 0xffffffff, rects)
	require.NoError(t, err)

	require.True(t, w.firstSeen)
	require.Len(t, w.fragments, 2)
	assert.Len(t, w.fragments[0], maxFragment)
	assert.LessOrEqual(t, len(w.fragments[1]), maxFragment)

	full := w.joined()
	assert.Equal(t, w.firstTot, len(full))
}

func TestSession_SmallOutboundPDUIsSingleFragment(t *testing.T) {
	w := &fakeChunkWriter{}
	s := NewSession(1, w)

	require.NoError(t, s.CreateSurface(1, 1920, 1080, 0))
	assert.False(t, w.firstSeen)
	require.Len(t, w.fragments, 1)
}

func TestSession_StartEndFramePairing(t *testing.T) {
	w := &fakeChunkWriter{}
	s := NewSession(1, w)

	id, err := s.StartFrame(100)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	_, err = s.StartFrame(101)
	assert.Error(t, err, "a second StartFrame must not open while one is pending")

	require.NoError(t, s.EndFrame(id))

	id2, err := s.StartFrame(102)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id2)
	require.NoError(t, s.EndFrame(id2))
}

func TestSession_EndFrameMismatchErrors(t *testing.T) {
	w := &fakeChunkWriter{}
	s := NewSession(1, w)

	_, err := s.StartFrame(1)
	require.NoError(t, err)

	err = s.EndFrame(99)
	assert.Error(t, err)
}

func TestSession_EndFrameWithoutStartErrors(t *testing.T) {
	w := &fakeChunkWriter{}
	s := NewSession(1, w)

	err := s.EndFrame(1)
	assert.Error(t, err)
}

func TestSession_ReassemblyOverflowErrors(t *testing.T) {
	w := &fakeChunkWriter{}
	s := NewSession(1, w)

	require.NoError(t, s.DataFirst(4, []byte{1, 2}))
	err := s.Data([]byte{3, 4, 5})
	assert.ErrorIs(t, err, ErrReassemblyOverflow)
}
