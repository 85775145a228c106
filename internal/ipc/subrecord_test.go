package ipc

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSubRecord(subType uint16, body []byte) []byte {
	rec := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint16(rec[0:2], subType)
	binary.LittleEndian.PutUint16(rec[2:4], uint16(len(rec)))
	copy(rec[4:], body)
	return rec
}

func buildSubRecordList(recs ...[]byte) []byte {
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, uint16(len(recs)))
	for _, r := range recs {
		out = append(out, r...)
	}
	return out
}

func TestParseSubRecords(t *testing.T) {
	rec1 := buildSubRecord(1, nil)
	rec2 := buildSubRecord(2, []byte{1, 2, 3, 4})
	payload := buildSubRecordList(rec1, rec2)

	records, err := ParseSubRecords(payload)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint16(1), records[0].Type)
	require.Empty(t, records[0].Body)
	require.Equal(t, uint16(2), records[1].Type)
	require.Equal(t, []byte{1, 2, 3, 4}, records[1].Body)
}

func TestParseSubRecordsRejectsTruncated(t *testing.T) {
	_, err := ParseSubRecords([]byte{1, 0, 5, 0, 99})
	require.ErrorIs(t, err, ErrBadSubRecord)
}

func buildDirtyRegionBody(crects []Rect, flags uint32, shmemID, shmemOffset uint32, width, height uint16) []byte {
	body := make([]byte, 2) // num_drects = 0
	body = append(body, uint16le(uint16(len(crects)))...)
	for _, r := range crects {
		body = append(body, uint16le(r.X)...)
		body = append(body, uint16le(r.Y)...)
		body = append(body, uint16le(r.W)...)
		body = append(body, uint16le(r.H)...)
	}
	body = append(body, uint32le(flags)...)
	body = append(body, uint32le(0)...) // frame_id, ignored
	body = append(body, uint32le(shmemID)...)
	body = append(body, uint32le(shmemOffset)...)
	body = append(body, uint16le(width)...)
	body = append(body, uint16le(height)...)
	return body
}

func uint16le(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func uint32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestParseDirtyRegion(t *testing.T) {
	crects := []Rect{{X: 0, Y: 0, W: 16, H: 16}, {X: 16, Y: 0, W: 8, H: 8}}
	body := buildDirtyRegionBody(crects, 0, 77, 512, 1920, 1080)

	dr, err := ParseDirtyRegion(body)
	require.NoError(t, err)
	require.Equal(t, crects, dr.CopiedRects)
	require.Equal(t, uint32(0), dr.Flags)
	require.Equal(t, uint32(77), dr.ShmemID)
	require.Equal(t, uint32(512), dr.ShmemOffset)
	require.Equal(t, uint16(1920), dr.Width)
	require.Equal(t, uint16(1080), dr.Height)
}

func TestParseCreateMonitor(t *testing.T) {
	body := append(uint16le(1920), uint16le(1080)...)
	body = append(body, uint32le(0xdeadbeef)...)
	body = append(body, uint32le(3)...)
	body = append(body, uint32le(0)...)

	cm, err := ParseCreateMonitor(body)
	require.NoError(t, err)
	require.Equal(t, uint16(1920), cm.Width)
	require.Equal(t, uint16(1080), cm.Height)
	require.Equal(t, uint32(0xdeadbeef), cm.Magic)
	require.Equal(t, uint32(3), cm.ConID)
	require.Equal(t, uint32(0), cm.MonID)
}
