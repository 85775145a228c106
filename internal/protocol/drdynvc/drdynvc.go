// Package drdynvc implements the wire codec for the Dynamic Virtual
// Channel Protocol (MS-RDPEDYC): the transport every dynamic channel,
// including the MS-RDPEGFX graphics channel this helper cares about, rides
// on top of. GraphicsChannel in egfx_channel.go is the one consumer in this
// repo; everything here is scoped to what it needs.
package drdynvc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ChannelName is the static channel DRDYNVC itself is carried on.
const ChannelName = "drdynvc"

// Command IDs, packed into the high nibble of a PDU's header byte
// (MS-RDPEDYC 2.2.1).
const (
	CmdCreate       uint8 = 0x01
	CmdDataFirst    uint8 = 0x02
	CmdData         uint8 = 0x03
	CmdClose        uint8 = 0x04
	CmdCapability   uint8 = 0x05
	CmdDataFirstCmp uint8 = 0x06 // v3: RDP8-compressed DATA_FIRST
	CmdDataCmp      uint8 = 0x07 // v3: RDP8-compressed DATA
	CmdSoftSync     uint8 = 0x08 // v3: UDP transport handoff
)

// DYNVC_CAPS versions.
const (
	CapsVersion1 uint16 = 0x0001
	CapsVersion2 uint16 = 0x0002
	CapsVersion3 uint16 = 0x0003
)

// DYNVC_CREATE_RSP result codes.
const (
	CreateResultOK              uint32 = 0x00000000
	CreateResultDenied          uint32 = 0x00000001
	CreateResultNoMemory        uint32 = 0x00000002
	CreateResultNoListener      uint32 = 0x00000003
	CreateResultChannelNotFound uint32 = 0x80070490
)

// widthCode picks the DRDYNVC variable-width field tag for v: 0 for a
// 1-byte value, 1 for 2 bytes, 2 for 4 bytes. The same three-tier encoding
// is reused for a PDU's channel ID (CbChID) and, on DATA_FIRST, its total
// length (Sp).
func widthCode(v uint32) uint8 {
	switch {
	case v <= 0xFF:
		return 0
	case v <= 0xFFFF:
		return 1
	default:
		return 2
	}
}

// widthBytes is the inverse of widthCode: how many bytes a field tagged
// code occupies on the wire.
func widthBytes(code uint8) int {
	switch code {
	case 0:
		return 1
	case 1:
		return 2
	default:
		return 4
	}
}

// putSized appends v to buf using code's width.
func putSized(buf *bytes.Buffer, v uint32, code uint8) {
	switch code {
	case 0:
		buf.WriteByte(byte(v))
	case 1:
		_ = binary.Write(buf, binary.LittleEndian, uint16(v))
	default:
		_ = binary.Write(buf, binary.LittleEndian, v)
	}
}

// Header is the one-byte field every DRDYNVC PDU opens with.
type Header struct {
	CbChID uint8 // width tag for the channel ID that follows (see widthCode)
	Sp     uint8 // command-specific: length width tag on DATA_FIRST, 0 elsewhere
	Cmd    uint8 // one of the Cmd* constants
}

// Serialize packs the three header fields into their wire byte.
func (h *Header) Serialize() byte {
	return (h.CbChID & 0x03) | ((h.Sp & 0x03) << 2) | ((h.Cmd & 0x0F) << 4)
}

// Deserialize unpacks a wire byte into the header fields.
func (h *Header) Deserialize(b byte) {
	h.CbChID = b & 0x03
	h.Sp = (b >> 2) & 0x03
	h.Cmd = (b >> 4) & 0x0F
}

// ChannelIDSize reports the byte width h.CbChID selects.
func (h *Header) ChannelIDSize() int {
	return widthBytes(h.CbChID)
}

// ParsePDU splits data into its header fields and the header-following
// bytes every Cmd-specific decoder in this package expects.
func ParsePDU(data []byte) (cmd uint8, cbChID uint8, remaining []byte, err error) {
	if len(data) < 1 {
		return 0, 0, nil, fmt.Errorf("drdynvc: pdu shorter than header byte")
	}
	var h Header
	h.Deserialize(data[0])
	return h.Cmd, h.CbChID, data[1:], nil
}

// ReadChannelID reads a cbChID-wide channel ID off the front of data.
func ReadChannelID(data []byte, cbChID uint8) (channelID uint32, remaining []byte, err error) {
	size := widthBytes(cbChID)
	if len(data) < size {
		return 0, nil, fmt.Errorf("drdynvc: need %d bytes for channel id, have %d", size, len(data))
	}
	switch cbChID {
	case 0:
		channelID = uint32(data[0])
	case 1:
		channelID = uint32(binary.LittleEndian.Uint16(data[:2]))
	default:
		channelID = binary.LittleEndian.Uint32(data[:4])
	}
	return channelID, data[size:], nil
}

// CapsPDU is DYNVC_CAPS (MS-RDPEDYC 2.2.1.1), the transport-level handshake
// that precedes any channel traffic. GraphicsChannel.Connect echoes the
// peer's advertised version straight back, the same v2/v3 behavior the
// teacher's DisplayControlHandler.handleCaps implements for its own
// dynamic channel.
type CapsPDU struct {
	Version uint16
	// Priority charges are v3-only; zero on v1/v2.
	PriorityCharge0 uint16
	PriorityCharge1 uint16
	PriorityCharge2 uint16
	PriorityCharge3 uint16
}

// Serialize encodes c to wire format.
func (c *CapsPDU) Serialize() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte((&Header{Cmd: CmdCapability}).Serialize())
	buf.WriteByte(0) // Pad
	_ = binary.Write(buf, binary.LittleEndian, c.Version)
	if c.Version >= CapsVersion3 {
		_ = binary.Write(buf, binary.LittleEndian, c.PriorityCharge0)
		_ = binary.Write(buf, binary.LittleEndian, c.PriorityCharge1)
		_ = binary.Write(buf, binary.LittleEndian, c.PriorityCharge2)
		_ = binary.Write(buf, binary.LittleEndian, c.PriorityCharge3)
	}
	return buf.Bytes()
}

// Deserialize decodes c from wire format, including the header/pad bytes
// Serialize writes.
func (c *CapsPDU) Deserialize(r io.Reader) error {
	var headerByte, pad byte
	if err := binary.Read(r, binary.LittleEndian, &headerByte); err != nil {
		return fmt.Errorf("drdynvc: caps header: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &pad); err != nil {
		return fmt.Errorf("drdynvc: caps pad: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &c.Version); err != nil {
		return fmt.Errorf("drdynvc: caps version: %w", err)
	}
	if c.Version >= CapsVersion3 {
		_ = binary.Read(r, binary.LittleEndian, &c.PriorityCharge0)
		_ = binary.Read(r, binary.LittleEndian, &c.PriorityCharge1)
		_ = binary.Read(r, binary.LittleEndian, &c.PriorityCharge2)
		_ = binary.Read(r, binary.LittleEndian, &c.PriorityCharge3)
	}
	return nil
}

// CreateRequestPDU is DYNVC_CREATE_REQ (MS-RDPEDYC 2.2.2.1). GraphicsChannel
// sends exactly one of these, naming GraphicsChannelName.
type CreateRequestPDU struct {
	ChannelID   uint32
	ChannelName string
}

// Serialize encodes c to wire format.
func (c *CreateRequestPDU) Serialize() []byte {
	buf := new(bytes.Buffer)
	cbChID := widthCode(c.ChannelID)
	buf.WriteByte((&Header{CbChID: cbChID, Cmd: CmdCreate}).Serialize())
	putSized(buf, c.ChannelID, cbChID)
	buf.WriteString(c.ChannelName)
	buf.WriteByte(0)
	return buf.Bytes()
}

// CreateResponsePDU is DYNVC_CREATE_RSP (MS-RDPEDYC 2.2.2.2).
type CreateResponsePDU struct {
	ChannelID    uint32
	CreationCode uint32 // HRESULT; 0 means success
}

// Deserialize decodes c from wire format. cbChID comes from the PDU's
// header byte, already stripped off by the caller via ParsePDU.
func (c *CreateResponsePDU) Deserialize(r io.Reader, cbChID uint8) error {
	switch cbChID {
	case 0:
		var id uint8
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return err
		}
		c.ChannelID = uint32(id)
	case 1:
		var id uint16
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return err
		}
		c.ChannelID = uint32(id)
	default:
		if err := binary.Read(r, binary.LittleEndian, &c.ChannelID); err != nil {
			return err
		}
	}
	return binary.Read(r, binary.LittleEndian, &c.CreationCode)
}

// IsSuccess reports whether the channel create request this answers
// succeeded.
func (c *CreateResponsePDU) IsSuccess() bool {
	return c.CreationCode == CreateResultOK
}

// DataFirstPDU is DYNVC_DATA_FIRST (MS-RDPEDYC 2.2.3.1): announces a
// message's total uncompressed length and carries its first fragment.
// GraphicsChannel.WriteFirst wraps every multi-fragment GFX message in one
// of these.
type DataFirstPDU struct {
	ChannelID uint32
	Length    uint32
	Data      []byte
}

// Serialize encodes d to wire format.
func (d *DataFirstPDU) Serialize() []byte {
	buf := new(bytes.Buffer)
	cbChID := widthCode(d.ChannelID)
	spLen := widthCode(d.Length)
	buf.WriteByte((&Header{CbChID: cbChID, Sp: spLen, Cmd: CmdDataFirst}).Serialize())
	putSized(buf, d.ChannelID, cbChID)
	putSized(buf, d.Length, spLen)
	buf.Write(d.Data)
	return buf.Bytes()
}

// DataPDU is DYNVC_DATA (MS-RDPEDYC 2.2.3.2): a single-fragment message, or
// a non-first fragment of one DataFirstPDU announced. GraphicsChannel.Write
// wraps every such chunk.
type DataPDU struct {
	ChannelID uint32
	Data      []byte
}

// Serialize encodes d to wire format.
func (d *DataPDU) Serialize() []byte {
	buf := new(bytes.Buffer)
	cbChID := widthCode(d.ChannelID)
	buf.WriteByte((&Header{CbChID: cbChID, Cmd: CmdData}).Serialize())
	putSized(buf, d.ChannelID, cbChID)
	buf.Write(d.Data)
	return buf.Bytes()
}

// ClosePDU is DYNVC_CLOSE (MS-RDPEDYC 2.2.4).
type ClosePDU struct {
	ChannelID uint32
}

// Serialize encodes c to wire format.
func (c *ClosePDU) Serialize() []byte {
	buf := new(bytes.Buffer)
	cbChID := widthCode(c.ChannelID)
	buf.WriteByte((&Header{CbChID: cbChID, Cmd: CmdClose}).Serialize())
	putSized(buf, c.ChannelID, cbChID)
	return buf.Bytes()
}

// Soft-Sync flags (MS-RDPEDYC 2.2.5.1).
const (
	SoftSyncTCPFlushed         uint8 = 0x01
	SoftSyncChannelListPresent uint8 = 0x02
)

// Soft-Sync tunnel types (MS-RDPEDYC 2.2.5.1.1).
const (
	TunnelTypeUDPFECR uint32 = 0x00000001
	TunnelTypeUDPFECL uint32 = 0x00000003
)

// SoftSyncChannelDef names one channel in a Soft-Sync request's channel
// list, along with the tunnel it should migrate to.
type SoftSyncChannelDef struct {
	ChannelID  uint32
	TunnelType uint32
}

// maxSoftSyncChannels bounds SoftSyncRequestPDU.Deserialize's channel list
// allocation against a corrupt or hostile length field.
const maxSoftSyncChannels = 1024

// SoftSyncRequestPDU is DYNVC_SOFT_SYNC_REQUEST (MS-RDPEDYC 2.2.5.1): the
// server-initiated request to migrate some channels from TCP to a UDP
// tunnel. This helper has no UDP transport; GraphicsChannel does not
// handle soft-sync requests, and no caller sends a SoftSyncResponsePDU.
type SoftSyncRequestPDU struct {
	Pad             uint8
	Flags           uint8
	NumberOfTunnels uint16
	Channels        []SoftSyncChannelDef
}

// Deserialize decodes s from wire format (the bytes following the header
// byte).
func (s *SoftSyncRequestPDU) Deserialize(r io.Reader) error {
	if err := binary.Read(r, binary.LittleEndian, &s.Pad); err != nil {
		return fmt.Errorf("drdynvc: soft-sync pad: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &s.Flags); err != nil {
		return fmt.Errorf("drdynvc: soft-sync flags: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &s.NumberOfTunnels); err != nil {
		return fmt.Errorf("drdynvc: soft-sync tunnel count: %w", err)
	}

	if s.Flags&SoftSyncChannelListPresent == 0 {
		return nil
	}

	var channelCount uint16
	if err := binary.Read(r, binary.LittleEndian, &channelCount); err != nil {
		return fmt.Errorf("drdynvc: soft-sync channel count: %w", err)
	}
	if channelCount > maxSoftSyncChannels {
		return fmt.Errorf("drdynvc: too many soft-sync channels: %d", channelCount)
	}

	s.Channels = make([]SoftSyncChannelDef, channelCount)
	for i := range s.Channels {
		var def SoftSyncChannelDef
		if err := binary.Read(r, binary.LittleEndian, &def.ChannelID); err != nil {
			return fmt.Errorf("drdynvc: soft-sync channel %d id: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &def.TunnelType); err != nil {
			return fmt.Errorf("drdynvc: soft-sync channel %d tunnel: %w", i, err)
		}
		s.Channels[i] = def
	}
	return nil
}

// SoftSyncResponsePDU is DYNVC_SOFT_SYNC_RESPONSE (MS-RDPEDYC 2.2.5.2).
type SoftSyncResponsePDU struct {
	Pad             uint8
	NumberOfTunnels uint32
	TunnelTypes     []uint32
}

// Serialize encodes s to wire format.
func (s *SoftSyncResponsePDU) Serialize() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte((&Header{Cmd: CmdSoftSync}).Serialize())
	buf.WriteByte(s.Pad)
	_ = binary.Write(buf, binary.LittleEndian, s.NumberOfTunnels)
	for _, tt := range s.TunnelTypes {
		_ = binary.Write(buf, binary.LittleEndian, tt)
	}
	return buf.Bytes()
}

// DataCompressedPDU is DYNVC_DATA_COMPRESSED / DYNVC_DATA_FIRST_COMPRESSED
// (MS-RDPEDYC 2.2.3.3/2.2.3.4): RDP8 bulk compression wrapped around a
// channel's payload, independent of whatever framing that payload carries
// internally. GraphicsChannel.DataCompressed/DataFirstCompressed decode one
// of these and hand the decompressed bytes to the plain Data/DataFirst
// path.
type DataCompressedPDU struct {
	ChannelID      uint32
	Length         uint32 // only set when IsFirst
	CompressedData []byte
	IsFirst        bool
}

// Deserialize decodes d from the header-following bytes of a
// CmdDataCmp/CmdDataFirstCmp PDU.
func (d *DataCompressedPDU) Deserialize(data []byte, cbChID uint8, isFirst bool) error {
	d.IsFirst = isFirst

	channelID, remaining, err := ReadChannelID(data, cbChID)
	if err != nil {
		return fmt.Errorf("drdynvc: compressed data channel id: %w", err)
	}
	d.ChannelID = channelID

	if isFirst {
		if len(remaining) < 4 {
			return fmt.Errorf("drdynvc: compressed data_first: missing length field")
		}
		d.Length = binary.LittleEndian.Uint32(remaining[:4])
		remaining = remaining[4:]
	}

	d.CompressedData = remaining
	return nil
}

// Decompress runs d's payload through decompressor, which must carry
// history across calls for the same channel.
func (d *DataCompressedPDU) Decompress(decompressor *ZGFXDecompressor) ([]byte, error) {
	if decompressor == nil {
		return nil, fmt.Errorf("drdynvc: no ZGFX decompressor available")
	}
	return decompressor.Decompress(d.CompressedData)
}

// zgfxHistorySize is the RDP8 bulk-compression sliding window (MS-RDPEGFX
// 3.3): 2.5MB, shared by every segment a decompressor handles.
const zgfxHistorySize = 2500000

// ZGFX descriptor-byte bits (MS-RDPEGFX 3.3.1.2).
const (
	zgfxPacketCompressed uint8 = 0x01
	zgfxPacketFlushed    uint8 = 0x04
)

// ZGFXDecompressor undoes RDP8 bulk compression (MS-RDPEGFX 3.3.1.2), an
// LZSS-family scheme with a shared sliding-window history that must
// persist across every packet the same logical stream sends.
type ZGFXDecompressor struct {
	history    []byte
	historyIdx int
}

// NewZGFXDecompressor allocates a decompressor with an empty history.
func NewZGFXDecompressor() *ZGFXDecompressor {
	return &ZGFXDecompressor{history: make([]byte, zgfxHistorySize)}
}

// Decompress expands one RDP8-framed packet: a descriptor byte followed by
// either raw bytes or a compressed segment stream.
func (z *ZGFXDecompressor) Decompress(packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, fmt.Errorf("drdynvc: empty ZGFX packet")
	}

	descriptor, body := packet[0], packet[1:]

	if descriptor&zgfxPacketCompressed == 0 {
		z.appendHistoryBytes(body)
		return body, nil
	}

	if descriptor&zgfxPacketFlushed != 0 {
		z.historyIdx = 0
	}
	return z.decompressSegments(body)
}

// decompressSegments handles both framings the segment stream can take:
// segment_count == 0 is a single segment spanning the rest of the buffer,
// otherwise each segment is length-prefixed.
func (z *ZGFXDecompressor) decompressSegments(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("drdynvc: ZGFX segment header too short")
	}

	segmentCount := binary.LittleEndian.Uint16(data[0:2])
	uncompressedSize := uint32(binary.LittleEndian.Uint16(data[2:4]))

	if segmentCount == 0 {
		return z.decompressTokens(data[4:], int(uncompressedSize))
	}

	result := make([]byte, 0, uncompressedSize)
	offset := 4
	for i := uint16(0); i < segmentCount && offset < len(data); i++ {
		if offset+4 > len(data) {
			break
		}
		segSize := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if offset+segSize > len(data) {
			return nil, fmt.Errorf("drdynvc: ZGFX segment %d overflows packet", i)
		}
		segData, err := z.decompressTokens(data[offset:offset+segSize], 65535)
		if err != nil {
			return nil, fmt.Errorf("drdynvc: ZGFX segment %d: %w", i, err)
		}
		result = append(result, segData...)
		offset += segSize
	}
	return result, nil
}

// decompressTokens runs the LZSS literal/match token stream in data
// through the shared history, stopping once maxSize output bytes have been
// produced or the stream runs out.
func (z *ZGFXDecompressor) decompressTokens(data []byte, maxSize int) ([]byte, error) {
	result := make([]byte, 0, maxSize)
	tokens := newBitReader(data)

	for len(result) < maxSize {
		isMatch, err := tokens.readBit()
		if err != nil {
			break
		}

		if isMatch == 0 {
			b, err := tokens.readBits(8)
			if err != nil {
				break
			}
			result = append(result, byte(b))
			z.appendHistory(byte(b))
			continue
		}

		distance, length, err := z.readMatch(tokens)
		if err != nil {
			break
		}
		for i := 0; i < length; i++ {
			idx := z.historyIdx - distance
			if idx < 0 {
				idx += len(z.history)
			}
			b := z.history[idx%len(z.history)]
			result = append(result, b)
			z.appendHistory(b)
		}
	}

	return result, nil
}

// readMatch decodes a (distance, length) back-reference using ZGFX's
// variable-length prefix coding: a leading bit selects short-form, then two
// more bits pick among four widening ranges. Distance and length share this
// shape with different bit widths and biases.
func (z *ZGFXDecompressor) readMatch(tokens *bitReader) (distance, length int, err error) {
	distance, err = readPrefixedValue(tokens, 8, 1, []int{8, 10, 14, 18}, 257)
	if err != nil {
		return 0, 0, err
	}
	length, err = readPrefixedValue(tokens, 3, 3, []int{4, 6, 8, 14}, 11)
	if err != nil {
		return 0, 0, err
	}
	return distance, length, nil
}

// readPrefixedValue reads one ZGFX variable-length field: a leading
// selector bit picks either a direct shortBits-wide read (biased by
// shortBias) or a two-bit range prefix selecting one of longWidths'
// widening encodings, biased from longBase by the bit ranges already
// consumed by narrower prefixes.
func readPrefixedValue(tokens *bitReader, shortBits, shortBias int, longWidths []int, longBase int) (int, error) {
	selector, err := tokens.readBits(1)
	if err != nil {
		return 0, err
	}
	if selector == 0 {
		v, err := tokens.readBits(shortBits)
		if err != nil {
			return 0, err
		}
		return int(v) + shortBias, nil
	}

	prefix, err := tokens.readBits(2)
	if err != nil {
		return 0, err
	}
	if int(prefix) >= len(longWidths) {
		return 0, fmt.Errorf("drdynvc: ZGFX prefix out of range: %d", prefix)
	}
	v, err := tokens.readBits(longWidths[prefix])
	if err != nil {
		return 0, err
	}

	bias := longBase
	for i := 0; i < int(prefix); i++ {
		bias += 1 << uint(longWidths[i])
	}
	return int(v) + bias, nil
}

func (z *ZGFXDecompressor) appendHistoryBytes(data []byte) {
	for _, b := range data {
		z.appendHistory(b)
	}
}

func (z *ZGFXDecompressor) appendHistory(b byte) {
	z.history[z.historyIdx%len(z.history)] = b
	z.historyIdx++
}

// bitReader reads individual bits, most significant first, out of a byte
// slice.
type bitReader struct {
	data    []byte
	byteIdx int
	bitIdx  int
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (r *bitReader) readBit() (uint8, error) {
	if r.byteIdx >= len(r.data) {
		return 0, io.EOF
	}
	bit := (r.data[r.byteIdx] >> (7 - r.bitIdx)) & 1
	r.bitIdx++
	if r.bitIdx >= 8 {
		r.bitIdx = 0
		r.byteIdx++
	}
	return bit, nil
}

func (r *bitReader) readBits(n int) (uint32, error) {
	var result uint32
	for i := 0; i < n; i++ {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		result = (result << 1) | uint32(bit)
	}
	return result, nil
}
