package gfx

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Command IDs (MS-RDPEGFX 2.2.1).
const (
	cmdSolidFill          uint16 = 0x04
	cmdSurfaceToSurface   uint16 = 0x05
	cmdCreateSurface      uint16 = 0x09
	cmdStartFrame         uint16 = 0x0B
	cmdEndFrame           uint16 = 0x0C
	cmdCapsAdvertise      uint16 = 0x12
	cmdCapsConfirm        uint16 = 0x13
	cmdFrameAcknowledge   uint16 = 0x0D
	cmdMapSurfaceToOutput uint16 = 0x0F
)

// pduHeaderSize is the size of [cmdId:u16][flags:u16][pduLength:u32].
const pduHeaderSize = 8

// Rect is an (x1,y1)-(x2,y2) rectangle as the wire format carries it.
type Rect struct {
	X1, Y1, X2, Y2 uint16
}

// Point is a destination point for SURFACETOSURFACE.
type Point struct {
	X, Y uint16
}

// encodeHeader writes [cmdId][flags][pduLength] followed by body, with
// pduLength counting from cmdId inclusive to the end of body.
func encodeHeader(cmdID uint16, body []byte) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(pduHeaderSize + len(body))
	_ = binary.Write(buf, binary.LittleEndian, cmdID)
	_ = binary.Write(buf, binary.LittleEndian, uint16(0)) // flags, always 0 on emit
	_ = binary.Write(buf, binary.LittleEndian, uint32(pduHeaderSize+len(body)))
	buf.Write(body)
	return buf.Bytes()
}

// EncodeSolidFill builds a SOLIDFILL (0x04) PDU.
func EncodeSolidFill(surfaceID uint16, fillColor uint32, rects []Rect) []byte {
	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, surfaceID)
	_ = binary.Write(body, binary.LittleEndian, fillColor)
	_ = binary.Write(body, binary.LittleEndian, uint16(len(rects)))
	for _, r := range rects {
		binary.Write(body, binary.LittleEndian, r.X1)
		binary.Write(body, binary.LittleEndian, r.Y1)
		binary.Write(body, binary.LittleEndian, r.X2)
		binary.Write(body, binary.LittleEndian, r.Y2)
	}
	return encodeHeader(cmdSolidFill, body.Bytes())
}

// EncodeSurfaceToSurface builds a SURFACETOSURFACE (0x05) PDU.
func EncodeSurfaceToSurface(srcID, dstID uint16, srcRect Rect, points []Point) []byte {
	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, srcID)
	_ = binary.Write(body, binary.LittleEndian, dstID)
	_ = binary.Write(body, binary.LittleEndian, srcRect.X1)
	_ = binary.Write(body, binary.LittleEndian, srcRect.Y1)
	_ = binary.Write(body, binary.LittleEndian, srcRect.X2)
	_ = binary.Write(body, binary.LittleEndian, srcRect.Y2)
	_ = binary.Write(body, binary.LittleEndian, uint16(len(points)))
	for _, p := range points {
		binary.Write(body, binary.LittleEndian, p.X)
		binary.Write(body, binary.LittleEndian, p.Y)
	}
	return encodeHeader(cmdSurfaceToSurface, body.Bytes())
}

// EncodeCreateSurface builds a CREATESURFACE (0x09) PDU.
func EncodeCreateSurface(surfaceID, width, height uint16, pixelFormat uint8) []byte {
	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, surfaceID)
	_ = binary.Write(body, binary.LittleEndian, width)
	_ = binary.Write(body, binary.LittleEndian, height)
	body.WriteByte(pixelFormat)
	return encodeHeader(cmdCreateSurface, body.Bytes())
}

// EncodeStartFrame builds a STARTFRAME (0x0B) PDU.
func EncodeStartFrame(timestamp, frameID uint32) []byte {
	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, timestamp)
	_ = binary.Write(body, binary.LittleEndian, frameID)
	return encodeHeader(cmdStartFrame, body.Bytes())
}

// EncodeEndFrame builds an ENDFRAME (0x0C) PDU.
func EncodeEndFrame(frameID uint32) []byte {
	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, frameID)
	return encodeHeader(cmdEndFrame, body.Bytes())
}

// EncodeMapSurfaceToOutput builds a MAPSURFACETOOUTPUT (0x0F) PDU.
func EncodeMapSurfaceToOutput(surfaceID uint16, x, y uint32) []byte {
	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, surfaceID)
	_ = binary.Write(body, binary.LittleEndian, uint16(0)) // reserved
	_ = binary.Write(body, binary.LittleEndian, x)
	_ = binary.Write(body, binary.LittleEndian, y)
	return encodeHeader(cmdMapSurfaceToOutput, body.Bytes())
}

// EncodeCapsConfirm builds a CAPSCONFIRM (0x13) PDU selecting version.
func EncodeCapsConfirm(version uint32) []byte {
	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, version)
	_ = binary.Write(body, binary.LittleEndian, uint32(4)) // capsDataLength
	_ = binary.Write(body, binary.LittleEndian, uint32(0)) // flags
	return encodeHeader(cmdCapsConfirm, body.Bytes())
}

// decodedPDU is one parsed inbound RDPGFX PDU.
type decodedPDU struct {
	CmdID uint16
	Body  []byte
}

// decodePDUs reads zero or more [cmdId][flags][pduLength][body] records
// from data, requiring pduLength >= 8 and clamping each body to
// pduLength-8 bytes.
func decodePDUs(data []byte) ([]decodedPDU, error) {
	var out []decodedPDU
	for len(data) > 0 {
		if len(data) < pduHeaderSize {
			return nil, fmt.Errorf("%w: header", ErrShortPDU)
		}
		cmdID := binary.LittleEndian.Uint16(data[0:2])
		pduLength := binary.LittleEndian.Uint32(data[4:8])
		if pduLength < pduHeaderSize {
			return nil, fmt.Errorf("%w: pduLength %d < %d", ErrShortPDU, pduLength, pduHeaderSize)
		}
		if uint32(len(data)) < pduLength {
			return nil, fmt.Errorf("%w: body", ErrShortPDU)
		}
		out = append(out, decodedPDU{CmdID: cmdID, Body: data[pduHeaderSize:pduLength]})
		data = data[pduLength:]
	}
	return out, nil
}

// decodeCapsAdvertise parses CAPSADVERTISE's list of [version, dataLen, data].
func decodeCapsAdvertise(body []byte) ([]capsSet, error) {
	var sets []capsSet
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: capsadvertise count", ErrShortPDU)
	}
	count := binary.LittleEndian.Uint16(body[0:2])
	body = body[2:]
	for i := uint16(0); i < count; i++ {
		if len(body) < 8 {
			return nil, fmt.Errorf("%w: capsadvertise entry %d", ErrShortPDU, i)
		}
		version := binary.LittleEndian.Uint32(body[0:4])
		dataLen := binary.LittleEndian.Uint32(body[4:8])
		if dataLen != 4 {
			return nil, fmt.Errorf("%w: entry %d dataLen=%d", ErrBadCapsLength, i, dataLen)
		}
		if len(body) < 8+4 {
			return nil, fmt.Errorf("%w: capsadvertise entry %d data", ErrShortPDU, i)
		}
		flags := binary.LittleEndian.Uint32(body[8:12])
		sets = append(sets, capsSet{Version: version, Flags: flags})
		body = body[12:]
	}
	return sets, nil
}

// frameAck is the decoded body of FRAMEACKNOWLEDGE (0x0D).
type frameAck struct {
	QueueDepth         uint32
	FrameID            uint32
	TotalFramesDecoded uint32
}

func decodeFrameAcknowledge(body []byte) (frameAck, error) {
	if len(body) < 12 {
		return frameAck{}, fmt.Errorf("%w: frameacknowledge", ErrShortPDU)
	}
	return frameAck{
		QueueDepth:         binary.LittleEndian.Uint32(body[0:4]),
		FrameID:            binary.LittleEndian.Uint32(body[4:8]),
		TotalFramesDecoded: binary.LittleEndian.Uint32(body[8:12]),
	}, nil
}
