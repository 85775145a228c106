package ipc

import "encoding/binary"

// SubRecord is one entry of the count-prefixed sub-record list carried
// inside an outer type 3 or type 100 frame.
type SubRecord struct {
	Type uint16
	Body []byte
}

// ParseSubRecords splits payload into its sub-record list. Each entry is
// [sub_type:u16_le][sub_size:u16_le][sub_body: sub_size-4 bytes]; sub_size
// counts itself and the two header fields, matching the original helper's
// "phold = s->p; ...; s->p = phold + size" resync idiom.
func ParseSubRecords(payload []byte) ([]SubRecord, error) {
	if len(payload) < 2 {
		return nil, ErrBadSubRecord
	}
	count := binary.LittleEndian.Uint16(payload[0:2])
	payload = payload[2:]

	records := make([]SubRecord, 0, count)
	for i := 0; i < int(count); i++ {
		if len(payload) < 4 {
			return nil, ErrBadSubRecord
		}
		subType := binary.LittleEndian.Uint16(payload[0:2])
		subSize := binary.LittleEndian.Uint16(payload[2:4])
		if subSize < 4 || int(subSize) > len(payload) {
			return nil, ErrBadSubRecord
		}
		records = append(records, SubRecord{Type: subType, Body: payload[4:subSize]})
		payload = payload[subSize:]
	}
	return records, nil
}

// Rect is a copied-pixels rectangle inside a dirty-region sub-record.
type Rect struct {
	X, Y, W, H uint16
}

// DirtyRegion is the decoded body of a type-3/sub-type-61 sub-record:
// a dirty region inside a shared-memory pixmap that must be encoded.
type DirtyRegion struct {
	CopiedRects  []Rect
	Flags        uint32
	ShmemID      uint32
	ShmemOffset  uint32
	Width        uint16
	Height       uint16
}

// ParseDirtyRegion decodes a sub-type-61 body. The dirty-rectangle list
// (num_drects) is skipped: only the copied-pixels list is meaningful to the
// GPU encode pass.
func ParseDirtyRegion(body []byte) (*DirtyRegion, error) {
	if len(body) < 2 {
		return nil, ErrBadSubRecord
	}
	numDrects := binary.LittleEndian.Uint16(body[0:2])
	body = body[2:]
	skip := int(numDrects) * 8
	if len(body) < skip+2 {
		return nil, ErrBadSubRecord
	}
	body = body[skip:]

	numCrects := binary.LittleEndian.Uint16(body[0:2])
	body = body[2:]
	if len(body) < int(numCrects)*8 {
		return nil, ErrBadSubRecord
	}
	rects := make([]Rect, numCrects)
	for i := range rects {
		rects[i] = Rect{
			X: binary.LittleEndian.Uint16(body[0:2]),
			Y: binary.LittleEndian.Uint16(body[2:4]),
			W: binary.LittleEndian.Uint16(body[4:6]),
			H: binary.LittleEndian.Uint16(body[6:8]),
		}
		body = body[8:]
	}

	const tailSize = 4 + 4 + 4 + 4 + 2 + 2 // flags, frame_id, shmem_id, shmem_offset, width, height
	if len(body) < tailSize {
		return nil, ErrBadSubRecord
	}
	dr := &DirtyRegion{CopiedRects: rects}
	dr.Flags = binary.LittleEndian.Uint32(body[0:4])
	// body[4:8] is frame_id, ignored per the framing contract.
	dr.ShmemID = binary.LittleEndian.Uint32(body[8:12])
	dr.ShmemOffset = binary.LittleEndian.Uint32(body[12:16])
	dr.Width = binary.LittleEndian.Uint16(body[16:18])
	dr.Height = binary.LittleEndian.Uint16(body[18:20])
	return dr, nil
}

// CreateMonitorControl is the decoded body of a type-100/sub-type-2
// sub-record: create a per-monitor GPU encode context.
type CreateMonitorControl struct {
	Width  uint16
	Height uint16
	Magic  uint32
	ConID  uint32
	MonID  uint32
}

// ParseCreateMonitor decodes a sub-type-2 body.
func ParseCreateMonitor(body []byte) (*CreateMonitorControl, error) {
	if len(body) < 16 {
		return nil, ErrBadSubRecord
	}
	return &CreateMonitorControl{
		Width:  binary.LittleEndian.Uint16(body[0:2]),
		Height: binary.LittleEndian.Uint16(body[2:4]),
		Magic:  binary.LittleEndian.Uint32(body[4:8]),
		ConID:  binary.LittleEndian.Uint32(body[8:12]),
		MonID:  binary.LittleEndian.Uint32(body[12:16]),
	}, nil
}
