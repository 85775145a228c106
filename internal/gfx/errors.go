package gfx

import "errors"

var (
	// ErrShortPDU is returned when a buffer is too short to contain a
	// complete RDPGFX PDU header or the body its pduLength announces.
	ErrShortPDU = errors.New("gfx: pdu too short")

	// ErrBadCapsLength is returned when CAPSADVERTISE's dataLen field is
	// not 4, the only length this endpoint understands.
	ErrBadCapsLength = errors.New("gfx: unsupported caps data length")

	// ErrUnsupportedVersion is returned when no advertised capability
	// version matches RDPGFX_CAPVERSION_104.
	ErrUnsupportedVersion = errors.New("gfx: no supported capability version advertised")

	// ErrReassemblyOverflow is returned when a data callback would push
	// the reassembly buffer past the length data_first announced.
	ErrReassemblyOverflow = errors.New("gfx: reassembly buffer overflow")
)
