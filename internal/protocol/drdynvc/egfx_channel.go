package drdynvc

import (
	"fmt"
	"io"
)

// GraphicsChannelName is the dynamic virtual channel name the GFX channel
// endpoint advertises during CREATE_REQUEST/CREATE_RESPONSE negotiation, per
// MS-RDPEGFX 3.1. Unlike drdynvc's own ChannelName (the static "drdynvc"
// channel each DVC rides on top of), this is the name of the DVC itself.
const GraphicsChannelName = "Microsoft::Windows::RDS::Graphics"

// GfxSession is the subset of gfx.Session the graphics channel drives: the
// single-threaded callback entry points named in spec §5
// (data_first/data, reassembly). Defined here rather than imported to avoid
// a drdynvc -> gfx import cycle; *gfx.Session satisfies it.
type GfxSession interface {
	DataFirst(total int, chunk []byte) error
	Data(chunk []byte) error
}

// GraphicsChannel binds a GfxSession to one dynamic virtual channel,
// translating between the channel's own DYNVC_DATA/DYNVC_DATA_FIRST framing
// and the GfxSession's ChunkWriter/callback surface. Outbound fragments the
// GfxSession hands it are wrapped as DRDYNVC PDUs and written to the
// underlying transport; inbound DRDYNVC PDUs addressed to this channel are
// unwrapped and handed to the session.
type GraphicsChannel struct {
	channelID uint32
	w         io.Writer
	session   GfxSession
	open      bool
	zgfx      *ZGFXDecompressor
}

// NewGraphicsChannel creates a channel bound to channelID, writing DRDYNVC
// PDUs to w. The session is attached once CREATE_RESPONSE has been
// observed (OpenResponse); it is nil until then. A ZGFXDecompressor is
// allocated up front since its history must persist across every
// compressed PDU this channel ever receives.
func NewGraphicsChannel(channelID uint32, w io.Writer) *GraphicsChannel {
	return &GraphicsChannel{channelID: channelID, w: w, zgfx: NewZGFXDecompressor()}
}

// Connect runs the DYNVC_CAPS handshake that precedes channel creation:
// peerVersion is the version the server advertised in its own CapsPDU, and
// must be at least CapsVersion2; a version-1 peer is rejected.
// On acceptance it echoes the version back and sends the channel's
// CREATE_REQ in the same call (two writes), mirroring the teacher's
// DisplayControlHandler.handleCaps/RequestDisplayControlChannel sequence.
func (c *GraphicsChannel) Connect(peerVersion uint16) error {
	if peerVersion < CapsVersion2 {
		return fmt.Errorf("drdynvc: graphics channel requires caps version >= %d, peer offered %d", CapsVersion2, peerVersion)
	}
	caps := &CapsPDU{Version: peerVersion}
	if _, err := c.w.Write(caps.Serialize()); err != nil {
		return fmt.Errorf("drdynvc: echo caps: %w", err)
	}
	if _, err := c.w.Write(c.CreateRequest()); err != nil {
		return fmt.Errorf("drdynvc: send create request: %w", err)
	}
	return nil
}

// CreateRequest builds the DYNVC_CREATE_REQ this channel sends to open the
// graphics channel.
func (c *GraphicsChannel) CreateRequest() []byte {
	return (&CreateRequestPDU{ChannelID: c.channelID, ChannelName: GraphicsChannelName}).Serialize()
}

// OpenResponse handles the DYNVC_CREATE_RSP callback: on success it attaches
// session as the channel's GFX endpoint; on failure the channel stays
// closed and no further data callbacks are expected for it.
func (c *GraphicsChannel) OpenResponse(resp *CreateResponsePDU, session GfxSession) error {
	if !resp.IsSuccess() {
		return fmt.Errorf("drdynvc: graphics channel create failed: 0x%08x", resp.CreationCode)
	}
	c.session = session
	c.open = true
	return nil
}

// CloseResponse handles the DYNVC_CLOSE callback: the channel is torn down
// and further data callbacks are rejected.
func (c *GraphicsChannel) CloseResponse() {
	c.open = false
	c.session = nil
}

// DataFirst handles a DYNVC_DATA_FIRST delivered for this channel.
func (c *GraphicsChannel) DataFirst(total int, chunk []byte) error {
	if !c.open || c.session == nil {
		return fmt.Errorf("drdynvc: data_first on closed graphics channel %d", c.channelID)
	}
	return c.session.DataFirst(total, chunk)
}

// Data handles a DYNVC_DATA delivered for this channel.
func (c *GraphicsChannel) Data(chunk []byte) error {
	if !c.open || c.session == nil {
		return fmt.Errorf("drdynvc: data on closed graphics channel %d", c.channelID)
	}
	return c.session.Data(chunk)
}

// DataFirstCompressed handles a DYNVC_DATA_FIRST_COMPRESSED delivered for
// this channel: it decompresses pdu through the channel's ZGFXDecompressor
// before handing the result to DataFirst, the same decompress-then-process
// shape as the teacher's DisplayControlHandler.handleCompressedData.
func (c *GraphicsChannel) DataFirstCompressed(total int, pdu *DataCompressedPDU) error {
	chunk, err := pdu.Decompress(c.zgfx)
	if err != nil {
		return fmt.Errorf("drdynvc: decompress data_first for graphics channel %d: %w", c.channelID, err)
	}
	return c.DataFirst(total, chunk)
}

// DataCompressed handles a DYNVC_DATA_COMPRESSED delivered for this
// channel: it decompresses pdu through the channel's ZGFXDecompressor
// before handing the result to Data.
func (c *GraphicsChannel) DataCompressed(pdu *DataCompressedPDU) error {
	chunk, err := pdu.Decompress(c.zgfx)
	if err != nil {
		return fmt.Errorf("drdynvc: decompress data for graphics channel %d: %w", c.channelID, err)
	}
	return c.Data(chunk)
}

// WriteFirst implements gfx.ChunkWriter: wraps chunk in DYNVC_DATA_FIRST
// announcing total and writes it to the underlying transport.
func (c *GraphicsChannel) WriteFirst(total int, chunk []byte) error {
	pdu := &DataFirstPDU{ChannelID: c.channelID, Length: uint32(total), Data: chunk}
	_, err := c.w.Write(pdu.Serialize())
	return err
}

// Write implements gfx.ChunkWriter: wraps chunk in DYNVC_DATA and writes it
// to the underlying transport.
func (c *GraphicsChannel) Write(chunk []byte) error {
	pdu := &DataPDU{ChannelID: c.channelID, Data: chunk}
	_, err := c.w.Write(pdu.Serialize())
	return err
}
