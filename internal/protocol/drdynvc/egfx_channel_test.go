package drdynvc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGfxSession struct {
	firsts [][]byte
	datas  [][]byte
}

func (s *fakeGfxSession) DataFirst(total int, chunk []byte) error {
	s.firsts = append(s.firsts, append([]byte(nil), chunk...))
	return nil
}

func (s *fakeGfxSession) Data(chunk []byte) error {
	s.datas = append(s.datas, append([]byte(nil), chunk...))
	return nil
}

func TestGraphicsChannel_CreateRequestNamesGraphicsChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)

	req := ch.CreateRequest()
	cmd, cbChID, rest, err := ParsePDU(req)
	require.NoError(t, err)
	assert.Equal(t, CmdCreate, cmd)

	id, rest, err := ReadChannelID(rest, cbChID)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), id)
	assert.Equal(t, GraphicsChannelName+"\x00", string(rest))
}

func TestGraphicsChannel_OpenResponseAttachesSession(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)
	sess := &fakeGfxSession{}

	err := ch.OpenResponse(&CreateResponsePDU{ChannelID: 3, CreationCode: CreateResultOK}, sess)
	require.NoError(t, err)

	require.NoError(t, ch.Data([]byte{1, 2, 3}))
	assert.Equal(t, [][]byte{{1, 2, 3}}, sess.datas)
}

func TestGraphicsChannel_OpenResponseFailureLeavesChannelClosed(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)
	sess := &fakeGfxSession{}

	err := ch.OpenResponse(&CreateResponsePDU{ChannelID: 3, CreationCode: CreateResultDenied}, sess)
	assert.Error(t, err)

	err = ch.Data([]byte{1})
	assert.Error(t, err)
}

func TestGraphicsChannel_DataBeforeOpenErrors(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)

	assert.Error(t, ch.Data([]byte{1}))
	assert.Error(t, ch.DataFirst(10, []byte{1}))
}

func TestGraphicsChannel_CloseResponseDetachesSession(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)
	sess := &fakeGfxSession{}
	require.NoError(t, ch.OpenResponse(&CreateResponsePDU{ChannelID: 3, CreationCode: CreateResultOK}, sess))

	ch.CloseResponse()
	assert.Error(t, ch.Data([]byte{1}))
}

func TestGraphicsChannel_WriteWrapsAsDynvcData(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)

	require.NoError(t, ch.Write([]byte{0xAA, 0xBB}))

	cmd, cbChID, rest, err := ParsePDU(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, CmdData, cmd)
	id, rest, err := ReadChannelID(rest, cbChID)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), id)
	assert.Equal(t, []byte{0xAA, 0xBB}, rest)
}

func TestGraphicsChannel_WriteFirstWrapsAsDynvcDataFirst(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)

	require.NoError(t, ch.WriteFirst(10, []byte{0x01, 0x02}))

	cmd, _, _, err := ParsePDU(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, CmdDataFirst, cmd)
}

func TestGraphicsChannel_ConnectRejectsVersion1(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)

	err := ch.Connect(CapsVersion1)
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestGraphicsChannel_ConnectEchoesCapsThenSendsCreateRequest(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)

	require.NoError(t, ch.Connect(CapsVersion2))

	cmd, _, rest, err := ParsePDU(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, CmdCapability, cmd)

	var caps CapsPDU
	require.NoError(t, caps.Deserialize(bytes.NewReader(buf.Bytes())))
	assert.Equal(t, CapsVersion2, caps.Version)

	// the create request follows immediately after the caps PDU's 4 bytes
	// (header, pad, 2-byte version)
	_ = rest
	cmd2, _, _, err := ParsePDU(buf.Bytes()[4:])
	require.NoError(t, err)
	assert.Equal(t, CmdCreate, cmd2)
}

func TestGraphicsChannel_DataCompressedDecompressesBeforeForwarding(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)
	sess := &fakeGfxSession{}
	require.NoError(t, ch.OpenResponse(&CreateResponsePDU{ChannelID: 3, CreationCode: CreateResultOK}, sess))

	pdu := &DataCompressedPDU{CompressedData: []byte{0x00, 'h', 'i'}} // descriptor 0x00: uncompressed
	require.NoError(t, ch.DataCompressed(pdu))

	assert.Equal(t, [][]byte{[]byte("hi")}, sess.datas)
}

func TestGraphicsChannel_DataFirstCompressedDecompressesBeforeForwarding(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)
	sess := &fakeGfxSession{}
	require.NoError(t, ch.OpenResponse(&CreateResponsePDU{ChannelID: 3, CreationCode: CreateResultOK}, sess))

	pdu := &DataCompressedPDU{CompressedData: []byte{0x00, 'h', 'e', 'l', 'l', 'o'}}
	require.NoError(t, ch.DataFirstCompressed(5, pdu))

	assert.Equal(t, [][]byte{[]byte("hello")}, sess.firsts)
}

func TestGraphicsChannel_DataCompressedBeforeOpenErrors(t *testing.T) {
	var buf bytes.Buffer
	ch := NewGraphicsChannel(3, &buf)

	pdu := &DataCompressedPDU{CompressedData: []byte{0x00, 'x'}}
	assert.Error(t, ch.DataCompressed(pdu))
}
