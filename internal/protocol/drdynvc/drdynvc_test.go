package drdynvc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_RoundTrips(t *testing.T) {
	cases := []Header{
		{CbChID: 0, Sp: 0, Cmd: CmdCapability},
		{CbChID: 1, Sp: 0, Cmd: CmdCreate},
		{CbChID: 2, Sp: 1, Cmd: CmdData},
		{CbChID: 0, Sp: 0, Cmd: CmdClose},
	}
	for _, h := range cases {
		var decoded Header
		decoded.Deserialize(h.Serialize())
		assert.Equal(t, h, decoded)
	}
}

func TestHeader_ChannelIDSize(t *testing.T) {
	cases := map[uint8]int{0: 1, 1: 2, 2: 4, 3: 4}
	for cbChID, want := range cases {
		h := Header{CbChID: cbChID}
		assert.Equal(t, want, h.ChannelIDSize())
	}
}

func TestCapsPDU_RoundTrips(t *testing.T) {
	tests := []struct {
		name string
		caps CapsPDU
	}{
		{"version 1", CapsPDU{Version: CapsVersion1}},
		{"version 2", CapsPDU{Version: CapsVersion2}},
		{"version 3 carries priority charges", CapsPDU{
			Version:         CapsVersion3,
			PriorityCharge0: 100,
			PriorityCharge1: 200,
			PriorityCharge2: 300,
			PriorityCharge3: 400,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decoded CapsPDU
			require.NoError(t, decoded.Deserialize(bytes.NewReader(tt.caps.Serialize())))
			assert.Equal(t, tt.caps, decoded)
		})
	}
}

func TestCreateRequestPDU_Serialize(t *testing.T) {
	tests := []struct {
		name      string
		req       CreateRequestPDU
		minLength int
	}{
		{"1-byte channel id", CreateRequestPDU{ChannelID: 1, ChannelName: "test"}, 6},
		{"2-byte channel id", CreateRequestPDU{ChannelID: 0x1234, ChannelName: "test"}, 7},
		{"4-byte channel id", CreateRequestPDU{ChannelID: 0x12345678, ChannelName: "test"}, 9},
		{"graphics channel name", CreateRequestPDU{ChannelID: 1, ChannelName: GraphicsChannelName}, 1 + 1 + len(GraphicsChannelName) + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.req.Serialize()
			assert.GreaterOrEqual(t, len(data), tt.minLength)

			var h Header
			h.Deserialize(data[0])
			assert.Equal(t, CmdCreate, h.Cmd)
		})
	}
}

func TestCreateResponsePDU_Deserialize(t *testing.T) {
	tests := []struct {
		name       string
		cbChID     uint8
		data       []byte
		expectID   uint32
		expectCode uint32
	}{
		{
			name:       "1-byte channel id, success",
			cbChID:     0,
			data:       []byte{0x01, 0x00, 0x00, 0x00, 0x00},
			expectID:   1,
			expectCode: CreateResultOK,
		},
		{
			name:       "2-byte channel id, success",
			cbChID:     1,
			data:       []byte{0x34, 0x12, 0x00, 0x00, 0x00, 0x00},
			expectID:   0x1234,
			expectCode: CreateResultOK,
		},
		{
			name:       "4-byte channel id, success",
			cbChID:     2,
			data:       []byte{0x78, 0x56, 0x34, 0x12, 0x00, 0x00, 0x00, 0x00},
			expectID:   0x12345678,
			expectCode: CreateResultOK,
		},
		{
			name:       "channel not found",
			cbChID:     0,
			data:       []byte{0x01, 0x90, 0x04, 0x07, 0x80},
			expectID:   1,
			expectCode: CreateResultChannelNotFound,
		},
		{
			name:       "denied",
			cbChID:     0,
			data:       []byte{0x01, 0x01, 0x00, 0x00, 0x00},
			expectID:   1,
			expectCode: CreateResultDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp CreateResponsePDU
			require.NoError(t, resp.Deserialize(bytes.NewReader(tt.data), tt.cbChID))
			assert.Equal(t, tt.expectID, resp.ChannelID)
			assert.Equal(t, tt.expectCode, resp.CreationCode)
			assert.Equal(t, tt.expectCode == CreateResultOK, resp.IsSuccess())
		})
	}
}

func TestDataPDU_Serialize(t *testing.T) {
	tests := []struct {
		name string
		pdu  DataPDU
	}{
		{"small channel id with data", DataPDU{ChannelID: 1, Data: []byte{0x01, 0x02, 0x03}}},
		{"large channel id", DataPDU{ChannelID: 0x12345678, Data: []byte{0xAA, 0xBB}}},
		{"empty data", DataPDU{ChannelID: 1, Data: []byte{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.pdu.Serialize()
			require.NotEmpty(t, data)

			var h Header
			h.Deserialize(data[0])
			assert.Equal(t, CmdData, h.Cmd)

			id, rest, err := ReadChannelID(data[1:], h.CbChID)
			require.NoError(t, err)
			assert.Equal(t, tt.pdu.ChannelID, id)
			assert.Equal(t, tt.pdu.Data, rest)
		})
	}
}

func TestDataFirstPDU_Serialize(t *testing.T) {
	tests := []struct {
		name      string
		channelID uint32
		length    uint32
	}{
		{"1-byte channel, 1-byte length", 100, 100},
		{"2-byte channel, 2-byte length", 1000, 1000},
		{"4-byte channel, 4-byte length", 100000, 100000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pdu := DataFirstPDU{ChannelID: tt.channelID, Length: tt.length, Data: []byte{0xAA, 0xBB}}
			data := pdu.Serialize()
			require.NotEmpty(t, data)

			var h Header
			h.Deserialize(data[0])
			assert.Equal(t, CmdDataFirst, h.Cmd)
		})
	}
}

func TestClosePDU_Serialize(t *testing.T) {
	for _, channelID := range []uint32{1, 0x1234, 0x12345678} {
		pdu := ClosePDU{ChannelID: channelID}
		data := pdu.Serialize()
		require.NotEmpty(t, data)

		var h Header
		h.Deserialize(data[0])
		assert.Equal(t, CmdClose, h.Cmd)

		id, _, err := ReadChannelID(data[1:], h.CbChID)
		require.NoError(t, err)
		assert.Equal(t, channelID, id)
	}
}

func TestParsePDU(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expectCmd   uint8
		expectError bool
	}{
		{name: "capability pdu", data: []byte{0x50, 0x00, 0x01, 0x00}, expectCmd: CmdCapability},
		{name: "create pdu", data: []byte{0x11, 0x01}, expectCmd: CmdCreate},
		{name: "empty data", data: []byte{}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _, _, err := ParsePDU(tt.data)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectCmd, cmd)
		})
	}
}

func TestReadChannelID(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		cbChID      uint8
		expectID    uint32
		expectError bool
	}{
		{name: "1-byte id", data: []byte{0x42, 0xAA, 0xBB}, cbChID: 0, expectID: 0x42},
		{name: "2-byte id", data: []byte{0x34, 0x12, 0xAA}, cbChID: 1, expectID: 0x1234},
		{name: "4-byte id", data: []byte{0x78, 0x56, 0x34, 0x12}, cbChID: 2, expectID: 0x12345678},
		{name: "insufficient data", data: []byte{0x01}, cbChID: 1, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, remaining, err := ReadChannelID(tt.data, tt.cbChID)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectID, id)
			assert.NotNil(t, remaining)
		})
	}
}

func TestSoftSyncRequestPDU_Deserialize(t *testing.T) {
	tests := []struct {
		name           string
		data           []byte
		expectFlags    uint8
		expectTunnels  uint16
		expectChannels int
	}{
		{
			name: "no channel list",
			data: []byte{
				0x00,       // Pad
				0x01,       // Flags: TCP_FLUSHED
				0x02, 0x00, // NumberOfTunnels
			},
			expectFlags:   SoftSyncTCPFlushed,
			expectTunnels: 2,
		},
		{
			name: "with channel list",
			data: []byte{
				0x00,       // Pad
				0x03,       // Flags: TCP_FLUSHED | CHANNEL_LIST_PRESENT
				0x01, 0x00, // NumberOfTunnels
				0x02, 0x00, // Channel count
				0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, // channel 1: id=1, tunnel=UDPFECR
				0x02, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, // channel 2: id=2, tunnel=UDPFECL
			},
			expectFlags:    SoftSyncTCPFlushed | SoftSyncChannelListPresent,
			expectTunnels:  1,
			expectChannels: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pdu SoftSyncRequestPDU
			require.NoError(t, pdu.Deserialize(bytes.NewReader(tt.data)))
			assert.Equal(t, tt.expectFlags, pdu.Flags)
			assert.Equal(t, tt.expectTunnels, pdu.NumberOfTunnels)
			assert.Len(t, pdu.Channels, tt.expectChannels)
		})
	}
}

func TestSoftSyncRequestPDU_Deserialize_TooManyChannels(t *testing.T) {
	data := []byte{
		0x00,       // Pad
		0x03,       // Flags: CHANNEL_LIST_PRESENT
		0x01, 0x00, // NumberOfTunnels
		0x01, 0x10, // Channel count = 4097, over the 1024 limit
	}
	var pdu SoftSyncRequestPDU
	err := pdu.Deserialize(bytes.NewReader(data))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "too many")
}

func TestSoftSyncRequestPDU_Deserialize_ReadErrors(t *testing.T) {
	for _, data := range [][]byte{{}, {0x00}, {0x00, 0x01}} {
		var pdu SoftSyncRequestPDU
		assert.Error(t, pdu.Deserialize(bytes.NewReader(data)))
	}
}

func TestSoftSyncResponsePDU_Serialize(t *testing.T) {
	tests := []struct {
		name   string
		pdu    SoftSyncResponsePDU
		minLen int
	}{
		{
			name:   "tcp only, no tunnels",
			pdu:    SoftSyncResponsePDU{},
			minLen: 6,
		},
		{
			name:   "with tunnels",
			pdu:    SoftSyncResponsePDU{NumberOfTunnels: 2, TunnelTypes: []uint32{TunnelTypeUDPFECR, TunnelTypeUDPFECL}},
			minLen: 14,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.pdu.Serialize()
			require.GreaterOrEqual(t, len(data), tt.minLen)

			var h Header
			h.Deserialize(data[0])
			assert.Equal(t, CmdSoftSync, h.Cmd)
		})
	}
}

func TestDataCompressedPDU_Deserialize(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		cbChID     uint8
		isFirst    bool
		expectChan uint32
		expectLen  uint32
	}{
		{
			name:       "plain data, 1-byte channel",
			data:       []byte{0x05, 0xAA, 0xBB, 0xCC},
			cbChID:     0,
			expectChan: 5,
		},
		{
			name: "data_first, 2-byte channel, with length",
			data: []byte{
				0x0A, 0x00, // channel id = 10
				0x00, 0x10, 0x00, 0x00, // length = 4096
				0xDE, 0xAD, 0xBE, 0xEF,
			},
			cbChID:     1,
			isFirst:    true,
			expectChan: 10,
			expectLen:  4096,
		},
		{
			name:       "plain data, 4-byte channel",
			data:       []byte{0x78, 0x56, 0x34, 0x12, 0xAA, 0xBB, 0xCC},
			cbChID:     2,
			expectChan: 0x12345678,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pdu DataCompressedPDU
			require.NoError(t, pdu.Deserialize(tt.data, tt.cbChID, tt.isFirst))
			assert.Equal(t, tt.expectChan, pdu.ChannelID)
			assert.Equal(t, tt.isFirst, pdu.IsFirst)
			if tt.isFirst {
				assert.Equal(t, tt.expectLen, pdu.Length)
			}
			assert.NotEmpty(t, pdu.CompressedData)
		})
	}
}

func TestDataCompressedPDU_Deserialize_DataFirstTooShort(t *testing.T) {
	data := []byte{0x01, 0x00, 0x00} // channel id + only 2 of 4 length bytes
	var pdu DataCompressedPDU
	assert.Error(t, pdu.Deserialize(data, 0, true))
}

func TestDataCompressedPDU_Decompress(t *testing.T) {
	pdu := &DataCompressedPDU{CompressedData: []byte{0x00, 'T', 'e', 's', 't'}}

	_, err := pdu.Decompress(nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no ZGFX decompressor")

	result, err := pdu.Decompress(NewZGFXDecompressor())
	require.NoError(t, err)
	assert.Equal(t, []byte("Test"), result)
}

func TestZGFXDecompressor_Uncompressed(t *testing.T) {
	d := NewZGFXDecompressor()
	result, err := d.Decompress([]byte{0x00, 'H', 'e', 'l', 'l', 'o'})
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), result)
}

func TestZGFXDecompressor_Empty(t *testing.T) {
	_, err := NewZGFXDecompressor().Decompress([]byte{})
	assert.Error(t, err)
}

func TestZGFXDecompressor_FlushedUncompressedPassesThrough(t *testing.T) {
	d := NewZGFXDecompressor()
	_, _ = d.Decompress([]byte{0x00, 'A', 'B', 'C'})

	result, err := d.Decompress([]byte{zgfxPacketFlushed, 'X', 'Y', 'Z'})
	require.NoError(t, err)
	assert.Equal(t, []byte("XYZ"), result)
}

func TestZGFXDecompressor_CompressedSegmentTooShort(t *testing.T) {
	_, err := NewZGFXDecompressor().Decompress([]byte{zgfxPacketCompressed, 0x00, 0x00})
	assert.Error(t, err)
}

func TestBitReader(t *testing.T) {
	reader := newBitReader([]byte{0xAA}) // 10101010

	bit, err := reader.readBit()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), bit)

	bit, err = reader.readBit()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), bit)

	val, err := reader.readBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0b1010), val)
}

func TestBitReader_EOF(t *testing.T) {
	reader := newBitReader([]byte{0xFF})
	for i := 0; i < 8; i++ {
		_, err := reader.readBit()
		require.NoError(t, err)
	}
	_, err := reader.readBit()
	assert.Error(t, err)
}

func TestBitReader_ReadBitsCrossesByteBoundary(t *testing.T) {
	reader := newBitReader([]byte{0xFF, 0x00})

	val, err := reader.readBits(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xF), val)

	val, err = reader.readBits(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xF0), val)
}

func TestWidthCode(t *testing.T) {
	assert.Equal(t, uint8(0), widthCode(0xFF))
	assert.Equal(t, uint8(1), widthCode(0x100))
	assert.Equal(t, uint8(1), widthCode(0xFFFF))
	assert.Equal(t, uint8(2), widthCode(0x10000))
}
