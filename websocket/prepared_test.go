package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPreparedMessage(t *testing.T) {
	tests := []struct {
		name        string
		messageType MessageType
		data        []byte
		expectErr   bool
	}{
		{name: "Valid text message", messageType: TextMessage, data: []byte("hello")},
		{name: "Valid binary message", messageType: BinaryMessage, data: []byte{0x01, 0x02, 0x03}},
		{name: "Invalid message type", messageType: PingMessage, data: []byte("ping"), expectErr: true},
		{name: "Empty data", messageType: TextMessage, data: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, err := NewPreparedMessage(tt.messageType, tt.data)
			if tt.expectErr {
				assert.Nil(t, pm)
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, pm)
			assert.Equal(t, tt.messageType, pm.msgType)
			assert.Equal(t, tt.data, pm.data)
		})
	}
}

func TestPreparedMessageFrameCaching(t *testing.T) {
	pm, err := NewPreparedMessage(TextMessage, []byte("hello"))
	require.NoError(t, err)

	key := prepareKey{role: RoleServer, compressed: false}
	frame1, err := pm.frame(key, &compressionContext{})
	require.NoError(t, err)
	frame2, err := pm.frame(key, &compressionContext{})
	require.NoError(t, err)

	assert.Equal(t, frame1, frame2)
	assert.Len(t, pm.frames, 1)
	assert.Equal(t, byte(OpText)|finBit, frame1[0])
	assert.Equal(t, byte(5), frame1[1])
}

func TestPreparedMessageFrameDifferentKeys(t *testing.T) {
	pm, err := NewPreparedMessage(TextMessage, []byte("hello"))
	require.NoError(t, err)

	serverFrame, err := pm.frame(prepareKey{role: RoleServer}, &compressionContext{})
	require.NoError(t, err)
	clientFrame, err := pm.frame(prepareKey{role: RoleClient}, &compressionContext{})
	require.NoError(t, err)

	assert.NotEqual(t, serverFrame, clientFrame)
	assert.True(t, clientFrame[1]&maskBit != 0)
	assert.True(t, serverFrame[1]&maskBit == 0)
	assert.Len(t, pm.frames, 2)
}

func TestPreparedMessageFrameCompressed(t *testing.T) {
	pm, err := NewPreparedMessage(TextMessage, []byte("compressible data compressible data"))
	require.NoError(t, err)

	cfg := Compression{Mode: CompressionDeflate}
	comp := newCompressionContext(cfg, RoleServer)

	frame, err := pm.frame(prepareKey{role: RoleServer, compressed: true}, comp)
	require.NoError(t, err)
	assert.Equal(t, byte(OpText)|finBit|rsv1Bit, frame[0])

	uncompressed, err := pm.frame(prepareKey{role: RoleServer, compressed: false}, comp)
	require.NoError(t, err)
	assert.NotEqual(t, frame, uncompressed)
}

func TestWritePreparedMessage(t *testing.T) {
	client, server := newConnPair(NewConfig(), NewConfig())

	pm, err := NewPreparedMessage(TextMessage, []byte("prepared hello"))
	require.NoError(t, err)

	done := make(chan Message, 1)
	go func() {
		msg, _ := client.Read()
		done <- msg
	}()

	require.NoError(t, server.WritePreparedMessage(pm))
	msg := <-done
	assert.Equal(t, TextMessage, msg.Type)
	assert.Equal(t, "prepared hello", string(msg.Data))
}

func TestWritePreparedMessageRejectedWhenClosed(t *testing.T) {
	client, server := newConnPair(NewConfig(), NewConfig())
	_ = client
	server.state = StateTerminated

	pm, err := NewPreparedMessage(TextMessage, []byte("test"))
	require.NoError(t, err)

	err = server.WritePreparedMessage(pm)
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}
