package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameIncomplete(t *testing.T) {
	tests := [][]byte{
		nil,
		{0x81},
		{0x81, 0xFE, 0x00}, // declares 16-bit length but missing second byte
	}
	for _, buf := range tests {
		f, n, err := ParseFrame(buf, -1)
		assert.Nil(t, f)
		assert.Zero(t, n)
		assert.NoError(t, err)
	}
}

func TestParseFrameRoundTrip(t *testing.T) {
	orig := &Frame{Fin: true, OpCode: OpText, Payload: []byte("hello")}
	b := orig.Serialize()

	f, n, err := ParseFrame(b, -1)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, len(b), n)
	assert.True(t, f.Fin)
	assert.Equal(t, OpText, f.OpCode)
	assert.Equal(t, []byte("hello"), f.Payload)
}

func TestParseFrameMaskedRoundTrip(t *testing.T) {
	key, err := newMaskKey()
	require.NoError(t, err)
	orig := &Frame{Fin: true, OpCode: OpBinary, Mask: &key, Payload: []byte("masked payload")}
	b := orig.Serialize()

	f, _, err := ParseFrame(b, -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("masked payload"), f.Payload)
}

func TestParseFrame16And64BitLengths(t *testing.T) {
	data16 := make([]byte, 200)
	f16 := &Frame{Fin: true, OpCode: OpBinary, Payload: data16}
	b16 := f16.Serialize()
	assert.Equal(t, byte(len16Marker), b16[1])
	parsed, _, err := ParseFrame(b16, -1)
	require.NoError(t, err)
	assert.Len(t, parsed.Payload, 200)

	data64 := make([]byte, 70000)
	f64 := &Frame{Fin: true, OpCode: OpBinary, Payload: data64}
	b64 := f64.Serialize()
	assert.Equal(t, byte(len64Marker), b64[1])
	parsed, _, err = ParseFrame(b64, -1)
	require.NoError(t, err)
	assert.Len(t, parsed.Payload, 70000)
}

func TestParseFrameExceedsMaxFrameSize(t *testing.T) {
	f := &Frame{Fin: true, OpCode: OpBinary, Payload: make([]byte, 1000)}
	b := f.Serialize()

	_, _, err := ParseFrame(b, 10)
	var capErr *CapacityError
	assert.ErrorAs(t, err, &capErr)
	assert.Equal(t, MessageTooLong, capErr.Kind)
}

func TestParseFrameInvalidExtendedLengthHighBit(t *testing.T) {
	buf := []byte{0x82, 0x7F, 0x80, 0, 0, 0, 0, 0, 0, 0}
	_, _, err := ParseFrame(buf, -1)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
	assert.Equal(t, InvalidExtendedLength, protoErr.Kind)
}

func TestParseFrameReservedOpcode(t *testing.T) {
	buf := []byte{0x83, 0x00} // fin, opcode 0x3 (reserved data)
	_, _, err := ParseFrame(buf, -1)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
	assert.Equal(t, InvalidOpcode, protoErr.Kind)
}

func TestFrameValidateFragmentedControl(t *testing.T) {
	f := &Frame{Fin: false, OpCode: OpPing, Payload: []byte("x")}
	err := f.validate()
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
	assert.Equal(t, FragmentedControlFrame, protoErr.Kind)
}

func TestFrameValidateControlTooBig(t *testing.T) {
	f := &Frame{Fin: true, OpCode: OpPing, Payload: make([]byte, 126)}
	err := f.validate()
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
	assert.Equal(t, ControlFrameTooBig, protoErr.Kind)
}

func TestSerializeMinimalHeader(t *testing.T) {
	f := &Frame{Fin: true, OpCode: OpText, Payload: []byte("hi")}
	b := f.Serialize()
	assert.Len(t, b, 2+2)
	assert.Equal(t, byte(OpText)|finBit, b[0])
	assert.Equal(t, byte(2), b[1])
}

func TestOpCodeClassification(t *testing.T) {
	assert.True(t, OpClose.IsControl())
	assert.True(t, OpPing.IsControl())
	assert.True(t, OpPong.IsControl())
	assert.True(t, OpText.IsData())
	assert.True(t, OpBinary.IsData())
	assert.True(t, OpContinuation.IsData())
	assert.True(t, OpCode(0x3).IsReservedData())
	assert.True(t, OpCode(0xB).IsReservedControl())
}
