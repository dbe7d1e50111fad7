package websocket

import (
	"encoding/binary"
)

// Frame header bits and sizing constants, per RFC 6455, section 5.2.
const (
	finBit  = 1 << 7
	rsv1Bit = 1 << 6
	rsv2Bit = 1 << 5
	rsv3Bit = 1 << 4
	opMask  = 0x0f

	maskBit    = 1 << 7
	lenMask    = 0x7f
	len16Marker = 126
	len64Marker = 127

	maxControlPayload = 125
	maxHeaderSize     = 14 // 2 base + 8 extended length + 4 mask
)

// Frame is one RFC 6455 WebSocket frame: header bits plus payload. It is
// the unit the codec parses from and serializes to the wire; the message
// assembler (message.go) joins frames into a Message, and control frames
// are consumed directly by the state machine (conn.go).
type Frame struct {
	Fin     bool
	RSV1    bool // set by permessage-deflate on the first frame of a compressed message
	RSV2    bool
	RSV3    bool
	OpCode  OpCode
	Mask    *[4]byte // non-nil if the frame carries/requires a mask
	Payload []byte
}

// validate enforces the RFC 6455 section 5.5 structural invariants on
// control frames, regardless of where a Frame came from (parsed off the
// wire, or built by the state machine before serializing).
func (f *Frame) validate() error {
	if f.OpCode.IsControl() {
		if !f.Fin {
			return &ProtocolError{Kind: FragmentedControlFrame}
		}
		if len(f.Payload) > maxControlPayload {
			return &ProtocolError{Kind: ControlFrameTooBig}
		}
	}
	return nil
}

// ParseFrame attempts to parse one complete frame from the front of buf.
// It returns (nil, 0, nil) when buf does not yet contain a complete frame
// (buf is left untouched by the caller in that case); otherwise it returns
// the frame and the number of bytes it consumed from the front of buf.
//
// maxFrameSize bounds the payload length before any allocation happens, so
// a malicious declared length cannot itself exhaust memory; a negative
// maxFrameSize disables the check.
func ParseFrame(buf []byte, maxFrameSize int64) (*Frame, int, error) {
	if len(buf) < 2 {
		return nil, 0, nil
	}

	b0, b1 := buf[0], buf[1]
	f := &Frame{
		Fin:    b0&finBit != 0,
		RSV1:   b0&rsv1Bit != 0,
		RSV2:   b0&rsv2Bit != 0,
		RSV3:   b0&rsv3Bit != 0,
		OpCode: OpCode(b0 & opMask),
	}

	masked := b1&maskBit != 0
	pos := 2
	length := int64(b1 & lenMask)

	switch length {
	case len16Marker:
		if len(buf) < pos+2 {
			return nil, 0, nil
		}
		length = int64(binary.BigEndian.Uint16(buf[pos : pos+2]))
		pos += 2
	case len64Marker:
		if len(buf) < pos+8 {
			return nil, 0, nil
		}
		raw := binary.BigEndian.Uint64(buf[pos : pos+8])
		if raw&(1<<63) != 0 {
			return nil, 0, &ProtocolError{Kind: InvalidExtendedLength}
		}
		length = int64(raw)
		pos += 8
	}

	if maxFrameSize >= 0 && length > maxFrameSize {
		return nil, 0, &CapacityError{Kind: MessageTooLong, Size: int(length), MaxSize: int(maxFrameSize)}
	}

	if masked {
		if len(buf) < pos+4 {
			return nil, 0, nil
		}
		var key [4]byte
		copy(key[:], buf[pos:pos+4])
		f.Mask = &key
		pos += 4
	}

	if int64(len(buf)-pos) < length {
		return nil, 0, nil
	}

	if f.OpCode.IsReservedData() || f.OpCode.IsReservedControl() {
		return nil, 0, &ProtocolError{Kind: InvalidOpcode}
	}

	f.Payload = make([]byte, length)
	copy(f.Payload, buf[pos:pos+int(length)])
	pos += int(length)

	if f.Mask != nil {
		maskBytes(*f.Mask, 0, f.Payload)
	}

	if err := f.validate(); err != nil {
		return nil, 0, err
	}

	return f, pos, nil
}

// Serialize encodes f in the canonical minimal header form (never using
// 126/127 when a shorter length field would do). If f.Mask is set, the
// payload is masked in place before being appended -- masking is its own
// inverse, so this mutates f.Payload to its on-the-wire representation.
func (f *Frame) Serialize() []byte {
	length := len(f.Payload)

	var header [maxHeaderSize]byte
	b0 := byte(f.OpCode) & opMask
	if f.Fin {
		b0 |= finBit
	}
	if f.RSV1 {
		b0 |= rsv1Bit
	}
	if f.RSV2 {
		b0 |= rsv2Bit
	}
	if f.RSV3 {
		b0 |= rsv3Bit
	}
	header[0] = b0

	headerLen := 2
	switch {
	case length < len16Marker:
		header[1] = byte(length)
	case length <= 0xFFFF:
		header[1] = len16Marker
		binary.BigEndian.PutUint16(header[2:4], uint16(length))
		headerLen = 4
	default:
		header[1] = len64Marker
		binary.BigEndian.PutUint64(header[2:10], uint64(length))
		headerLen = 10
	}

	if f.Mask != nil {
		header[1] |= maskBit
		copy(header[headerLen:headerLen+4], f.Mask[:])
		headerLen += 4
		maskBytes(*f.Mask, 0, f.Payload)
	}

	out := make([]byte, headerLen+length)
	copy(out, header[:headerLen])
	copy(out[headerLen:], f.Payload)
	return out
}

// newDataFrame builds a single unmasked, uncompressed data frame; masking
// (for client role) and RSV1 (for compression) are applied by the caller
// before serializing, since both depend on connection-level state.
func newDataFrame(op OpCode, fin bool, payload []byte) *Frame {
	return &Frame{Fin: fin, OpCode: op, Payload: payload}
}

// newControlFrame builds a final, unmasked control frame.
func newControlFrame(op OpCode, payload []byte) *Frame {
	return &Frame{Fin: true, OpCode: op, Payload: payload}
}
