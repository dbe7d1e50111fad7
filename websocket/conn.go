package websocket

// WebSocketState is the connection's position in the RFC 6455 section 7
// closing handshake. It is a single explicit state rather than a pair of
// booleans, so every transition is a one-line assignment with no lock to
// acquire.
type WebSocketState int

const (
	// StateActive allows traffic in both directions.
	StateActive WebSocketState = iota
	// StateClosedByUs means we sent Close; incoming data frames are still
	// dispatched to the caller until the peer's Close arrives.
	StateClosedByUs
	// StateClosedByPeer means the peer's Close arrived and our reply is
	// queued; further incoming data is silently dropped.
	StateClosedByPeer
	// StateTerminated means the closing handshake is complete (or the
	// connection was reset); all operations fail with ErrAlreadyClosed.
	StateTerminated
)

func (s WebSocketState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosedByUs:
		return "closed_by_us"
	case StateClosedByPeer:
		return "closed_by_peer"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Conn is the non-blocking WebSocket protocol engine: role, frame socket,
// state, compression context, message assembler and send queues. It owns
// its Stream exclusively and is not safe for concurrent use -- exactly one
// goroutine may call its methods at a time.
//
// Conn never blocks and holds no locks: every suspension point -- a read
// with nothing yet available, a write the transport isn't ready to accept
// -- returns ErrWouldBlock to the caller, who is expected to retry once the
// underlying Stream is ready again.
type Conn struct {
	role   Role
	socket *frameSocket
	state  WebSocketState
	config Config
	comp   *compressionContext

	// Assembler state for the in-progress fragmented message, if any.
	// Exactly one of incomplete / compressedBuf is active at a time.
	incomplete    *incompleteMessage
	incomingComp  bool
	compressedBuf []byte
	compressedKind incompleteMessageKind

	// Pending sends, drained in the fixed order pong, sendQueue, closeBytes.
	// Each entry already holds its
	// final on-the-wire bytes (masked/compressed/rsv1 already applied) so
	// flushPending never needs to re-derive anything -- only hand bytes to
	// the frame socket.
	pong       []byte
	sendQueue  [][]byte
	closeBytes []byte
	closeSent  bool // our close frame has been handed to the socket

	queuedBytes int // bytes held in pong+sendQueue+closeBytes, not yet handed to socket
}

// NewConn wraps stream in a WebSocket engine playing role, configured by cfg.
func NewConn(stream Stream, role Role, cfg Config) *Conn {
	return &Conn{
		role:   role,
		socket: newFrameSocket(stream, cfg.maxFrameSize(), cfg.writeBufferSize()),
		state:  StateActive,
		config: cfg,
		comp:   newCompressionContext(cfg.Compression, role),
	}
}

// Role reports which side of the connection this engine plays.
func (c *Conn) Role() Role { return c.role }

// State reports the current closing-handshake state.
func (c *Conn) State() WebSocketState { return c.state }

// PrimeRead seeds the frame socket with bytes already read past the
// opening handshake's terminating CRLFCRLF, e.g. WebSocket frame bytes
// that arrived in the same TCP segment as the handshake response. A
// caller that owns both the handshake and the resulting Conn calls this
// once with HandshakeResult.Leftover before the first Read.
func (c *Conn) PrimeRead(leftover []byte) {
	c.socket.primeRead(leftover)
}

// Read returns the next Message, or ErrConnectionClosed once the closing
// handshake has finished, or ErrAlreadyClosed if called again afterward.
// ErrWouldBlock propagates from the stream without any state change; the
// caller is expected to call Read again once the transport is ready.
func (c *Conn) Read() (Message, error) {
	if c.state == StateTerminated {
		return Message{}, ErrAlreadyClosed
	}

	if err := c.flushPending(); err != nil && err != ErrWouldBlock {
		return Message{}, c.fail(err)
	}

	for {
		f, err := c.socket.ReadFrame()
		if err != nil {
			return Message{}, c.fail(err)
		}
		if f == nil {
			return Message{}, c.handleEOF()
		}

		msg, deliver, herr := c.handleFrame(f)
		if herr != nil {
			return Message{}, c.fail(herr)
		}
		if deliver {
			return msg, nil
		}
	}
}

// Send transmits msg as a single frame (no producer-side fragmentation;
// application-level streaming belongs at the caller, framed as separate
// messages). A Close message delegates to Close. WriteBufferFullError is
// returned, with msg attached, if sending would exceed MaxWriteBufferSize.
func (c *Conn) Send(msg Message) error {
	if msg.Type == CloseMessage {
		code, reason := closeFields(msg)
		return c.Close(code, reason)
	}
	if c.state != StateActive {
		return ErrAlreadyClosed
	}
	if err := c.enqueueMessage(msg); err != nil {
		return err
	}
	return c.Flush()
}

// Write enqueues msg and makes a best-effort partial flush, for batching
// several messages before a single explicit Flush.
func (c *Conn) Write(msg Message) error {
	if msg.Type == CloseMessage {
		code, reason := closeFields(msg)
		return c.Close(code, reason)
	}
	if c.state != StateActive {
		return ErrAlreadyClosed
	}
	if err := c.enqueueMessage(msg); err != nil {
		return err
	}
	if err := c.flushPending(); err != nil && err != ErrWouldBlock {
		return err
	}
	return nil
}

// Flush drains the output buffer. For the server, once the closing
// handshake's reply has been fully flushed, the connection is terminated
// and ErrConnectionClosed is returned: RFC 6455 section 7.1.1 has the
// server close the TCP connection immediately after sending its Close
// frame, while the client instead waits for the peer to close the
// transport.
func (c *Conn) Flush() error {
	if c.state == StateTerminated {
		return ErrAlreadyClosed
	}
	if err := c.flushPending(); err != nil {
		return err
	}
	if c.role == RoleServer && c.state == StateClosedByPeer && c.closeSent {
		c.state = StateTerminated
		return ErrConnectionClosed
	}
	return nil
}

// Close initiates the closing handshake if still Active (queuing a Close
// frame and transitioning to ClosedByUs); it is idempotent otherwise. It
// always attempts a flush before returning.
func (c *Conn) Close(code CloseCode, reason string) error {
	if c.state == StateActive {
		c.state = StateClosedByUs
		if err := c.queueClose(code, reason); err != nil {
			return err
		}
	}
	return c.Flush()
}

func closeFields(msg Message) (CloseCode, string) {
	if msg.Close == nil {
		return CloseNormal, ""
	}
	return msg.Close.Code, msg.Close.Reason
}

// fail auto-closes the connection on a protocol violation: a Protocol or
// Utf8 error encountered while Active queues a Close(1002 or 1007) reply
// before surfacing the original error, so a subsequent Flush still drains
// it even though the caller already saw the failure. ErrWouldBlock passes
// through untouched -- it is not a failure.
func (c *Conn) fail(err error) error {
	if err == ErrWouldBlock {
		return err
	}
	if c.state != StateActive {
		return err
	}
	switch e := err.(type) {
	case *ProtocolError:
		_ = c.queueClose(CloseProtocol, e.Error())
	default:
		if err == ErrUTF8 {
			_ = c.queueClose(CloseInvalidPayload, "invalid utf-8")
		}
	}
	return err
}

// handleEOF classifies a clean transport EOF. Expected after either side
// has initiated closing; unexpected ("reset without closing handshake")
// if it arrives while still Active.
func (c *Conn) handleEOF() error {
	prev := c.state
	c.state = StateTerminated
	if prev == StateClosedByUs || prev == StateClosedByPeer {
		return ErrConnectionClosed
	}
	return &ProtocolError{Kind: ResetWithoutClosingHandshake}
}

// handleFrame validates and dispatches one parsed frame. deliver reports
// whether msg should be returned to the caller now; when false, the
// caller's read loop continues to the next frame.
func (c *Conn) handleFrame(f *Frame) (msg Message, deliver bool, err error) {
	if err := c.validateReserved(f); err != nil {
		return Message{}, false, err
	}
	if err := c.validateMasking(f); err != nil {
		return Message{}, false, err
	}
	if f.OpCode.IsControl() {
		return c.handleControlFrame(f)
	}
	return c.handleDataFrame(f)
}

// validateReserved enforces that rsv2/rsv3 are always zero, and that rsv1
// is set only on the first frame of a data message when permessage-deflate
// is negotiated -- never on control frames, never on a continuation, per
// RFC 6455 section 5.2 and RFC 7692 section 6.
func (c *Conn) validateReserved(f *Frame) error {
	if f.RSV2 || f.RSV3 {
		return &ProtocolError{Kind: NonZeroReservedBits}
	}
	if !f.RSV1 {
		return nil
	}
	if f.OpCode.IsControl() {
		return &ProtocolError{Kind: NonZeroReservedBits}
	}
	if c.comp == nil || !c.comp.negotiated {
		return &ProtocolError{Kind: NonZeroReservedBits}
	}
	if f.OpCode == OpContinuation {
		return &ProtocolError{Kind: NonZeroReservedBits}
	}
	return nil
}

// validateMasking enforces RFC 6455's masking direction: client frames
// must arrive masked (unless the caller opted into AcceptUnmaskedFrames),
// server frames must arrive unmasked.
func (c *Conn) validateMasking(f *Frame) error {
	switch c.role {
	case RoleServer:
		if f.Mask == nil && !c.config.AcceptUnmaskedFrames {
			return &ProtocolError{Kind: UnmaskedFrameFromClient}
		}
	case RoleClient:
		if f.Mask != nil {
			return &ProtocolError{Kind: MaskedFrameFromServer}
		}
	}
	return nil
}

func (c *Conn) handleControlFrame(f *Frame) (Message, bool, error) {
	switch f.OpCode {
	case OpClose:
		return c.handleCloseFrame(f)
	case OpPing:
		if c.state != StateActive {
			return Message{}, false, nil
		}
		if err := c.queuePong(f.Payload); err != nil {
			return Message{}, false, err
		}
		return Message{Type: PingMessage, Data: f.Payload}, true, nil
	case OpPong:
		if c.state != StateActive {
			return Message{}, false, nil
		}
		return Message{Type: PongMessage, Data: f.Payload}, true, nil
	default:
		return Message{}, false, &ProtocolError{Kind: InvalidOpcode}
	}
}

// handleCloseFrame implements the RFC 6455 section 7.1.5 close-handshake
// transitions: a normalised reply code (Normal if the peer's code was valid
// or absent, Protocol otherwise), and a state transition that depends on
// whether we had already initiated our own close.
func (c *Conn) handleCloseFrame(f *Frame) (Message, bool, error) {
	cf, perr := ParseCloseMessage(f.Payload)
	valid := perr == nil && (cf.Code == CloseNoStatus || cf.Code.IsAllowed())

	switch c.state {
	case StateActive:
		replyCode := CloseNormal
		if !valid {
			replyCode = CloseProtocol
		}
		c.state = StateClosedByPeer
		if err := c.queueClose(replyCode, ""); err != nil {
			return Message{}, false, err
		}
		info := cf
		if !valid {
			info = CloseFrame{Code: CloseProtocol}
		}
		return Message{Type: CloseMessage, Close: &info}, true, nil
	case StateClosedByUs:
		c.state = StateTerminated
		return Message{}, false, ErrConnectionClosed
	default:
		return Message{}, false, nil
	}
}

// handleDataFrame feeds a data frame into the fragment assembler (or the
// raw-compressed-bytes accumulator when permessage-deflate applies to
// this message), returning the completed Message once fin arrives.
func (c *Conn) handleDataFrame(f *Frame) (Message, bool, error) {
	if c.state == StateClosedByPeer || c.state == StateTerminated {
		return Message{}, false, nil
	}

	switch f.OpCode {
	case OpText, OpBinary:
		if c.incomplete != nil || c.compressedBuf != nil {
			return Message{}, false, &ProtocolError{Kind: ExpectedFragment}
		}
		kind := incompleteBinary
		if f.OpCode == OpText {
			kind = incompleteText
		}
		if f.RSV1 {
			c.incomingComp = true
			c.compressedKind = kind
			c.compressedBuf = append([]byte{}, f.Payload...)
		} else {
			c.incomingComp = false
			c.incomplete = newIncompleteMessage(kind)
			if err := c.incomplete.extend(f.Payload, c.config.maxMessageSize()); err != nil {
				return Message{}, false, err
			}
		}
	case OpContinuation:
		if c.incomplete == nil && c.compressedBuf == nil {
			return Message{}, false, &ProtocolError{Kind: UnexpectedContinueFrame}
		}
		if c.incomingComp {
			total := len(c.compressedBuf) + len(f.Payload)
			if max := c.config.maxMessageSize(); max >= 0 && int64(total) > max {
				return Message{}, false, &CapacityError{Kind: MessageTooLong, Size: total, MaxSize: int(max)}
			}
			c.compressedBuf = append(c.compressedBuf, f.Payload...)
		} else {
			if err := c.incomplete.extend(f.Payload, c.config.maxMessageSize()); err != nil {
				return Message{}, false, err
			}
		}
	default:
		return Message{}, false, &ProtocolError{Kind: InvalidOpcode}
	}

	if !f.Fin {
		return Message{}, false, nil
	}
	msg, err := c.finalizeMessage()
	if err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}

// finalizeMessage produces the completed Message once a message's final
// frame has arrived, inflating accumulated compressed bytes in one shot
// per RFC 7692, section 7.2.2: fragments of a compressed message are not
// individually decompressible, so all fragment payloads are concatenated,
// the 00 00 ff ff trailer is appended, and the whole thing is inflated at
// once.
func (c *Conn) finalizeMessage() (Message, error) {
	if c.incomingComp {
		raw := c.compressedBuf
		kind := c.compressedKind
		c.compressedBuf = nil
		c.incomingComp = false

		data, err := c.comp.in.decompressMessage(raw)
		if err != nil {
			return Message{}, err
		}
		if max := c.config.maxMessageSize(); max >= 0 && int64(len(data)) > max {
			return Message{}, &CapacityError{Kind: MessageTooLong, Size: len(data), MaxSize: int(max)}
		}
		if kind == incompleteText {
			if !ValidateUTF8(data) {
				return Message{}, ErrUTF8
			}
			return Message{Type: TextMessage, Data: data}, nil
		}
		return Message{Type: BinaryMessage, Data: data}, nil
	}

	msg, err := c.incomplete.complete()
	c.incomplete = nil
	return msg, err
}

// serializeOutFrame builds and serializes a single outgoing frame,
// applying a fresh client mask if we are the client (server frames are
// never masked). The client masks a copy, so the caller's payload is left
// unchanged.
func (c *Conn) serializeOutFrame(op OpCode, fin, rsv1 bool, payload []byte) ([]byte, error) {
	f := &Frame{Fin: fin, RSV1: rsv1, OpCode: op, Payload: payload}
	if c.role == RoleClient {
		key, err := newMaskKey()
		if err != nil {
			return nil, err
		}
		f.Payload = append([]byte(nil), payload...)
		f.Mask = &key
	}
	return f.Serialize(), nil
}

// queuePong sets the single OOB pong slot, overwriting any previous
// pending pong per RFC 6455, section 5.5.3.
func (c *Conn) queuePong(payload []byte) error {
	b, err := c.serializeOutFrame(OpPong, true, false, payload)
	if err != nil {
		return err
	}
	c.queuedBytes -= len(c.pong)
	c.pong = b
	c.queuedBytes += len(b)
	return nil
}

// queueClose sets the single pending Close frame, a no-op if one is
// already queued or already handed to the socket (Close is idempotent
// once initiated).
func (c *Conn) queueClose(code CloseCode, reason string) error {
	if c.closeBytes != nil || c.closeSent {
		return nil
	}
	b, err := c.serializeOutFrame(OpClose, true, false, FormatCloseMessage(code, reason))
	if err != nil {
		return err
	}
	c.closeBytes = b
	c.queuedBytes += len(b)
	return nil
}

// encodePayload builds the opcode, on-the-wire payload, and rsv1 bit for a
// user-supplied Message, compressing data frames when negotiated.
// Control-frame payloads are never compressed.
func (c *Conn) encodePayload(msg Message) (OpCode, []byte, bool, error) {
	var op OpCode
	switch msg.Type {
	case TextMessage:
		op = OpText
	case BinaryMessage:
		op = OpBinary
	case PingMessage:
		op = OpPing
	case PongMessage:
		op = OpPong
	default:
		return 0, nil, false, &ProtocolError{Kind: InvalidOpcode}
	}

	if op.IsControl() {
		if len(msg.Data) > maxControlPayload {
			return 0, nil, false, &ProtocolError{Kind: ControlFrameTooBig}
		}
		return op, msg.Data, false, nil
	}

	if c.comp != nil && c.comp.negotiated {
		compressed, err := c.comp.out.compressMessage(msg.Data)
		if err != nil {
			return 0, nil, false, err
		}
		return op, compressed, true, nil
	}
	return op, msg.Data, false, nil
}

// enqueueMessage appends msg's serialized frame to the user send queue,
// refusing with WriteBufferFullError if doing so would push total pending
// output past MaxWriteBufferSize.
func (c *Conn) enqueueMessage(msg Message) error {
	op, payload, rsv1, err := c.encodePayload(msg)
	if err != nil {
		return err
	}
	b, err := c.serializeOutFrame(op, true, rsv1, payload)
	if err != nil {
		return err
	}
	if max := c.config.MaxWriteBufferSize; max > 0 {
		pending := c.queuedBytes + (len(c.socket.out) - c.socket.outPos)
		if pending+len(b) > max {
			return &WriteBufferFullError{Message: msg}
		}
	}
	c.sendQueue = append(c.sendQueue, b)
	c.queuedBytes += len(b)
	return nil
}

// flushPending hands queued frames to the frame socket in the fixed order
// (OOB pong, user send queue, Close) and drains the socket. Each item is
// removed from its queue as soon as it is appended to the socket's output
// buffer -- not when the stream accepts it -- so a WouldBlock from the
// socket's own drain never causes an item to be resent.
func (c *Conn) flushPending() error {
	if c.pong != nil {
		n := len(c.pong)
		if err := c.socket.WriteRaw(c.pong); err != nil {
			return err
		}
		c.pong = nil
		c.queuedBytes -= n
	}
	for len(c.sendQueue) > 0 {
		b := c.sendQueue[0]
		if err := c.socket.WriteRaw(b); err != nil {
			return err
		}
		c.sendQueue = c.sendQueue[1:]
		c.queuedBytes -= len(b)
	}
	if c.closeBytes != nil {
		b := c.closeBytes
		if err := c.socket.WriteRaw(b); err != nil {
			return err
		}
		c.closeBytes = nil
		c.closeSent = true
		c.queuedBytes -= len(b)
	}
	return c.socket.Flush()
}
