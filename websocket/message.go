package websocket

// Message is a fully assembled WebSocket message handed to the caller by
// Conn.Read, or handed to Conn.Send to transmit. A reader never returns a
// raw-frame Message -- that variant exists only as writer input for
// callers that want to bypass the assembler (e.g. to retransmit a Frame
// captured elsewhere).
type Message struct {
	Type MessageType
	// Data holds the payload for Text/Binary/Ping/Pong messages. For Text,
	// Data is the UTF-8 bytes of the string (already validated).
	Data []byte
	// Close holds the parsed close code/reason for Type == CloseMessage.
	// It is nil if the peer's close frame carried no payload.
	Close *CloseFrame
}

// Clone returns a Message holding an independent copy of Data, so the
// caller can keep it past the next Read without risking it being reused
// internally.
func (m Message) Clone() Message {
	if m.Data == nil {
		return m
	}
	cp := make([]byte, len(m.Data))
	copy(cp, m.Data)
	m.Data = cp
	return m
}

// Text builds a Text message.
func Text(s string) Message { return Message{Type: TextMessage, Data: []byte(s)} }

// Binary builds a Binary message.
func Binary(b []byte) Message { return Message{Type: BinaryMessage, Data: b} }

// Ping builds a Ping message. Payload must be <= 125 bytes.
func Ping(payload []byte) Message { return Message{Type: PingMessage, Data: payload} }

// Pong builds a Pong message. Payload must be <= 125 bytes.
func Pong(payload []byte) Message { return Message{Type: PongMessage, Data: payload} }

// Close builds a Close message with the given code/reason.
func CloseMsg(code CloseCode, reason string) Message {
	return Message{Type: CloseMessage, Close: &CloseFrame{Code: code, Reason: reason}}
}

// incompleteMessageKind discriminates the two assemblable message kinds.
type incompleteMessageKind int

const (
	incompleteText incompleteMessageKind = iota
	incompleteBinary
)

// incompleteMessage accumulates continuation-frame payloads into a single
// message, per RFC 6455 section 5.4 fragmentation. Text messages are
// validated incrementally via stringCollector as bytes arrive, rather
// than buffering raw bytes and validating once at the end, so a Utf8
// failure can be reported as soon as
// it's unambiguous.
type incompleteMessage struct {
	kind  incompleteMessageKind
	size  int64
	bin   []byte
	strng stringCollector
}

func newIncompleteMessage(kind incompleteMessageKind) *incompleteMessage {
	return &incompleteMessage{kind: kind}
}

// extend appends payload, failing with a CapacityError if the running
// total would exceed maxMessageSize (a negative maxMessageSize disables
// the check). For text messages, payload is fed to the streaming UTF-8
// validator; an unambiguously invalid byte sequence fails immediately.
func (m *incompleteMessage) extend(payload []byte, maxMessageSize int64) error {
	m.size += int64(len(payload))
	if maxMessageSize >= 0 && m.size > maxMessageSize {
		return &CapacityError{Kind: MessageTooLong, Size: int(m.size), MaxSize: int(maxMessageSize)}
	}
	switch m.kind {
	case incompleteText:
		return m.strng.extend(payload)
	default:
		m.bin = append(m.bin, payload...)
		return nil
	}
}

// complete finalizes the accumulated payload into a Message, failing with
// ErrUTF8 if a Text message has a pending, never-completed code point.
func (m *incompleteMessage) complete() (Message, error) {
	switch m.kind {
	case incompleteText:
		s, err := m.strng.finish()
		if err != nil {
			return Message{}, err
		}
		return Message{Type: TextMessage, Data: []byte(s)}, nil
	default:
		return Message{Type: BinaryMessage, Data: m.bin}, nil
	}
}
