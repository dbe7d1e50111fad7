package websocket

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Callers should compare with
// errors.Is, not ==, since some are wrapped before being returned.
var (
	// ErrConnectionClosed indicates the closing handshake finished and the
	// connection is no longer usable. It is not an error condition as such:
	// callers should treat it as end-of-stream.
	ErrConnectionClosed = errors.New("websocket: connection closed")

	// ErrAlreadyClosed indicates the caller invoked Read/Write/Flush after
	// ErrConnectionClosed was already returned. Unlike ErrConnectionClosed,
	// this is a programmer error.
	ErrAlreadyClosed = errors.New("websocket: use of closed connection")

	// ErrWouldBlock is surfaced verbatim whenever the underlying Stream's
	// Read or Write would block. It is never retried internally; the
	// caller is expected to call back in when the transport is ready.
	ErrWouldBlock = errors.New("websocket: would block")

	// ErrAttackAttempt indicates a sanity check independent of configured
	// limits failed, e.g. an absurd payload length on a frame whose opcode
	// claims an un-negotiated extension.
	ErrAttackAttempt = errors.New("websocket: attack attempt detected")

	// ErrUTF8 indicates a Text payload failed incremental UTF-8 validation.
	ErrUTF8 = errors.New("websocket: invalid utf-8")
)

// CapacityErrorKind discriminates the reason a CapacityError was returned.
type CapacityErrorKind int

const (
	// TooManyHeaders indicates the handshake read buffer could not hold
	// all the header lines the peer sent.
	TooManyHeaders CapacityErrorKind = iota
	// HeaderTooLong indicates the handshake read buffer's hard limit was
	// exceeded before a complete HTTP message was found.
	HeaderTooLong
	// MessageTooLong indicates a reassembled message (or a single frame)
	// exceeded the configured size limit.
	MessageTooLong
)

func (k CapacityErrorKind) String() string {
	switch k {
	case TooManyHeaders:
		return "too many headers"
	case HeaderTooLong:
		return "header too long"
	case MessageTooLong:
		return "message too long"
	default:
		return "capacity error"
	}
}

// CapacityError is returned when a read-side or write-side size limit is
// exceeded. It is recoverable only by the caller reconfiguring and
// reconnecting; the connection that produced it is no longer usable.
type CapacityError struct {
	Kind    CapacityErrorKind
	Size    int // observed size, when meaningful
	MaxSize int // configured limit, when meaningful
}

func (e *CapacityError) Error() string {
	if e.Kind == MessageTooLong {
		return fmt.Sprintf("websocket: message too long: %d > %d", e.Size, e.MaxSize)
	}
	return "websocket: " + e.Kind.String()
}

// ProtocolErrorKind discriminates the reason a ProtocolError was returned,
// mirroring the closed set of protocol violations this engine detects.
type ProtocolErrorKind int

const (
	WrongHTTPMethod ProtocolErrorKind = iota
	WrongHTTPVersion
	MissingConnectionUpgradeHeader
	MissingUpgradeWebSocketHeader
	MissingSecWebSocketVersionHeader
	MissingSecWebSocketKey
	SecWebSocketAcceptKeyMismatch
	InvalidSubProtocol
	NoSubProtocol
	ServerSentSubProtocolNoneRequested
	UnadvertisedExtension
	CustomResponseSuccessful
	HandshakeIncomplete
	JunkAfterRequest
	NonZeroReservedBits
	UnmaskedFrameFromClient
	MaskedFrameFromServer
	FragmentedControlFrame
	ControlFrameTooBig
	UnknownOpcode
	InvalidOpcode
	UnexpectedContinueFrame
	ExpectedFragment
	ResetWithoutClosingHandshake
	InvalidCloseSequence
	InvalidExtendedLength
)

var protocolErrorText = map[ProtocolErrorKind]string{
	WrongHTTPMethod:                     "unsupported HTTP method, only GET is allowed",
	WrongHTTPVersion:                    "HTTP version must be 1.1 or higher",
	MissingConnectionUpgradeHeader:      `no "Connection: upgrade" header`,
	MissingUpgradeWebSocketHeader:       `no "Upgrade: websocket" header`,
	MissingSecWebSocketVersionHeader:    `no "Sec-WebSocket-Version: 13" header`,
	MissingSecWebSocketKey:              `no "Sec-WebSocket-Key" header`,
	SecWebSocketAcceptKeyMismatch:       `key mismatch in "Sec-WebSocket-Accept" header`,
	InvalidSubProtocol:                  "server sent a subprotocol the client did not offer",
	NoSubProtocol:                       "client offered subprotocols but server selected none",
	ServerSentSubProtocolNoneRequested:  "server sent a subprotocol but none was requested",
	UnadvertisedExtension:               "server named an extension the client did not offer",
	CustomResponseSuccessful:            "custom handshake-reject response must not be successful",
	HandshakeIncomplete:                 "handshake not finished",
	JunkAfterRequest:                    "junk data after client request",
	NonZeroReservedBits:                 "reserved bits are non-zero",
	UnmaskedFrameFromClient:             "received an unmasked frame from client",
	MaskedFrameFromServer:               "received a masked frame from server",
	FragmentedControlFrame:              "fragmented control frame",
	ControlFrameTooBig:                  "control frame payload exceeds 125 bytes",
	UnknownOpcode:                       "unknown opcode",
	InvalidOpcode:                       "invalid opcode",
	UnexpectedContinueFrame:             "continuation frame but nothing to continue",
	ExpectedFragment:                    "received new data frame while still assembling a fragmented message",
	ResetWithoutClosingHandshake:        "connection reset without closing handshake",
	InvalidCloseSequence:                "invalid close frame payload",
	InvalidExtendedLength:               "extended payload length has the high bit set",
}

// ProtocolError indicates the peer violated the WebSocket protocol. The
// engine enqueues a Close(1002) frame and surfaces this error to the
// caller; a subsequent Flush still drains that queued Close.
type ProtocolError struct {
	Kind ProtocolErrorKind
}

func (e *ProtocolError) Error() string {
	if s, ok := protocolErrorText[e.Kind]; ok {
		return "websocket: " + s
	}
	return "websocket: protocol error"
}

// WriteBufferFullError is returned by Send when writing the message would
// push the output buffer past MaxWriteBufferSize. Message is returned so
// the caller can retry after a Flush drains some of the backlog.
type WriteBufferFullError struct {
	Message Message
}

func (e *WriteBufferFullError) Error() string {
	return "websocket: write buffer full"
}

// CloseError wraps the CloseFrame the peer (or we) sent, for callers that
// want to inspect the close code/reason of a finished connection.
type CloseError struct {
	Code   CloseCode
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket: close %d %s", e.Code, e.Reason)
}

// URLError indicates a malformed URL, unsupported scheme, missing host, or
// unsupported proxy configuration was passed to a connector.
type URLError struct {
	Msg string
}

func (e *URLError) Error() string {
	return "websocket: " + e.Msg
}

// HTTPError indicates the server returned a non-101 response during the
// opening handshake. StatusCode and Status are taken from the response the
// HTTP capability (§6) parsed.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return "websocket: http error: " + e.Status
}

// HTTPFormatError wraps a parse failure from the pluggable HTTP capability.
type HTTPFormatError struct {
	Err error
}

func (e *HTTPFormatError) Error() string {
	return "websocket: http format error: " + e.Err.Error()
}

func (e *HTTPFormatError) Unwrap() error {
	return e.Err
}
