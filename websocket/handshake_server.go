package websocket

import (
	"fmt"
	"net/http"
	"strings"
)

// ServerAccept is what a ServerCallback returns to accept the upgrade:
// the negotiated subprotocol (if any) and any extra response headers to
// add to the 101 response.
type ServerAccept struct {
	Subprotocol string
	Header      http.Header
}

// ServerCallback inspects the parsed upgrade request and either returns a
// ServerAccept to proceed, or a non-nil *http.Response to reject the
// handshake with a caller-chosen response. A rejection response must not
// carry a 2xx status: RFC 6455 section 4.2.2 mandates the final response
// be either the 101 this engine builds, or a non-successful status
// explaining the refusal.
type ServerCallback func(r *http.Request) (*ServerAccept, *http.Response)

// ServerHandshake drives the server half of the RFC 6455 section 4.2
// opening handshake as a resumable read-then-write operation over a
// Stream.
type ServerHandshake struct {
	opts          ServerOptions
	io            *handshakeIO
	parser        HTTPParser
	pendingResult *HandshakeResult
}

// ServerOptions configures server-side negotiation policy.
type ServerOptions struct {
	Compression Compression // policy: Mode == CompressionDeflate enables negotiation
	CheckOrigin func(r *http.Request) bool
	Parser      HTTPParser
}

func NewServerHandshake(stream Stream, opts ServerOptions) *ServerHandshake {
	parser := opts.Parser
	if parser == nil {
		parser = defaultHTTPParser{}
	}
	return &ServerHandshake{opts: opts, io: newHandshakeIO(stream), parser: parser}
}

// Proceed reads and validates the request, invokes cb, and writes the
// response. Like ClientHandshake.Proceed, it returns (false, nil, nil)
// when more input is needed and must be called again once the transport
// has more bytes to offer; ErrWouldBlock during the write phase likewise
// means "call again once writable".
func (h *ServerHandshake) Proceed(cb ServerCallback) (bool, *HandshakeResult, error) {
	if h.io.out == nil {
		if err := h.io.fillRead(); err != nil {
			return false, nil, err
		}

		n, req, err := h.parser.ParseRequest(h.io.in.Bytes())
		if err != nil {
			if err == errNeedMoreData {
				return false, nil, nil
			}
			return false, nil, &HTTPFormatError{Err: err}
		}
		h.io.in.Consume(n)

		result, resp, err := h.handle(req, cb)
		if err != nil {
			return false, nil, err
		}
		h.io.out = []byte(renderResponse(resp))
		if result != nil {
			result.Request = req
		}
		h.pendingResult = result
	}

	if err := h.io.drainWrite(); err != nil {
		return false, nil, err
	}
	// A nil pendingResult here means handle already wrote a legitimate
	// rejection response (origin check or a caller-chosen non-2xx reply):
	// the handshake is done, just with nothing to hand back to build a
	// Conn from. The only way to end up here with an *invalid* rejection
	// is caught earlier, inside handle, before h.io.out is ever set.
	if h.pendingResult == nil {
		return true, nil, nil
	}
	h.pendingResult.Leftover = append([]byte(nil), h.io.in.Bytes()...)
	return true, h.pendingResult, nil
}

// ProceedFromRequest is Proceed's entry point for callers that arrive via
// net/http and a hijacked ResponseWriter: req has already been read and
// parsed by net/http's own server loop, so there is nothing left to parse
// off the stream -- only handle's validation/negotiation and the response
// write remain. This is what lets a caller sit wsnet behind an ordinary
// http.Handler (e.g. to share a listener and router with plain HTTP
// endpoints) instead of owning the raw net.Conn from accept onward.
func (h *ServerHandshake) ProceedFromRequest(req *http.Request, cb ServerCallback) (bool, *HandshakeResult, error) {
	if h.io.out == nil {
		result, resp, err := h.handle(req, cb)
		if err != nil {
			return false, nil, err
		}
		h.io.out = []byte(renderResponse(resp))
		if result != nil {
			result.Request = req
		}
		h.pendingResult = result
	}

	if err := h.io.drainWrite(); err != nil {
		return false, nil, err
	}
	if h.pendingResult == nil {
		return true, nil, nil
	}
	h.pendingResult.Leftover = append([]byte(nil), h.io.in.Bytes()...)
	return true, h.pendingResult, nil
}

// handle validates the request per RFC 6455 §4.2.1, invokes cb, and
// builds the response that Proceed will serialize and write. A nil
// *HandshakeResult paired with a nil error means the handshake was
// rejected, by the origin check (403) or by cb, with a valid (non-2xx)
// response that has already been prepared for writing.
func (h *ServerHandshake) handle(req *http.Request, cb ServerCallback) (*HandshakeResult, *http.Response, error) {
	if req.Method != http.MethodGet {
		return nil, nil, &ProtocolError{Kind: WrongHTTPMethod}
	}
	if !req.ProtoAtLeast(1, 1) {
		return nil, nil, &ProtocolError{Kind: WrongHTTPVersion}
	}
	if !headerContainsToken(req.Header, "Connection", "upgrade") {
		return nil, nil, &ProtocolError{Kind: MissingConnectionUpgradeHeader}
	}
	if !headerContainsToken(req.Header, "Upgrade", "websocket") {
		return nil, nil, &ProtocolError{Kind: MissingUpgradeWebSocketHeader}
	}
	if req.Header.Get("Sec-WebSocket-Version") != websocketVersion {
		return nil, nil, &ProtocolError{Kind: MissingSecWebSocketVersionHeader}
	}
	challengeKey := req.Header.Get("Sec-WebSocket-Key")
	if challengeKey == "" {
		return nil, nil, &ProtocolError{Kind: MissingSecWebSocketKey}
	}
	checkOrigin := h.opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = checkSameOrigin
	}
	if !checkOrigin(req) {
		resp := &http.Response{StatusCode: http.StatusForbidden, Status: "403 Forbidden", Header: http.Header{}}
		return nil, resp, nil
	}

	accept, reject := cb(req)
	if reject != nil {
		if reject.StatusCode >= 200 && reject.StatusCode < 300 {
			return nil, nil, &ProtocolError{Kind: CustomResponseSuccessful}
		}
		return nil, reject, nil
	}
	if accept == nil {
		accept = &ServerAccept{}
	}

	offered := Subprotocols(req)
	if accept.Subprotocol != "" {
		found := false
		for _, p := range offered {
			if p == accept.Subprotocol {
				found = true
				break
			}
		}
		if !found {
			return nil, nil, &ProtocolError{Kind: InvalidSubProtocol}
		}
	}

	negotiated, deflateCfg := serverNegotiateDeflate(parseExtensions(req.Header), h.opts.Compression)
	comp := Compression{Mode: CompressionNone}
	if negotiated {
		comp = Compression{Mode: CompressionDeflate, Deflate: deflateCfg}
	}

	respHeader := http.Header{}
	respHeader.Set("Upgrade", "websocket")
	respHeader.Set("Connection", "Upgrade")
	respHeader.Set("Sec-WebSocket-Accept", computeAcceptKey(challengeKey))
	if accept.Subprotocol != "" {
		respHeader.Set("Sec-WebSocket-Protocol", accept.Subprotocol)
	}
	if negotiated {
		respHeader.Set("Sec-WebSocket-Extensions", buildServerDeflateResponseHeader(deflateCfg))
	}
	for k, vs := range accept.Header {
		for _, v := range vs {
			respHeader.Add(k, v)
		}
	}

	resp := &http.Response{
		StatusCode: http.StatusSwitchingProtocols,
		Status:     "101 Switching Protocols",
		Header:     respHeader,
	}
	return &HandshakeResult{Subprotocol: accept.Subprotocol, Compression: comp}, resp, nil
}

// renderResponse writes a status line and headers manually, without a
// body: net/http's http.Response.Write assumes a request/response body
// round trip that doesn't fit a 101 switch.
func renderResponse(resp *http.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %s\r\n", resp.Status)
	for k, vs := range resp.Header {
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	b.WriteString("\r\n")
	return b.String()
}
