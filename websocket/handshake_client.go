package websocket

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ClientOptions configures the client side of the RFC 6455 section 4.1
// opening handshake. It covers a plain TCP/TLS dial only -- no proxy
// CONNECT tunneling, no RFC 8441 HTTP/2 bootstrap.
type ClientOptions struct {
	URL          *url.URL
	Header       http.Header
	Subprotocols []string
	Compression  Compression // Mode == CompressionDeflate offers permessage-deflate
	Parser       HTTPParser
}

// ClientHandshake drives the client half of the RFC 6455 section 4.1
// opening handshake as an explicit two-phase, resumable operation: it
// writes the request once, then Proceed is called again each time the
// transport has more bytes until the response is fully parsed and
// validated.
type ClientHandshake struct {
	opts       ClientOptions
	io         *handshakeIO
	parser     HTTPParser
	challenge  string
	wroteReq   bool
	offeredCmp bool
}

func NewClientHandshake(stream Stream, opts ClientOptions) (*ClientHandshake, error) {
	key, err := generateChallengeKey()
	if err != nil {
		return nil, err
	}
	parser := opts.Parser
	if parser == nil {
		parser = defaultHTTPParser{}
	}
	return &ClientHandshake{
		opts:      opts,
		io:        newHandshakeIO(stream),
		parser:    parser,
		challenge: key,
	}, nil
}

func (h *ClientHandshake) buildRequest() []byte {
	u := h.opts.URL
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", u.Host)
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", h.challenge)
	b.WriteString("Sec-WebSocket-Version: " + websocketVersion + "\r\n")

	if len(h.opts.Subprotocols) > 0 {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", strings.Join(h.opts.Subprotocols, ", "))
	}
	if h.opts.Compression.Mode == CompressionDeflate {
		h.offeredCmp = true
		fmt.Fprintf(&b, "Sec-WebSocket-Extensions: %s\r\n", buildDeflateOfferHeader(h.opts.Compression.Deflate))
	}
	for k, vs := range h.opts.Header {
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Proceed advances the handshake. It returns (false, nil, nil) when more
// data must arrive before the handshake can complete; on completion it
// returns (true, result, nil). Any error (including ErrWouldBlock) is
// surfaced directly -- the caller is expected to call Proceed again once
// the transport is ready.
func (h *ClientHandshake) Proceed() (bool, *HandshakeResult, error) {
	if !h.wroteReq {
		h.io.out = h.buildRequest()
		h.wroteReq = true
	}
	if err := h.io.drainWrite(); err != nil {
		return false, nil, err
	}

	if err := h.io.fillRead(); err != nil {
		return false, nil, err
	}

	n, resp, err := h.parser.ParseResponse(h.io.in.Bytes(), &http.Request{Method: "GET"})
	if err != nil {
		if err == errNeedMoreData {
			return false, nil, nil
		}
		return false, nil, &HTTPFormatError{Err: err}
	}
	h.io.in.Consume(n)

	result, err := h.validate(resp)
	if err != nil {
		return false, nil, err
	}
	result.Leftover = append([]byte(nil), h.io.in.Bytes()...)
	return true, result, nil
}

func (h *ClientHandshake) validate(resp *http.Response) (*HandshakeResult, error) {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if !headerContainsToken(resp.Header, "Connection", "upgrade") {
		return nil, &ProtocolError{Kind: MissingConnectionUpgradeHeader}
	}
	if !headerContainsToken(resp.Header, "Upgrade", "websocket") {
		return nil, &ProtocolError{Kind: MissingUpgradeWebSocketHeader}
	}
	if resp.Header.Get("Sec-WebSocket-Accept") != computeAcceptKey(h.challenge) {
		return nil, &ProtocolError{Kind: SecWebSocketAcceptKeyMismatch}
	}

	subprotocol := resp.Header.Get("Sec-WebSocket-Protocol")
	if subprotocol != "" {
		if len(h.opts.Subprotocols) == 0 {
			return nil, &ProtocolError{Kind: ServerSentSubProtocolNoneRequested}
		}
		offered := false
		for _, p := range h.opts.Subprotocols {
			if p == subprotocol {
				offered = true
				break
			}
		}
		if !offered {
			return nil, &ProtocolError{Kind: InvalidSubProtocol}
		}
	} else if len(h.opts.Subprotocols) > 0 {
		return nil, &ProtocolError{Kind: NoSubProtocol}
	}

	exts := parseExtensions(resp.Header)
	comp, err := clientNegotiateDeflateResponse(exts, h.offeredCmp)
	if err != nil {
		return nil, err
	}

	return &HandshakeResult{
		Subprotocol: subprotocol,
		Compression: comp,
		Response:    resp,
	}, nil
}
