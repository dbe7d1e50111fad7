package websocket

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
)

// errNeedMoreData is the sentinel HTTPParser implementations return when
// buf does not yet hold a complete HTTP message -- the handshake driver
// reads more bytes and tries again.
var errNeedMoreData = errors.New("websocket: incomplete http message")

// HTTPParser is the pluggable HTTP capability the opening handshake
// consumes. A caller can supply their own implementation (e.g. backed by
// a different HTTP library) in place of defaultHTTPParser.
type HTTPParser interface {
	// ParseRequest attempts to parse one HTTP request from the front of
	// buf, returning the number of bytes it occupies. It returns
	// errNeedMoreData if buf is an incomplete prefix of a request.
	ParseRequest(buf []byte) (n int, req *http.Request, err error)
	// ParseResponse attempts to parse one HTTP response from the front of
	// buf, matching it against forReq (as net/http requires, to know
	// whether a body is expected). errNeedMoreData signals an incomplete
	// prefix.
	ParseResponse(buf []byte, forReq *http.Request) (n int, resp *http.Response, err error)
}

// defaultHTTPParser wraps net/http.ReadRequest/ReadResponse, parsing out
// of an in-memory cursor buffer instead of a real net.Conn, so it works
// the same whether the whole message has already arrived or it's still
// trickling in.
type defaultHTTPParser struct{}

func (defaultHTTPParser) ParseRequest(buf []byte) (int, *http.Request, error) {
	size := len(buf)
	if size == 0 {
		size = 1
	}
	r := bufio.NewReaderSize(bytes.NewReader(buf), size)
	req, err := http.ReadRequest(r)
	if err != nil {
		if isIncompleteHTTPError(err, buf) {
			return 0, nil, errNeedMoreData
		}
		return 0, nil, err
	}
	return len(buf) - r.Buffered(), req, nil
}

func (defaultHTTPParser) ParseResponse(buf []byte, forReq *http.Request) (int, *http.Response, error) {
	size := len(buf)
	if size == 0 {
		size = 1
	}
	r := bufio.NewReaderSize(bytes.NewReader(buf), size)
	resp, err := http.ReadResponse(r, forReq)
	if err != nil {
		if isIncompleteHTTPError(err, buf) {
			return 0, nil, errNeedMoreData
		}
		return 0, nil, err
	}
	return len(buf) - r.Buffered(), resp, nil
}

// isIncompleteHTTPError reports whether a parse failure only means buf is
// still a prefix: net/http ran out of input, or the header block has no
// blank-line terminator yet (a cut-off first line parses as malformed
// rather than as EOF).
func isIncompleteHTTPError(err error, buf []byte) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		!bytes.Contains(buf, []byte("\r\n\r\n"))
}
