package wsnet

import (
	"errors"
	"io"
	"net/http"

	"github.com/vitalvas/wsforge/websocket"
)

// AcceptHTTP upgrades an in-flight net/http request: hijack the
// connection, then write the handshake response directly to the raw
// conn. Unlike Accept, the request has already been read and routed by
// net/http itself (so it can sit behind an ordinary http.Handler / wsmux
// route next to plain HTTP endpoints); only
// ServerHandshake.ProceedFromRequest's validation, negotiation, and
// response-write remain.
//
// A nil, nil, nil return means cb (or ServerOptions.CheckOrigin) rejected
// the upgrade: a response was already written and the hijacked conn
// closed.
func AcceptHTTP(w http.ResponseWriter, r *http.Request, opts websocket.ServerOptions, cfg websocket.Config, cb websocket.ServerCallback, aopts AcceptOptions) (*websocket.Conn, *websocket.HandshakeResult, error) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("wsnet: response writer does not support hijacking")
	}
	conn, bufrw, err := hijacker.Hijack()
	if err != nil {
		return nil, nil, err
	}

	// If a client pipelined WebSocket frame bytes into the same TCP segment
	// as the upgrade request, net/http has already read and buffered them
	// in bufrw before Hijack returns -- they never touch the raw conn this
	// function reads from next. Drain them now so they can be handed to
	// PrimeRead below instead of being silently dropped.
	var buffered []byte
	if n := bufrw.Reader.Buffered(); n > 0 {
		buffered = make([]byte, n)
		if _, err := io.ReadFull(bufrw.Reader, buffered); err != nil {
			conn.Close()
			return nil, nil, err
		}
	}

	stream := &Stream{Conn: conn, Blocking: true}
	hs := websocket.NewServerHandshake(stream, opts)

	result, err := proceedBlocking(func() (bool, *websocket.HandshakeResult, error) {
		return hs.ProceedFromRequest(r, cb)
	})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if result == nil {
		conn.Close()
		return nil, nil, nil
	}

	stream.SetBlocking(aopts.Blocking)
	wsConn := websocket.NewConn(stream, websocket.RoleServer, cfg)
	wsConn.PrimeRead(append(buffered, result.Leftover...))
	return wsConn, result, nil
}
