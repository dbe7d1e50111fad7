package wsnet

import (
	"net"

	"github.com/vitalvas/wsforge/websocket"
)

// AcceptOptions configures Accept/AcceptHTTP.
type AcceptOptions struct {
	// Blocking selects the I/O mode of the returned Conn's Stream, same
	// meaning as DialOptions.Blocking.
	Blocking bool
}

// Accept drives the server-side opening handshake to completion over conn
// and returns a ready websocket.Conn. It takes a bare net.Conn directly --
// the caller is responsible for having already accepted the TCP/TLS
// connection, e.g. via net.Listener.Accept or a pre-routing dispatch on
// the first bytes. AcceptHTTP is the equivalent for a connection already
// owned by net/http.
//
// A nil, nil, nil return means cb (or ServerOptions.CheckOrigin) rejected
// the upgrade: a response was already written to conn, and conn has been
// left for the caller to close.
func Accept(conn net.Conn, opts websocket.ServerOptions, cfg websocket.Config, cb websocket.ServerCallback, aopts AcceptOptions) (*websocket.Conn, *websocket.HandshakeResult, error) {
	stream := &Stream{Conn: conn, Blocking: true}
	hs := websocket.NewServerHandshake(stream, opts)

	result, err := proceedBlocking(func() (bool, *websocket.HandshakeResult, error) {
		return hs.Proceed(cb)
	})
	if err != nil {
		return nil, nil, err
	}
	if result == nil {
		return nil, nil, nil
	}

	stream.SetBlocking(aopts.Blocking)
	wsConn := websocket.NewConn(stream, websocket.RoleServer, cfg)
	wsConn.PrimeRead(result.Leftover)
	return wsConn, result, nil
}
