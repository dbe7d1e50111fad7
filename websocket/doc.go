// Package websocket implements the WebSocket wire protocol (RFC 6455) as a
// synchronous, transport-agnostic engine: it knows how to frame, mask,
// fragment, and close a connection, and how to negotiate and apply
// permessage-deflate (RFC 7692), but it never owns a goroutine, a timer, or
// a net.Conn.
//
// Engine, not a server:
//
// Conn consumes a Stream -- a minimal synchronous Read/Write/Flush
// capability the caller provides. Conn never blocks waiting on I/O: a
// Stream that would block returns ErrWouldBlock, which Conn propagates to
// the caller unchanged instead of retrying. This lets the same engine run
// inside a single-threaded event loop, a goroutine-per-connection server,
// or a test harness driving an in-memory pipe.
//
//	conn := websocket.NewConn(stream, websocket.RoleServer, websocket.NewConfig())
//	for {
//	    msg, err := conn.Read()
//	    if err == websocket.ErrWouldBlock {
//	        break // come back once the transport has more bytes
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    if err := conn.Send(msg); err != nil {
//	        return err
//	    }
//	}
//
// Opening handshake:
//
// ServerHandshake and ClientHandshake drive the RFC 6455 section 4 upgrade
// as the same kind of resumable, non-blocking operation, parsing HTTP
// through the pluggable HTTPParser capability (defaultHTTPParser wraps
// net/http.ReadRequest/ReadResponse). Once a handshake's Proceed reports
// completion, its HandshakeResult.Leftover holds any bytes that arrived
// past the HTTP terminator -- pass them to the new Conn's PrimeRead so no
// frame bytes are dropped.
//
// Concurrency:
//
// Conn is not safe for concurrent use. Exactly one goroutine (or event-loop
// tick) may call its methods at a time; the caller supplies whatever
// synchronization its own architecture needs.
//
// Compression:
//
// permessage-deflate is negotiated through Config.Compression /
// ServerOptions.Compression / ClientOptions.Compression and, once
// negotiated, applied transparently: Conn compresses outgoing messages and
// inflates incoming ones according to the negotiated context-takeover
// parameters. The window-bits parameters are negotiated but not applied:
// both directions always use compress/flate's full 32 KiB window. A
// compressed message's
// fragments are accumulated as raw DEFLATE bytes across continuation
// frames and inflated exactly once, at the final fragment, per RFC 7692
// section 7.2.2.
package websocket
