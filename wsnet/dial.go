package wsnet

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"

	"github.com/vitalvas/wsforge/websocket"
)

// DialOptions configures Dial: TLS and TCP dial policy, client-side
// handshake options, and the engine config. Buffering knobs live on
// websocket.Config instead, since buffering is the engine's concern here,
// not the transport's.
type DialOptions struct {
	// TLSConfig is used for wss:// targets. A nil value dials with
	// &tls.Config{ServerName: host}.
	TLSConfig *tls.Config
	// NetDialer dials the underlying TCP connection. A nil value uses a
	// zero-value net.Dialer. DNS, proxy tunneling, and custom transports
	// are the caller's concern via this field -- wsnet only turns a dial
	// result into a websocket.Conn, it doesn't resolve names or tunnel.
	NetDialer *net.Dialer
	Client    websocket.ClientOptions
	Config    websocket.Config
	// Blocking selects the I/O mode of the returned Conn's Stream: true
	// for ordinary blocking Read/Write (a goroutine-per-connection
	// caller), false (the default) for ErrWouldBlock-on-idle non-blocking
	// mode (an event-loop/poller caller). The handshake itself always
	// runs blocking regardless of this setting.
	Blocking bool
}

// Dial parses rawURL (ws:// or wss://), dials the TCP (optionally TLS)
// connection, drives the client-side opening handshake to completion, and
// returns a ready websocket.Conn primed with any bytes the server sent
// past the handshake. The handshake itself always runs in blocking mode;
// non-blocking operation only matters once the Conn is handed back to the
// caller.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*websocket.Conn, *websocket.HandshakeResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, &websocket.URLError{Msg: "malformed url: " + err.Error()}
	}

	var useTLS bool
	switch u.Scheme {
	case "ws":
		useTLS = false
	case "wss":
		useTLS = true
	default:
		return nil, nil, &websocket.URLError{Msg: "unsupported scheme " + u.Scheme}
	}
	if u.Host == "" {
		return nil, nil, &websocket.URLError{Msg: "missing host"}
	}

	dialer := opts.NetDialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	hostPort := u.Host
	if u.Port() == "" {
		if useTLS {
			hostPort = net.JoinHostPort(u.Hostname(), "443")
		} else {
			hostPort = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	conn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return nil, nil, err
	}

	if useTLS {
		tlsCfg := opts.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: u.Hostname()}
		} else if tlsCfg.ServerName == "" {
			tlsCfg = tlsCfg.Clone()
			tlsCfg.ServerName = u.Hostname()
		}
		tlsConn := tls.Client(conn, tlsCfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, nil, err
		}
		conn = tlsConn
	}

	stream := &Stream{Conn: conn, Blocking: true}
	clientOpts := opts.Client
	clientOpts.URL = u
	hs, err := websocket.NewClientHandshake(stream, clientOpts)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	result, err := proceedBlocking(func() (bool, *websocket.HandshakeResult, error) {
		return hs.Proceed()
	})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	stream.SetBlocking(opts.Blocking)
	wsConn := websocket.NewConn(stream, websocket.RoleClient, opts.Config)
	wsConn.PrimeRead(result.Leftover)
	return wsConn, result, nil
}

// proceedBlocking drives a resumable Proceed-shaped handshake step to
// completion, looping past the "need more data" (false, nil, nil) result a
// blocking Stream never actually produces in practice (net.Conn in
// blocking mode always has bytes or an error to offer) but that the
// handshake state machine's signature still allows.
func proceedBlocking(step func() (bool, *websocket.HandshakeResult, error)) (*websocket.HandshakeResult, error) {
	for {
		done, result, err := step()
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
	}
}
