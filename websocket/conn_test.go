package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unmaskedServerConfig relaxes the masking-direction check so tests can feed
// a server Conn raw, unmasked frames built by hand without tripping
// UnmaskedFrameFromClient -- masking itself is covered separately by
// TestConnUnmaskedClientFrameRejectedByServer.
func unmaskedServerConfig() Config {
	cfg := NewConfig()
	cfg.AcceptUnmaskedFrames = true
	return cfg
}

func TestConnSendAndReadTextMessage(t *testing.T) {
	client, server := newConnPair(NewConfig(), NewConfig())

	done := make(chan Message, 1)
	go func() {
		msg, _ := server.Read()
		done <- msg
	}()

	require.NoError(t, client.Send(Text("hello")))
	msg := <-done
	assert.Equal(t, TextMessage, msg.Type)
	assert.Equal(t, "hello", string(msg.Data))
}

func TestConnFragmentedMessageReassembly(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleServer, unmaskedServerConfig())

	f1 := &Frame{Fin: false, OpCode: OpText, Payload: []byte("hel")}
	f2 := &Frame{Fin: false, OpCode: OpContinuation, Payload: []byte("lo ")}
	f3 := &Frame{Fin: true, OpCode: OpContinuation, Payload: []byte("world")}
	for _, f := range []*Frame{f1, f2, f3} {
		stream.feed(f.Serialize())
	}

	msg, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, TextMessage, msg.Type)
	assert.Equal(t, "hello world", string(msg.Data))
}

func TestConnPingTriggersQueuedPong(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleServer, unmaskedServerConfig())

	stream.feed((&Frame{Fin: true, OpCode: OpPing, Payload: []byte("p")}).Serialize())

	msg, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, PingMessage, msg.Type)

	require.NoError(t, conn.Flush())
	f, _, err := ParseFrame(stream.out.Bytes(), -1)
	require.NoError(t, err)
	assert.Equal(t, OpPong, f.OpCode)
	assert.Equal(t, []byte("p"), f.Payload)
}

func TestConnOOBPongOverwritesPrevious(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleServer, unmaskedServerConfig())

	// Read flushes a pending pong before reading the next frame, so both
	// pings go straight to handleFrame, with no flush in between.
	_, _, err := conn.handleFrame(&Frame{Fin: true, OpCode: OpPing, Payload: []byte("first")})
	require.NoError(t, err)

	_, _, err = conn.handleFrame(&Frame{Fin: true, OpCode: OpPing, Payload: []byte("second")})
	require.NoError(t, err)

	require.NoError(t, conn.Flush())
	f, n, err := ParseFrame(stream.out.Bytes(), -1)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), f.Payload)
	assert.Equal(t, len(stream.out.Bytes()), n) // only one pong was ever sent
}

func TestConnCloseHandshakeWeInitiate(t *testing.T) {
	client, server := newConnPair(NewConfig(), NewConfig())

	go func() {
		msg, err := server.Read()
		if err == nil && msg.Type == CloseMessage {
			_ = server.Send(CloseMsg(CloseNormal, ""))
		}
	}()

	require.NoError(t, client.Close(CloseNormal, "bye"))
	assert.Equal(t, StateClosedByUs, client.State())

	_, err := client.Read()
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Equal(t, StateTerminated, client.State())
}

func TestConnCloseHandshakePeerInitiates(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleServer, unmaskedServerConfig())

	stream.feed((&Frame{Fin: true, OpCode: OpClose, Payload: FormatCloseMessage(CloseNormal, "done")}).Serialize())

	msg, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, CloseMessage, msg.Type)
	assert.Equal(t, StateClosedByPeer, conn.State())

	require.ErrorIs(t, conn.Flush(), ErrConnectionClosed) // reply Close flushed
	f, _, err := ParseFrame(stream.out.Bytes(), -1)
	require.NoError(t, err)
	assert.Equal(t, OpClose, f.OpCode)
}

func TestConnInvalidCloseCodeRepliedAsProtocolError(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleServer, unmaskedServerConfig())

	stream.feed((&Frame{Fin: true, OpCode: OpClose, Payload: FormatCloseMessage(CloseCode(2000), "")}).Serialize())

	msg, err := conn.Read()
	require.NoError(t, err)
	require.NotNil(t, msg.Close)

	require.ErrorIs(t, conn.Flush(), ErrConnectionClosed) // reply Close flushed
	f, _, err := ParseFrame(stream.out.Bytes(), -1)
	require.NoError(t, err)
	reply, err := ParseCloseMessage(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, CloseProtocol, reply.Code)
}

func TestConnNonZeroReservedBitsIsProtocolError(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleServer, NewConfig())

	f := &Frame{Fin: true, RSV2: true, OpCode: OpText, Payload: []byte("x")}
	stream.feed(f.Serialize())

	_, err := conn.Read()
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
	assert.Equal(t, NonZeroReservedBits, protoErr.Kind)
}

func TestConnUnmaskedClientFrameRejectedByServer(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleServer, NewConfig())

	f := &Frame{Fin: true, OpCode: OpText, Payload: []byte("x")} // no mask
	stream.feed(f.Serialize())

	_, err := conn.Read()
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
	assert.Equal(t, UnmaskedFrameFromClient, protoErr.Kind)
}

func TestConnMaskedServerFrameRejectedByClient(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleClient, NewConfig())

	key, err := newMaskKey()
	require.NoError(t, err)
	f := &Frame{Fin: true, OpCode: OpText, Mask: &key, Payload: []byte("x")}
	stream.feed(f.Serialize())

	_, err = conn.Read()
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
	assert.Equal(t, MaskedFrameFromServer, protoErr.Kind)
}

func TestConnReadWouldBlockPropagatesWithoutStateChange(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleServer, NewConfig())

	_, err := conn.Read()
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, StateActive, conn.State())
}

func TestConnSendAfterTerminatedFails(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleServer, NewConfig())
	conn.state = StateTerminated

	_, err := conn.Read()
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	err = conn.Send(Text("x"))
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestConnWriteBufferFullError(t *testing.T) {
	stream := &blockedWriteStream{blocked: true}
	cfg := NewConfig()
	cfg.MaxWriteBufferSize = 8
	conn := NewConn(stream, RoleServer, cfg)

	err := conn.Send(Text("this message is way too long for the buffer"))
	var fullErr *WriteBufferFullError
	assert.ErrorAs(t, err, &fullErr)
}

func TestConnCompressedMessageRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Compression = Compression{Mode: CompressionDeflate}
	client, server := newConnPair(cfg, cfg)

	done := make(chan Message, 1)
	go func() {
		msg, _ := server.Read()
		done <- msg
	}()

	payload := "compress this payload compress this payload compress this payload"
	require.NoError(t, client.Send(Text(payload)))
	msg := <-done
	assert.Equal(t, TextMessage, msg.Type)
	assert.Equal(t, payload, string(msg.Data))
}

func TestConnCompressedFragmentedMessage(t *testing.T) {
	cfg := unmaskedServerConfig()
	cfg.Compression = Compression{Mode: CompressionDeflate}
	conn := NewConn(newFeedStream(), RoleServer, cfg)
	comp := newCompressionContext(cfg.Compression, RoleClient)

	full, err := comp.out.compressMessage([]byte("hello fragmented compressed world"))
	require.NoError(t, err)
	require.True(t, len(full) > 4)

	mid := len(full) / 2
	f1 := &Frame{Fin: false, RSV1: true, OpCode: OpText, Payload: full[:mid]}
	f2 := &Frame{Fin: true, OpCode: OpContinuation, Payload: full[mid:]}

	stream := conn.socket.stream.(*feedStream)
	stream.feed(f1.Serialize())
	stream.feed(f2.Serialize())

	msg, err := conn.Read()
	require.NoError(t, err)
	assert.Equal(t, "hello fragmented compressed world", string(msg.Data))
}

func TestConnRSV1OnContinuationIsProtocolError(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleServer, unmaskedServerConfig())

	f1 := &Frame{Fin: false, OpCode: OpText, Payload: []byte("a")}
	f2 := &Frame{Fin: true, RSV1: true, OpCode: OpContinuation, Payload: []byte("b")}
	stream.feed(f1.Serialize())
	stream.feed(f2.Serialize())

	_, err := conn.Read()
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, NonZeroReservedBits, protoErr.Kind)
}

func TestConnClosesOnProtocolErrorAndQueuesReply(t *testing.T) {
	stream := newFeedStream()
	conn := NewConn(stream, RoleServer, NewConfig())

	f := &Frame{Fin: true, OpCode: OpText, Payload: []byte("x")} // unmasked -> protocol error
	stream.feed(f.Serialize())

	_, err := conn.Read()
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)

	require.NoError(t, conn.Flush())
	closeFrame, _, err := ParseFrame(stream.out.Bytes(), -1)
	require.NoError(t, err)
	assert.Equal(t, OpClose, closeFrame.OpCode)
}
