// Compression support for the WebSocket permessage-deflate extension
// (RFC 7692). This extension uses the DEFLATE algorithm (RFC 1951) to
// compress entire message payloads, not individual frames.
package websocket

import (
	"compress/flate"
	"io"
	"sync"
)

// Compression level bounds for DEFLATE (RFC 1951, as exposed by compress/flate).
const (
	minCompressionLevel     = -2
	maxCompressionLevel     = 9
	defaultCompressionLevel = 1
)

var (
	flateReaderPool sync.Pool
	flateWriterPool sync.Pool
)

func getFlateReader(r io.Reader) io.ReadCloser {
	if fr, ok := flateReaderPool.Get().(io.ReadCloser); ok && fr != nil {
		if resetter, ok := fr.(flate.Resetter); ok {
			_ = resetter.Reset(r, nil)
			return fr
		}
	}
	return flate.NewReader(r)
}

func putFlateReader(fr io.ReadCloser) {
	flateReaderPool.Put(fr)
}

func getFlateWriter(w io.Writer, level int) *flate.Writer {
	if fw, ok := flateWriterPool.Get().(*flate.Writer); ok && fw != nil {
		fw.Reset(w)
		return fw
	}
	fw, _ := flate.NewWriter(w, level)
	return fw
}

func putFlateWriter(fw *flate.Writer) {
	flateWriterPool.Put(fw)
}

// redirectWriter lets a *flate.Writer keep writing into the same
// destination object across Write/Flush calls while the actual
// destination buffer underneath is swapped out between messages. Using
// this instead of calling (*flate.Writer).Reset per message is what
// keeps the compressor's LZ77 window (and therefore real context
// takeover) intact: Reset reinitializes the compressor's window along
// with its destination, discarding exactly the history context takeover
// is supposed to retain.
type redirectWriter struct{ w io.Writer }

func (r *redirectWriter) Write(p []byte) (int, error) { return r.w.Write(p) }

// redirectReader is redirectWriter's read-side counterpart: the flate
// reader keeps one stable source object while the data underneath is
// swapped per message. The reader itself is still Reset before each
// message (see decompressMessage), with the retained history passed in
// as its dictionary.
type redirectReader struct{ r io.Reader }

func (r *redirectReader) Read(p []byte) (int, error) { return r.r.Read(p) }

// suffixReader appends the empty-DEFLATE-block suffix (0x00 0x00 0xff
// 0xff) RFC 7692, section 7.2.2 requires the receiver to restore before
// inflating, since the sender is required to have stripped it.
type suffixReader struct{}

func (suffixReader) Read(p []byte) (int, error) {
	if len(p) < 4 {
		return 0, io.ErrShortBuffer
	}
	p[0], p[1], p[2], p[3] = 0x00, 0x00, 0xff, 0xff
	return 4, io.EOF
}

type byteReader struct {
	data []byte
	pos  int
}

func (br *byteReader) Read(p []byte) (int, error) {
	if br.pos >= len(br.data) {
		return 0, io.EOF
	}
	n := copy(p, br.data[br.pos:])
	br.pos += n
	return n, nil
}

// finalEmptyBlock is an empty, final stored DEFLATE block. It is appended
// after each restored message so the flate reader reaches a proper end of
// stream instead of reporting io.ErrUnexpectedEOF after the sync marker.
var finalEmptyBlock = []byte{0x01, 0x00, 0x00, 0xff, 0xff}

// maxWindowSize is the DEFLATE window (32 KiB): the most history a later
// message can reference.
const maxWindowSize = 1 << 15

// bufferWriter collects flate.Writer output in memory so the trailing
// 0x00 0x00 0xff 0xff block can be stripped once the writer is flushed.
type bufferWriter struct {
	buf []byte
}

func (bw *bufferWriter) Write(p []byte) (int, error) {
	bw.buf = append(bw.buf, p...)
	return len(p), nil
}

// deflateSide holds the outgoing DEFLATE state: a possibly-persistent
// flate.Writer plus whether our side negotiated no_context_takeover,
// meaning it must be reset after every message instead of reusing the
// LZ77 window. The incoming side is deflateIn.
type deflateSide struct {
	noContextTakeover bool
	level             int

	fw   *flate.Writer   // retained across messages only when context takeover is allowed
	sink *redirectWriter // fw's destination; its target buffer is swapped per message
}

// compressMessage compresses data as a single complete message (RFC 7692,
// section 7.2.1): DEFLATE it, then strip the trailing empty-block marker.
// If noContextTakeover is set, the compressor is discarded afterward so
// the next message starts a fresh LZ77 window; otherwise fw and its
// window are kept and only redirected at a fresh output buffer, so later
// messages actually benefit from the earlier ones' history.
func (d *deflateSide) compressMessage(data []byte) ([]byte, error) {
	out := &bufferWriter{}
	if d.fw == nil {
		d.sink = &redirectWriter{}
		d.fw = getFlateWriter(d.sink, d.level)
	}
	d.sink.w = out

	if _, err := d.fw.Write(data); err != nil {
		return nil, err
	}
	if err := d.fw.Flush(); err != nil {
		return nil, err
	}

	if d.noContextTakeover {
		putFlateWriter(d.fw)
		d.fw = nil
		d.sink = nil
	}

	result := out.buf
	if len(result) >= 4 {
		result = result[:len(result)-4]
	}
	return result, nil
}

// deflateIn holds the read-side decompressor; by default context takeover
// is allowed (the reader persists across messages and the last 32 KiB of
// inflated output is kept as history), unless the peer's
// no_context_takeover parameter was negotiated.
type deflateIn struct {
	noContextTakeover bool
	fr                io.ReadCloser
	sink              *redirectReader // fr's source; its target data is swapped per message
	dict              []byte          // last maxWindowSize bytes of inflated output
}

// decompressMessage restores the trailing empty-block marker RFC 7692,
// section 7.2.2 requires the sender to have stripped, then inflates. fr is
// Reset before each message with dict, the tail of the earlier messages'
// output, as its preset dictionary, so with context takeover allowed the
// sender's back-references into earlier messages resolve.
func (d *deflateIn) decompressMessage(data []byte) ([]byte, error) {
	msg := io.MultiReader(&byteReader{data: data}, suffixReader{}, &byteReader{data: finalEmptyBlock})
	if d.fr == nil {
		d.sink = &redirectReader{}
		d.fr = getFlateReader(d.sink)
	}
	d.sink.r = msg
	if err := d.fr.(flate.Resetter).Reset(d.sink, d.dict); err != nil {
		return nil, err
	}

	out, err := io.ReadAll(d.fr)
	if err != nil {
		return nil, err
	}

	if d.noContextTakeover {
		putFlateReader(d.fr)
		d.fr = nil
		d.sink = nil
		return out, nil
	}
	d.dict = append(d.dict, out...)
	if len(d.dict) > maxWindowSize {
		d.dict = append([]byte(nil), d.dict[len(d.dict)-maxWindowSize:]...)
	}
	return out, nil
}

// compressionContext is the engine's closed (non-pluggable) extension
// state: a fixed struct rather than an interface over extension
// implementations, since permessage-deflate is the only extension in
// scope.
type compressionContext struct {
	negotiated bool
	out        deflateSide
	in         deflateIn
}

func newCompressionContext(cfg Compression, role Role) *compressionContext {
	if cfg.Mode != CompressionDeflate {
		return &compressionContext{}
	}
	level := cfg.Deflate.CompressionLevel
	if level == 0 {
		level = defaultCompressionLevel
	}

	// "Our" no_context_takeover is client_no_context_takeover if we are
	// the client, server_no_context_takeover if we are the server; same
	// for the peer's, inverted.
	ourNoTakeover := cfg.Deflate.ServerNoContextTakeover
	peerNoTakeover := cfg.Deflate.ClientNoContextTakeover
	if role == RoleClient {
		ourNoTakeover = cfg.Deflate.ClientNoContextTakeover
		peerNoTakeover = cfg.Deflate.ServerNoContextTakeover
	}

	return &compressionContext{
		negotiated: true,
		out:        deflateSide{noContextTakeover: ourNoTakeover, level: level},
		in:         deflateIn{noContextTakeover: peerNoTakeover},
	}
}
