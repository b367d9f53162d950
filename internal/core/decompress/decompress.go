// Package decompress turns a compressed byte stream into a pull iterator of
// decompressed chunks. Gzip (including multi-member files), zlib-wrapped deflate
// and raw deflate are told apart by their leading bytes.
package decompress

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	perr "amplisend/internal/platform/errors"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// DefaultChunkSize is the read size used when no option overrides it
const DefaultChunkSize = 64 * 1024

var gzipMagic = []byte{0x1f, 0x8b}

// Format names the detected framing
type Format string

// Framings
const (
	FormatGzip    Format = "gzip"
	FormatZlib    Format = "zlib"
	FormatDeflate Format = "deflate"
)

// Stats reports what a Stream has consumed and produced so far
type Stats struct {
	BytesIn  int64
	BytesOut int64
	Chunks   int
}

// Option tunes a Stream
type Option func(*Stream)

// WithChunkSize sets the maximum size of a single chunk; values < 1 are ignored
func WithChunkSize(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.chunk = n
		}
	}
}

// Stream yields decompressed chunks in order. Not safe for concurrent use.
type Stream struct {
	src    *countingReader
	zr     io.Reader
	closer io.Closer
	format Format
	chunk  int
	err    error
	stats  Stats
}

// NewStream sniffs the framing of r and prepares a decompressor for it.
// A broken gzip header fails here with a decompression error.
func NewStream(r io.Reader, opts ...Option) (*Stream, error) {
	s := &Stream{chunk: DefaultChunkSize}
	for _, o := range opts {
		o(s)
	}

	s.src = &countingReader{r: r}
	br := bufio.NewReaderSize(s.src, 4096)
	head, _ := br.Peek(len(gzipMagic))

	if bytes.Equal(head, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeDecompression, "gzip header")
		}
		s.zr, s.closer, s.format = gz, gz, FormatGzip
		return s, nil
	}
	if isZlib(head) {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeDecompression, "zlib header")
		}
		s.zr, s.closer, s.format = zr, zr, FormatZlib
		return s, nil
	}

	fr := flate.NewReader(br)
	s.zr, s.closer, s.format = fr, fr, FormatDeflate
	return s, nil
}

// isZlib checks the RFC 1950 header: deflate method, window <= 32K, FCHECK.
// A raw deflate stream never starts this way: a stored block pads with zero bits.
func isZlib(h []byte) bool {
	if len(h) < 2 {
		return false
	}
	cmf, flg := h[0], h[1]
	return cmf&0x0f == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// Format reports the detected framing
func (s *Stream) Format() Format { return s.format }

// Stats returns a snapshot of the counters
func (s *Stream) Stats() Stats {
	st := s.stats
	st.BytesIn = s.src.n
	return st
}

// Next returns the next non-empty chunk, io.EOF at the end of the stream, or a
// decompression error. Errors are sticky.
func (s *Stream) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	buf := make([]byte, s.chunk)
	for {
		n, err := s.zr.Read(buf)
		if err != nil {
			s.fail(err)
		}
		if n > 0 {
			s.stats.BytesOut += int64(n)
			s.stats.Chunks++
			return buf[:n], nil
		}
		if s.err != nil {
			return nil, s.err
		}
	}
}

// Close releases the decompressor; it does not close the underlying reader
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Stream) fail(err error) {
	if errors.Is(err, io.EOF) {
		s.err = io.EOF
		return
	}
	s.err = perr.Wrapf(err, perr.ErrorCodeDecompression, "%s stream", s.format)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
