// Package chunked strips the AWS S3 streaming-chunk wire framing from upload
// bodies. Frames look like
//
//	<size-hex>[;chunk-signature=<hex>]\r\n<size bytes>\r\n
//
// and the stream is terminated by a zero-size chunk, optionally followed by
// trailer headers. The decoder exposes only the payload bytes; chunk
// signatures are framing metadata here and are not verified (the request
// signature already covers the declared payload mode).
//
// The reader streams frame payloads through instead of buffering the decoded
// body, so chunk sizes up to typical part sizes cost constant memory.
package chunked

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformedFraming reports a body that announced chunked framing but does
// not parse as such: a non-hex size line, a payload shorter than its declared
// size, or end-of-stream before the terminating zero chunk.
var ErrMalformedFraming = errors.New("malformed chunk framing")

const (
	// detectWindow bounds how far Detect peeks into the stream.
	detectWindow = 100
	// maxLineBytes bounds a single framing line; real chunk headers are far
	// shorter than this.
	maxLineBytes = 4096
)

// Detect reports whether the stream appears to start with chunked framing:
// a line whose content up to the first ';' parses as a hexadecimal integer.
// It peeks without consuming, so the reader's position is unchanged. Readers
// that cannot be peeked are conservatively reported as not chunked.
func Detect(r io.Reader) bool {
	br, ok := r.(*bufio.Reader)
	if !ok {
		return false
	}
	window, err := br.Peek(detectWindow)
	if err != nil && len(window) == 0 {
		return false
	}

	end := bytes.IndexByte(window, '\n')
	if end < 0 {
		return false
	}
	line := strings.TrimSuffix(string(window[:end]), "\r")

	semi := strings.IndexByte(line, ';')
	if semi <= 0 {
		return false
	}
	_, parseErr := strconv.ParseInt(strings.TrimSpace(line[:semi]), 16, 64)
	return parseErr == nil
}

// Reader decodes one chunked body. It implements io.Reader over the payload
// bytes only.
type Reader struct {
	br        *bufio.Reader
	remaining int64
	started   bool
	done      bool
	err       error
}

// NewReader wraps src in a decoding reader. If src is already buffered it is
// used directly so bytes consumed by Detect peeking are not lost.
func NewReader(src io.Reader) *Reader {
	br, ok := src.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(src)
	}
	return &Reader{br: br}
}

func (r *Reader) Read(p []byte) (int, error) {
	for {
		if r.err != nil {
			return 0, r.err
		}
		if r.done {
			return 0, io.EOF
		}

		if r.remaining > 0 {
			if int64(len(p)) > r.remaining {
				p = p[:r.remaining]
			}
			n, err := r.br.Read(p)
			r.remaining -= int64(n)
			if err != nil {
				if err == io.EOF {
					if r.remaining > 0 {
						err = fmt.Errorf("%w: stream ended %d bytes short of declared chunk size", ErrMalformedFraming, r.remaining)
					} else {
						err = fmt.Errorf("%w: no terminating zero chunk before end of stream", ErrMalformedFraming)
					}
				}
				r.err = err
			}
			if n > 0 {
				return n, nil
			}
			if r.err != nil {
				return 0, r.err
			}
			continue
		}

		if r.started {
			// Trailing line separator after the previous chunk's payload.
			if _, err := r.readLine(); err != nil {
				r.err = err
				return 0, r.err
			}
		}

		size, err := r.readChunkSize()
		if err != nil {
			r.err = err
			return 0, r.err
		}
		r.started = true
		if size == 0 {
			// Terminating chunk: discard trailer headers and anything after.
			if _, err := io.Copy(io.Discard, r.br); err != nil {
				r.err = err
				return 0, r.err
			}
			r.done = true
			return 0, io.EOF
		}
		r.remaining = size
	}
}

func (r *Reader) readChunkSize() (int64, error) {
	line, err := r.readLine()
	if err != nil {
		if err == io.EOF {
			return 0, fmt.Errorf("%w: no terminating zero chunk before end of stream", ErrMalformedFraming)
		}
		return 0, err
	}

	sizeField := line
	if semi := strings.IndexByte(line, ';'); semi >= 0 {
		sizeField = line[:semi]
	}
	size, err := strconv.ParseInt(strings.TrimSpace(sizeField), 16, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: invalid chunk size %q", ErrMalformedFraming, sizeField)
	}
	return size, nil
}

// readLine reads until LF, tolerating both CRLF and bare LF endings. A CR not
// followed by LF is kept as literal line content. Returns io.EOF when the
// stream ends before any byte of a new line is read.
func (r *Reader) readLine() (string, error) {
	var line strings.Builder
	pendingCR := false
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			if err == io.EOF {
				if line.Len() == 0 && !pendingCR {
					return "", io.EOF
				}
				return "", fmt.Errorf("%w: stream ended mid-line", ErrMalformedFraming)
			}
			return "", err
		}
		switch b {
		case '\r':
			if pendingCR {
				line.WriteByte('\r')
			}
			pendingCR = true
		case '\n':
			return line.String(), nil
		default:
			if pendingCR {
				line.WriteByte('\r')
				pendingCR = false
			}
			line.WriteByte(b)
		}
		if line.Len() > maxLineBytes {
			return "", fmt.Errorf("%w: framing line exceeds %d bytes", ErrMalformedFraming, maxLineBytes)
		}
	}
}
