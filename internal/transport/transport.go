package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/notibridge/notibridge/internal/wire"
)

// ErrFrameTooLarge is returned for frames whose declared length exceeds
// wire.MaxFrameSize. The length is checked before any allocation.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Conn is a framed stream. Reads must come from a single goroutine;
// writes may come from any number of goroutines.
type Conn struct {
	r *bufio.Reader
	c io.Closer

	wmu sync.Mutex
	w   *bufio.Writer

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps a byte stream in framing.
func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		r: bufio.NewReaderSize(rwc, 64*1024),
		w: bufio.NewWriterSize(rwc, 64*1024),
		c: rwc,
	}
}

// ReadFrame reads the next frame payload. A clean stream end between
// frames returns io.EOF; a stream end inside a frame returns
// io.ErrUnexpectedEOF.
func (c *Conn) ReadFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}
	size := binary.LittleEndian.Uint32(header[:])
	if size > wire.MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, fmt.Errorf("reading %d byte frame: %w", size, err)
	}
	return payload, nil
}

// WriteFrame writes one frame. Safe for concurrent use.
func (c *Conn) WriteFrame(payload []byte) error {
	if len(payload) > wire.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := c.w.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := c.w.Write(payload); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("flushing frame: %w", err)
	}
	return nil
}

// WriteEnvelope encodes and writes one envelope.
func (c *Conn) WriteEnvelope(e *wire.Envelope) error {
	data, err := wire.Encode(e)
	if err != nil {
		return err
	}
	return c.WriteFrame(data)
}

// Close closes the underlying stream. Idempotent; a blocked ReadFrame is
// unblocked with an error.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.c.Close()
	})
	return c.closeErr
}

// Pipe returns two connected in-memory Conns. Intended for tests: the
// underlying net.Pipe is unbuffered, so a write blocks until the peer
// reads.
func Pipe() (*Conn, *Conn) {
	a, b := net.Pipe()
	return NewConn(a), NewConn(b)
}
