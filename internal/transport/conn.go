package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Conn is one side of the single frame stream.
type Conn struct {
	conn      net.Conn
	closeOnce sync.Once
	closed    atomic.Bool
	eof       bool // Receive is single-reader

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
}

func newConn(nc net.Conn) *Conn {
	return &Conn{conn: nc}
}

// NewConn wraps an established connection, e.g. one side of net.Pipe in tests.
func NewConn(nc net.Conn) *Conn {
	return newConn(nc)
}

// Send writes the whole record. Short writes are retried until the record is
// out or the write fails; a failure is terminal and closes the connection.
func (c *Conn) Send(ctx context.Context, record []byte) error {
	if c.closed.Load() {
		return fmt.Errorf("%w: %w", ErrSendFailed, ErrClosed)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	for len(record) > 0 {
		n, err := c.conn.Write(record)
		c.bytesSent.Add(uint64(n))
		record = record[n:]
		if err != nil {
			_ = c.Close()
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
			}
			return fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
		if n == 0 {
			_ = c.Close()
			return fmt.Errorf("%w: %w", ErrSendFailed, io.ErrShortWrite)
		}
	}
	return nil
}

// Receive reads the next chunk into buf.
//
// It returns io.EOF once the peer has ended the stream, including a peer that
// dropped the connection with a reset. A locally closed connection yields
// ErrClosed; anything else is ErrReceiveFailed.
func (c *Conn) Receive(buf []byte) (int, error) {
	if c.eof {
		return 0, io.EOF
	}

	n, err := c.conn.Read(buf)
	c.bytesReceived.Add(uint64(n))
	if n > 0 {
		if err != nil {
			c.eof = true
		}
		return n, nil
	}

	switch {
	case err == nil:
		return 0, nil
	case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET):
		c.eof = true
		return 0, io.EOF
	case errors.Is(err, net.ErrClosed), c.closed.Load():
		return 0, ErrClosed
	default:
		return 0, fmt.Errorf("%w: %w", ErrReceiveFailed, err)
	}
}

// Close releases the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

// IsOpen reports whether Close has not been called yet.
func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// BytesSent returns the number of bytes written so far.
func (c *Conn) BytesSent() uint64 {
	return c.bytesSent.Load()
}

// BytesReceived returns the number of bytes read so far.
func (c *Conn) BytesReceived() uint64 {
	return c.bytesReceived.Load()
}
