package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
)

// Listener accepts exactly one producer connection over its lifetime.
type Listener struct {
	ln        net.Listener
	closeOnce sync.Once
	accepted  bool
}

// Listen binds addr. A port that is already taken yields ErrAddrInUse.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %s", ErrAddrInUse, addr)
		}
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks until one producer connects or ctx is cancelled. The listener
// is closed after the first connection so later producers are refused.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	if l.accepted {
		return nil, fmt.Errorf("accept: %w", ErrClosed)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = l.Close()
	})
	defer stop()

	nc, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept: %w", err)
	}

	l.accepted = true
	_ = l.Close()
	return newConn(nc), nil
}

// Addr returns the bound address, useful when listening on port 0.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Close stops listening. It is safe to call more than once.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.ln.Close()
	})
	return err
}
