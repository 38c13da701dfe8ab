package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ContextDialer opens stream connections. *net.Dialer satisfies it.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialOptions controls the producer's connect-with-retry behaviour.
type DialOptions struct {
	MaxRetries int           // total connection attempts, minimum 1
	RetryDelay time.Duration // fixed wait between refused attempts
	Dialer     ContextDialer // nil uses a plain net.Dialer
}

// Dial connects to addr, retrying only while the peer refuses the connection.
// Any other dial error is returned immediately.
func Dial(ctx context.Context, addr string, opts DialOptions, logger *zap.Logger) (*Conn, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	attempts := opts.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrConnectFailed, ctx.Err())
			case <-time.After(opts.RetryDelay):
			}
		}

		nc, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			logger.Info("connected", zap.String("addr", addr), zap.Int("attempt", attempt))
			return newConn(nc), nil
		}

		if !isRefused(err) {
			return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectFailed, addr, err)
		}

		lastErr = err
		logger.Warn("connection refused",
			zap.String("addr", addr),
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", attempts),
		)
	}

	return nil, fmt.Errorf("%w: %s refused after %d attempts: %w", ErrConnectFailed, addr, attempts, lastErr)
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
