package transport

import "errors"

var (
	ErrConnectFailed = errors.New("connect failed")
	ErrSendFailed    = errors.New("send failed")
	ErrReceiveFailed = errors.New("receive failed")
	ErrAddrInUse     = errors.New("address already in use")
	ErrClosed        = errors.New("connection closed")
)
