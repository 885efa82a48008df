package domain

import "errors"

var (
	ErrConnectionClosed   = errors.New("connection closed")
	ErrSendBufferFull     = errors.New("send buffer full")
	ErrTooManyConnections = errors.New("too many connections")
	ErrProtocol           = errors.New("protocol error")
	ErrStorage            = errors.New("storage error")
)
