package ws

import "errors"

// Errors returned by the public Endpoint API. They wrap the lower-level
// wsproto/promise/transport sentinels where one applies, following the
// sentinel-plus-fmt.Errorf wrapping idiom used throughout this module.
var (
	ErrAlreadyClosed   = errors.New("ws: endpoint already closed")
	ErrHandshakeFailed = errors.New("ws: handshake failed")
	ErrHandshakeTooBig = errors.New("ws: handshake request exceeded size limit")
	ErrSendTimeout     = errors.New("ws: send timed out")
	ErrPingTimeout     = errors.New("ws: ping timed out")
	ErrRecvTimeout     = errors.New("ws: recv timed out")
	ErrPeerClosed      = errors.New("ws: peer closed the connection")
)
