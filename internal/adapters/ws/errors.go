package ws

import "errors"

// Delivery failures.
var (
	ErrUnknownConnection = errors.New("websocket connection not found")
	ErrSendBufferFull    = errors.New("websocket send buffer full")
)
