// Package protocol implements the JSON message protocol spoken on the WebSocket.
//
// Parse validates an inbound frame, Apply maps it to exactly one State Store mutation and returns the
// delta to broadcast. Invalid frames yield typed errors wrapping domain.ErrProtocol; callers log them and
// never answer on the wire.
package protocol
