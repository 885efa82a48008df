// Package broadcast implements the WebSocket broadcast core using the actor pattern.
//
// A single goroutine owns the connection Registry and processes connect, disconnect and message commands in
// arrival order. Inbound frames go through the protocol package, mutate the device state and are fanned out as
// deltas to every registered connection, sender included. Per-connection writer goroutines (ClientWriter) keep a
// slow or dead client from stalling the fan-out.
package broadcast
