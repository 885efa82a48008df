// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (device.go, connection.go, gateway.go, errors.go) hold shared types and
// the contracts between the broadcast core, the HTTP surface and the storage adapters.
// No implementation code - just contracts.
package domain
