package broadcast

import (
	"github.com/pscheid92/ledsync/internal/domain"
)

// SendFailure records one connection that could not accept a frame.
type SendFailure struct {
	Conn domain.Connection
	Err  error
}

// Delivery is the outcome of a fan-out.
type Delivery struct {
	Delivered int
	Failed    []SendFailure
}

// Registry is the set of open connections eligible for broadcast.
// It is not safe for concurrent use; the Broadcaster goroutine owns it.
type Registry struct {
	members map[string]domain.Connection
}

func NewRegistry() *Registry {
	return &Registry{members: make(map[string]domain.Connection)}
}

// Add registers conn. Registering a connection twice is a no-op and returns false.
func (r *Registry) Add(conn domain.Connection) bool {
	if _, exists := r.members[conn.ID()]; exists {
		return false
	}
	r.members[conn.ID()] = conn
	return true
}

// Remove unregisters conn and reports whether it was present.
func (r *Registry) Remove(conn domain.Connection) bool {
	if _, exists := r.members[conn.ID()]; !exists {
		return false
	}
	delete(r.members, conn.ID())
	return true
}

func (r *Registry) Contains(conn domain.Connection) bool {
	_, exists := r.members[conn.ID()]
	return exists
}

func (r *Registry) Len() int {
	return len(r.members)
}

// ForEach calls fn for every registered connection.
func (r *Registry) ForEach(fn func(conn domain.Connection)) {
	for _, conn := range r.members {
		fn(conn)
	}
}

// SendAll queues data on every member. A failing member never stops delivery to the rest;
// closed members are reported as failures without attempting a send.
func (r *Registry) SendAll(data []byte) Delivery {
	var d Delivery
	r.ForEach(func(conn domain.Connection) {
		if !conn.IsOpen() {
			d.Failed = append(d.Failed, SendFailure{Conn: conn, Err: domain.ErrConnectionClosed})
			return
		}
		if err := conn.Send(data); err != nil {
			d.Failed = append(d.Failed, SendFailure{Conn: conn, Err: err})
			return
		}
		d.Delivered++
	})
	return d
}
