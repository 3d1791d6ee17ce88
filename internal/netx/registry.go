/*
This file defines the Registry struct, the set of live connections. All
membership changes and broadcast iteration happen under one mutex, so no
operation ever observes a partially-updated membership set.
*/
package netx

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"peerchat/internal/pkg/events"
	"peerchat/internal/pkg/logx"
)

// IDSet is an optional filter for broadcast targeting. A nil IDSet means
// "no constraint".
type IDSet map[uuid.UUID]struct{}

// NewIDSet builds an IDSet from ids.
func NewIDSet(ids ...uuid.UUID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Registry tracks every live connection.
//
// Add and Remove publish ConnectionEstablished / ConnectionLost inside the
// same critical section that mutates membership: there is never an
// "established" event for a connection that is not in the set at that
// moment. Broadcast iterates under the same lock; its per-connection sends
// are enqueue-only, so one connection's failure never delays another's.
type Registry struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*Conn

	bus    *events.Bus
	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry publishing on bus.
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{
		conns:  make(map[uuid.UUID]*Conn),
		bus:    bus,
		logger: logx.Logger().With().Str("component", "registry").Logger(),
	}
}

// Add inserts c into the live set and publishes ConnectionEstablished.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID] = c
	r.logger.Info().
		Str("conn_id", c.ID.String()).
		Int("total_conns", len(r.conns)).
		Msg("Connection registered.")

	r.bus.Publish(events.ConnectionEstablished{CID: c.ID, RemoteAddr: c.RemoteAddr()})
}

// Remove deletes c from the live set and publishes ConnectionLost.
// Removing a connection that is not registered is a no-op.
func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID]; !ok {
		return
	}

	delete(r.conns, c.ID)
	r.logger.Info().
		Str("conn_id", c.ID.String()).
		Int("total_conns", len(r.conns)).
		Msg("Connection unregistered.")

	r.bus.Publish(events.ConnectionLost{CID: c.ID, RemoteAddr: c.RemoteAddr()})
}

// Broadcast enqueues payload on every live connection whose id is in
// include (when non-nil) and not in exclude (when non-nil). Connections
// whose enqueue fails (already closed) are skipped; their teardown will
// remove them from the registry through the usual path.
func (r *Registry) Broadcast(payload []byte, include, exclude IDSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.conns {
		if include != nil {
			if _, ok := include[id]; !ok {
				continue
			}
		}
		if exclude != nil {
			if _, ok := exclude[id]; ok {
				continue
			}
		}

		if err := c.Send(payload); err != nil {
			r.logger.Warn().
				Str("conn_id", id.String()).
				Err(err).
				Msg("Broadcast enqueue failed on closed connection.")
		}
	}
}

// Drop closes the connection with the given id, if registered. The close
// unwinds the connection's loops, which removes it from the registry.
func (r *Registry) Drop(id uuid.UUID) {
	r.mu.Lock()
	c, ok := r.conns[id]
	r.mu.Unlock()

	if ok {
		c.Close()
	}
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns)
}
