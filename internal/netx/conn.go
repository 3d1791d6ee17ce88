/*
Package netx contains the network layer: per-socket connections, the
registry of live connections, and the transport bootstrap that runs the
process as either a listening server or a single outbound client.

This file defines the Conn struct, representing one framed TCP connection.
It manages the connection's lifecycle and its two communication loops
(readLoop and writeLoop).
*/
package netx

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"peerchat/internal/pkg/events"
	"peerchat/internal/pkg/fifo"
	"peerchat/internal/pkg/logx"
	"peerchat/internal/wire"
)

// Conn represents one live framed connection.
//
// Each connection gets its own unique id, a reader and writer over the
// socket, and an unbounded FIFO of outbound frame payloads. The two
// directions run concurrently and share the connection's fate: when either
// ends, the whole connection is torn down.
type Conn struct {
	// ID uniquely identifies the connection for its whole lifetime and,
	// on the server, doubles as the joined user's identity.
	ID uuid.UUID

	sock       net.Conn
	outbound   *fifo.Queue[[]byte]
	remoteAddr string

	// closeOnce makes teardown idempotent across the two loops and any
	// external Close caller.
	closeOnce sync.Once

	logger zerolog.Logger
}

// NewConn wraps an established socket in a Conn with a fresh random id.
func NewConn(sock net.Conn) *Conn {
	id := uuid.New()

	remoteAddr := "unknown"
	if addr := sock.RemoteAddr(); addr != nil {
		remoteAddr = addr.String()
	}

	return &Conn{
		ID:         id,
		sock:       sock,
		outbound:   fifo.New[[]byte](),
		remoteAddr: remoteAddr,
		logger: logx.Logger().With().
			Str("conn_id", id.String()).
			Str("remote_addr", remoteAddr).
			Logger(),
	}
}

// RemoteAddr returns the peer's address as reported by the socket.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Send enqueues one frame payload for delivery. It never blocks on network
// I/O; it returns an error only when the connection has already closed.
func (c *Conn) Send(payload []byte) error {
	return c.outbound.Push(payload)
}

// Close tears the connection down: the outbound queue stops accepting,
// the socket closes, and both loops unwind. Safe to call more than once
// and from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.outbound.Close()
		if err := c.sock.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Socket close error during teardown.")
		}
	})
}

// Run drives both directions until the connection ends, then guarantees
// full teardown. It blocks; callers run it in its own goroutine per
// connection.
func (c *Conn) Run(bus *events.Bus) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer c.Close()
		c.readLoop(bus)
	}()

	go func() {
		defer wg.Done()
		defer c.Close()
		c.writeLoop()
	}()

	wg.Wait()
}

// readLoop reads frames off the socket and publishes each payload as a
// FrameReceived event. A clean EOF, a mid-frame EOF, or any read error
// terminates the loop and with it the connection.
func (c *Conn) readLoop(bus *events.Bus) {
	reader := bufio.NewReader(c.sock)

	for {
		payload, err := wire.ReadFrame(reader)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				c.logger.Info().Msg("Peer closed the connection.")
			case errors.Is(err, net.ErrClosed):
				c.logger.Debug().Msg("Read loop ending after local close.")
			default:
				c.logger.Warn().Err(err).Msg("Read loop ending on error.")
			}
			return
		}

		bus.Publish(events.FrameReceived{CID: c.ID, Data: payload})
	}
}

// writeLoop drains the outbound queue in FIFO order, framing and flushing
// each payload. It ends when the queue closes or a write fails.
func (c *Conn) writeLoop() {
	writer := bufio.NewWriter(c.sock)

	for {
		payload, err := c.outbound.Pop()
		if err != nil {
			return
		}

		if err := wire.WriteFrame(writer, payload); err != nil {
			c.logger.Warn().Err(err).Msg("Write loop ending on error.")
			return
		}
		if err := writer.Flush(); err != nil {
			c.logger.Warn().Err(err).Msg("Write loop ending on flush error.")
			return
		}
	}
}
