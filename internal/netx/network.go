/*
This file defines the Network struct, the transport bootstrap. Exactly one
of its two modes runs per process: a listening server that feeds every
accepted socket into the registry, or a single outbound client connection.
*/
package netx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"peerchat/internal/configs"
	"peerchat/internal/pkg/events"
	"peerchat/internal/pkg/logx"
)

// Network starts and supervises the process's transport role.
type Network struct {
	cfg      *configs.RunConfig
	registry *Registry
	bus      *events.Bus
	logger   zerolog.Logger
}

// NewNetwork constructs a Network for the given configuration.
func NewNetwork(cfg *configs.RunConfig, registry *Registry, bus *events.Bus) *Network {
	return &Network{
		cfg:      cfg,
		registry: registry,
		bus:      bus,
		logger:   logx.Logger().With().Str("component", "network").Logger(),
	}
}

// Run starts the server or client role per the configuration and blocks
// until the transport ends or ctx is canceled. Startup faults (bind
// failure, TLS material, connection refused) are returned to the caller;
// per-connection failures never are.
func (n *Network) Run(ctx context.Context) error {
	if n.cfg.Serve {
		return n.runServer(ctx)
	}
	return n.runClient(ctx)
}

// runServer binds the listener, announces ServerStarted, and accepts
// sockets until ctx is canceled. Each accepted socket runs on its own
// goroutine so one client's failure never aborts the listener.
func (n *Network) runServer(ctx context.Context) error {
	tlsCfg, err := n.cfg.TLSConfig()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", n.cfg.Addr())
	if err != nil {
		return fmt.Errorf("bind %s: %w", n.cfg.Addr(), err)
	}
	if tlsCfg != nil {
		listener = tls.NewListener(listener, tlsCfg)
	}

	// Unblock Accept when the context ends.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	n.logger.Info().Str("addr", n.cfg.Addr()).Bool("tls", tlsCfg != nil).Msg("Server listening.")
	n.bus.Publish(events.ServerStarted{Addr: n.cfg.Addr()})

	for {
		sock, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		go n.runConnection(ctx, sock)
	}
}

// runClient dials the server once, announces ConnectedToHost, and runs the
// single connection to completion. When it ends, the client's networking
// lifecycle ends with it.
func (n *Network) runClient(ctx context.Context) error {
	tlsCfg, err := n.cfg.TLSConfig()
	if err != nil {
		return err
	}

	var sock net.Conn
	if tlsCfg != nil {
		dialer := &tls.Dialer{Config: tlsCfg}
		sock, err = dialer.DialContext(ctx, "tcp", n.cfg.Addr())
	} else {
		dialer := &net.Dialer{}
		sock, err = dialer.DialContext(ctx, "tcp", n.cfg.Addr())
	}
	if err != nil {
		return fmt.Errorf("connect to %s: %w", n.cfg.Addr(), err)
	}

	n.logger.Info().Str("addr", n.cfg.Addr()).Bool("tls", tlsCfg != nil).Msg("Connected to server.")
	n.bus.Publish(events.ConnectedToHost{Addr: n.cfg.Addr()})

	n.runConnection(ctx, sock)
	return nil
}

// runConnection owns one socket's whole life: register, run both loops to
// completion, unregister. Context cancellation closes the connection.
func (n *Network) runConnection(ctx context.Context, sock net.Conn) {
	c := NewConn(sock)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	n.registry.Add(c)
	defer n.registry.Remove(c)
	defer close(done)

	c.Run(n.bus)
}
