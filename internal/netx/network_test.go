package netx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerchat/internal/configs"
	"peerchat/internal/pkg/certtest"
	"peerchat/internal/pkg/events"
	"peerchat/internal/wire"
)

// freePort asks the kernel for an unused TCP port on loopback.
func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func serverConfig(port int) *configs.RunConfig {
	return &configs.RunConfig{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "host",
		Color:    "000000",
		Serve:    true,
	}
}

func TestServerAcceptsAndTracksConnections(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	started := make(chan events.ServerStarted, 1)
	bus.Subscribe(events.KindServerStarted, func(e events.Event) {
		started <- e.(events.ServerStarted)
	})

	port := freePort(t)
	registry := NewRegistry(bus)
	network := NewNetwork(serverConfig(port), registry, bus)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- network.Run(ctx) }()

	select {
	case e := <-started:
		assert.Equal(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), e.Addr)
	case <-time.After(2 * time.Second):
		t.Fatal("server never started")
	}

	sock, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	sock.Close()
	require.Eventually(t, func() bool { return registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on cancellation")
	}
}

func TestServerBindFailureIsFatal(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	port := freePort(t)
	blocker, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer blocker.Close()

	network := NewNetwork(serverConfig(port), NewRegistry(bus), bus)
	assert.Error(t, network.Run(context.Background()))
}

func TestClientConnectsAndRunsToCompletion(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	connected := make(chan events.ConnectedToHost, 1)
	bus.Subscribe(events.KindConnectedToHost, func(e events.Event) {
		connected <- e.(events.ConnectedToHost)
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	addr := listener.Addr().(*net.TCPAddr)

	accepted := make(chan net.Conn, 1)
	go func() {
		sock, err := listener.Accept()
		if err == nil {
			accepted <- sock
		}
	}()

	cfg := &configs.RunConfig{Host: "127.0.0.1", Port: addr.Port, Username: "alice", Color: "ff0000"}
	registry := NewRegistry(bus)
	network := NewNetwork(cfg, registry, bus)

	runDone := make(chan error, 1)
	go func() { runDone <- network.Run(context.Background()) }()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never announced the connection")
	}

	var serverSide net.Conn
	select {
	case serverSide = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never saw the dial")
	}

	require.Eventually(t, func() bool { return registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Frames pushed by the server side surface as events.
	received := make(chan events.FrameReceived, 1)
	bus.Subscribe(events.KindFrameReceived, func(e events.Event) {
		received <- e.(events.FrameReceived)
	})
	require.NoError(t, wire.WriteFrame(serverSide, []byte("hello")))
	select {
	case e := <-received:
		assert.Equal(t, []byte("hello"), e.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("frame never surfaced")
	}

	// When the server hangs up, the client's networking lifecycle ends.
	serverSide.Close()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client Run did not end after disconnect")
	}
	assert.Equal(t, 0, registry.Len())
}

func TestClientConnectionRefusedIsFatal(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	cfg := &configs.RunConfig{Host: "127.0.0.1", Port: freePort(t), Username: "alice", Color: "ff0000"}
	network := NewNetwork(cfg, NewRegistry(bus), bus)

	assert.Error(t, network.Run(context.Background()))
}

// startTLSServer runs a server with mutual TLS and returns once it is
// listening.
func startTLSServer(t *testing.T, certFile, caFile string) (*configs.RunConfig, *Registry, *events.Bus) {
	t.Helper()

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	started := make(chan events.ServerStarted, 1)
	bus.Subscribe(events.KindServerStarted, func(e events.Event) {
		started <- e.(events.ServerStarted)
	})

	cfg := serverConfig(freePort(t))
	cfg.SSL = true
	cfg.CertFile = certFile
	cfg.CAFile = caFile

	registry := NewRegistry(bus)
	network := NewNetwork(cfg, registry, bus)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- network.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-runDone:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("TLS server did not stop on cancellation")
		}
	})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("TLS server never started")
	}
	return cfg, registry, bus
}

func TestMutualTLSFrameRoundTrip(t *testing.T) {
	certFile, caFile := certtest.WriteCredentials(t)
	serverCfg, serverRegistry, serverBus := startTLSServer(t, certFile, caFile)

	received := make(chan events.FrameReceived, 1)
	serverBus.Subscribe(events.KindFrameReceived, func(e events.Event) {
		received <- e.(events.FrameReceived)
	})

	clientBus := events.NewBus()
	defer clientBus.Close()

	connected := make(chan events.ConnectedToHost, 1)
	clientBus.Subscribe(events.KindConnectedToHost, func(e events.Event) {
		connected <- e.(events.ConnectedToHost)
	})

	// Host is an IP, so verification rides on the certificate's IP SAN.
	clientCfg := &configs.RunConfig{
		Host:     "127.0.0.1",
		Port:     serverCfg.Port,
		Username: "alice",
		Color:    "ff0000",
		SSL:      true,
		CertFile: certFile,
		CAFile:   caFile,
	}
	clientRegistry := NewRegistry(clientBus)
	client := NewNetwork(clientCfg, clientRegistry, clientBus)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- client.Run(ctx) }()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never completed the TLS handshake")
	}
	require.Eventually(t, func() bool { return serverRegistry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return clientRegistry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	clientRegistry.Broadcast([]byte("over tls"), nil, nil)
	select {
	case e := <-received:
		assert.Equal(t, []byte("over tls"), e.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("frame never crossed the TLS connection")
	}

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop on cancellation")
	}
}

func TestServerRejectsClientWithoutCertificate(t *testing.T) {
	certFile, caFile := certtest.WriteCredentials(t)
	serverCfg, serverRegistry, _ := startTLSServer(t, certFile, caFile)

	caPEM, err := os.ReadFile(caFile)
	require.NoError(t, err)
	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(caPEM))

	// Trusts the server but presents no certificate of its own. Depending
	// on the negotiated TLS version the rejection surfaces on Dial or on
	// the first read after it.
	conn, err := tls.Dial("tcp", serverCfg.Addr(), &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12})
	if err == nil {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, err = conn.Read(make([]byte, 1))
		conn.Close()
	}
	require.Error(t, err, "connection without a client certificate must be refused")

	require.Eventually(t, func() bool { return serverRegistry.Len() == 0 }, 2*time.Second, 10*time.Millisecond,
		"the rejected connection must not stay registered")
}
