/*
Package configs is responsible for loading and validating the application's
runtime configuration.

Configuration comes from command-line flags, is validated and normalized
once at startup, and is passed by reference into each component's
constructor. It also builds the optional TLS configuration for the
process's role (server or client); both roles use mutual TLS when --ssl
is set.
*/
package configs

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// colorPattern matches a normalized 6-hex-digit RGB color.
var colorPattern = regexp.MustCompile(`^[0-9a-f]{6}$`)

// RunConfig contains all configuration parameters required for the
// application to run. It is constructed once by Load and never mutated.
type RunConfig struct {
	// Host is the interface to bind (server) or the host to dial (client).
	Host string

	// Port is the TCP port to listen on or connect to.
	Port int

	// Username is the display name announced in the chat.
	Username string

	// Color is the normalized 6-hex-digit RGB display color.
	Color string

	// Serve selects the server role; when false the process runs as a
	// client.
	Serve bool

	// SSL requires mutual TLS on the connection.
	SSL bool

	// CertFile is the path to a PEM file holding the local certificate
	// chain and private key.
	CertFile string

	// CAFile is the path to the PEM certificate authority used to verify
	// the peer.
	CAFile string

	// LogFile is an optional path for structured log output. Empty
	// disables logging.
	LogFile string
}

// Load parses args (excluding the program name) into a validated RunConfig.
// It returns pflag.ErrHelp when the user asked for usage.
func Load(args []string) (*RunConfig, error) {
	cfg := &RunConfig{}

	flags := pflag.NewFlagSet("peerchat", pflag.ContinueOnError)
	flags.StringVarP(&cfg.Host, "host", "H", "0.0.0.0", "host of the server")
	flags.IntVarP(&cfg.Port, "port", "P", 8080, "port of the server")
	flags.StringVarP(&cfg.Username, "username", "u", "Anonymous", "display name to use in the chat")
	flags.StringVarP(&cfg.Color, "color", "c", "000000", "display color to use for your messages (hex RGB)")
	flags.BoolVarP(&cfg.Serve, "serve", "s", false, "run the chat server for others to connect")
	flags.BoolVar(&cfg.SSL, "ssl", false, "use secure connection via mutual TLS")
	flags.StringVar(&cfg.CertFile, "certfile", "./client.pem", "path to TLS certificate and key (PEM)")
	flags.StringVar(&cfg.CAFile, "cafile", "./rootCA.pem", "path to TLS certificate authority (PEM)")
	flags.StringVar(&cfg.LogFile, "log-file", "", "append structured JSON logs to this file")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if extra := flags.Args(); len(extra) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", extra[0])
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the valid range (1-65535)", cfg.Port)
	}

	if strings.TrimSpace(cfg.Username) == "" {
		return nil, fmt.Errorf("username must not be empty")
	}

	color, err := NormalizeColor(cfg.Color)
	if err != nil {
		return nil, err
	}
	cfg.Color = color

	return cfg, nil
}

// NormalizeColor strips an optional leading '#', lowercases the digits, and
// validates that the result is exactly six hex digits.
func NormalizeColor(color string) (string, error) {
	normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(color), "#"))
	if !colorPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid color %q: expected 6 hex digits (leading '#' optional)", color)
	}
	return normalized, nil
}

// Addr returns the host:port address for binding or dialing.
func (c *RunConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TLSConfig builds the TLS configuration for the process's role, or
// (nil, nil) when --ssl is not set. Both roles present the certificate
// from CertFile and verify the peer against CAFile: the server requires
// and verifies client certificates, the client verifies the server chain.
func (c *RunConfig) TLSConfig() (*tls.Config, error) {
	if !c.SSL {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.CertFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate chain from %s: %w", c.CertFile, err)
	}

	caPEM, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read certificate authority from %s: %w", c.CAFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates found in %s", c.CAFile)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if c.Serve {
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsCfg.RootCAs = pool
		if c.Host != "" && net.ParseIP(c.Host) == nil {
			tlsCfg.ServerName = c.Host
		}
	}

	return tlsCfg, nil
}
