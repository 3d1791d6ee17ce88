package configs

import (
	"crypto/tls"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerchat/internal/pkg/certtest"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "Anonymous", cfg.Username)
	assert.Equal(t, "000000", cfg.Color)
	assert.False(t, cfg.Serve)
	assert.False(t, cfg.SSL)
	assert.Equal(t, "./client.pem", cfg.CertFile)
	assert.Equal(t, "./rootCA.pem", cfg.CAFile)
	assert.Empty(t, cfg.LogFile)
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{
		"--host", "chat.example.com",
		"-P", "9999",
		"-u", "alice",
		"-c", "#FF00AA",
		"-s",
		"--ssl",
		"--certfile", "/etc/chat/alice.pem",
		"--cafile", "/etc/chat/ca.pem",
		"--log-file", "/tmp/chat.log",
	})
	require.NoError(t, err)

	assert.Equal(t, "chat.example.com", cfg.Host)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "ff00aa", cfg.Color, "color is normalized at load time")
	assert.True(t, cfg.Serve)
	assert.True(t, cfg.SSL)
	assert.Equal(t, "/etc/chat/alice.pem", cfg.CertFile)
	assert.Equal(t, "/etc/chat/ca.pem", cfg.CAFile)
	assert.Equal(t, "/tmp/chat.log", cfg.LogFile)
}

func TestLoadRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"port too low", []string{"-P", "0"}},
		{"port too high", []string{"-P", "70000"}},
		{"blank username", []string{"-u", "   "}},
		{"short color", []string{"-c", "fff"}},
		{"non-hex color", []string{"-c", "zzzzzz"}},
		{"positional argument", []string{"surprise"}},
		{"unknown flag", []string{"--nope"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.args)
			assert.Error(t, err)
		})
	}
}

func TestLoadHelpRequest(t *testing.T) {
	_, err := Load([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestNormalizeColor(t *testing.T) {
	for input, want := range map[string]string{
		"000000":    "000000",
		"#FF0000":   "ff0000",
		"  aBcDeF ": "abcdef",
	} {
		got, err := NormalizeColor(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got)
	}

	for _, input := range []string{"", "#", "12345", "1234567", "ggg000", "#ff00"} {
		_, err := NormalizeColor(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestAddr(t *testing.T) {
	cfg := &RunConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
}

func TestTLSConfigDisabled(t *testing.T) {
	cfg := &RunConfig{}
	tlsCfg, err := cfg.TLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}

func TestTLSConfigMissingFiles(t *testing.T) {
	cfg := &RunConfig{SSL: true, CertFile: "/nonexistent/client.pem", CAFile: "/nonexistent/ca.pem"}
	_, err := cfg.TLSConfig()
	assert.Error(t, err)
}

func TestTLSConfigRoles(t *testing.T) {
	certFile, caFile := certtest.WriteCredentials(t)

	server := &RunConfig{Serve: true, SSL: true, CertFile: certFile, CAFile: caFile}
	serverTLS, err := server.TLSConfig()
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, serverTLS.ClientAuth)
	assert.NotNil(t, serverTLS.ClientCAs)
	assert.Nil(t, serverTLS.RootCAs)

	client := &RunConfig{Host: "chat.example.com", SSL: true, CertFile: certFile, CAFile: caFile}
	clientTLS, err := client.TLSConfig()
	require.NoError(t, err)
	assert.NotNil(t, clientTLS.RootCAs)
	assert.Equal(t, "chat.example.com", clientTLS.ServerName)

	byIP := &RunConfig{Host: "127.0.0.1", SSL: true, CertFile: certFile, CAFile: caFile}
	ipTLS, err := byIP.TLSConfig()
	require.NoError(t, err)
	assert.Empty(t, ipTLS.ServerName, "IP hosts rely on certificate IP SANs")
}
