package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromFlags_RejectsUnknownTransport(t *testing.T) {
	_, err := FromFlags("carrier-pigeon", "127.0.0.1", 0, 0)
	require.Error(t, err)
}

func TestFromFlags_DefaultsSessionTimeout(t *testing.T) {
	cfg, err := FromFlags("stdio", "", 0, 0)
	require.NoError(t, err)
	require.Equal(t, DefaultSessionTimeout, cfg.SessionTimeout)
}

func TestFromFlags_CustomSessionTimeout(t *testing.T) {
	cfg, err := FromFlags("http", "0.0.0.0", 8080, 30)
	require.NoError(t, err)
	require.Equal(t, TransportHTTP, cfg.Transport)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, 30*time.Second, cfg.SessionTimeout)
}

func TestResolveSockDir_PrefersExplicitOverride(t *testing.T) {
	t.Setenv(EnvSockDir, "/custom/sock/dir")
	t.Setenv(EnvXDGRuntime, "/run/user/1000")

	dir, err := ResolveSockDir()
	require.NoError(t, err)
	require.Equal(t, "/custom/sock/dir", dir)
}

func TestResolveSockDir_FallsBackToXDG(t *testing.T) {
	t.Setenv(EnvSockDir, "")
	t.Setenv(EnvXDGRuntime, "/run/user/1000")

	dir, err := ResolveSockDir()
	require.NoError(t, err)
	require.Equal(t, "/run/user/1000", dir)
}

func TestResolveSockDir_FallsBackToDefault(t *testing.T) {
	t.Setenv(EnvSockDir, "")
	t.Setenv(EnvXDGRuntime, "")

	dir, err := ResolveSockDir()
	require.NoError(t, err)
	require.Equal(t, "/tmp", dir)
}

func TestSockFileName(t *testing.T) {
	require.Equal(t, "rdbg-1234", SockFileName(1234, ""))
	require.Equal(t, "rdbg-1234-web", SockFileName(1234, "web"))
}
