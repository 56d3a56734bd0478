package transport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListen_AcceptDial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.sock")

	ln, err := Listen(path)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- c
	}()

	client, err := Dial(path)
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	require.NotNil(t, server)
	defer server.Close()

	require.NoError(t, client.WriteFrame([]byte("ping")))
	got, err := server.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))
}

func TestListen_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.sock")

	ln, err := Listen(path)
	require.NoError(t, err)
	defer ln.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestListen_ReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.sock")

	first, err := Listen(path)
	require.NoError(t, err)
	// Simulate a crashed daemon leaving the socket file behind.
	require.NoError(t, first.ln.Close())
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE, 0o600)
		require.NoError(t, err)
		f.Close()
	}

	second, err := Listen(path)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}

func TestListen_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "notibridge", "bridge.sock")

	ln, err := Listen(path)
	require.NoError(t, err)
	defer ln.Close()

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDial_NoSocket(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "missing.sock"))
	assert.Error(t, err)
}
