package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
)

// Listener accepts bridge connections on a unix domain socket.
type Listener struct {
	ln   net.Listener
	path string
}

// Listen binds a unix socket at path with 0600 permissions, replacing a
// stale socket file from a previous run.
func Listen(path string) (*Listener, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating socket directory: %w", err)
		}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("restricting socket permissions: %w", err)
	}
	return &Listener{ln: ln, path: path}, nil
}

// Accept waits for the next connection.
func (l *Listener) Accept() (*Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

// Path returns the socket path.
func (l *Listener) Path() string { return l.path }

// Close stops accepting and unlinks the socket file.
func (l *Listener) Close() error { return l.ln.Close() }

// Dial connects to a relay socket.
func Dial(path string) (*Conn, error) {
	c, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", path, err)
	}
	return NewConn(c), nil
}
