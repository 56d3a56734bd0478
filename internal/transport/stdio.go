package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// stdioPipe joins the process's stdin and stdout into one stream. Closing
// it closes stdout only; stdin belongs to the parent.
type stdioPipe struct {
	in  io.Reader
	out io.WriteCloser
}

func (p *stdioPipe) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *stdioPipe) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p *stdioPipe) Close() error                { return p.out.Close() }

// Stdio returns a Conn over the process's own stdin and stdout, for
// deployments where the remote side spawns this process and owns the
// pipes (the qrexec model).
func Stdio() *Conn {
	return NewConn(&stdioPipe{in: os.Stdin, out: os.Stdout})
}

// procPipe is a spawned child whose stdin/stdout carry the frames.
type procPipe struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out io.ReadCloser
}

func (p *procPipe) Read(b []byte) (int, error)  { return p.out.Read(b) }
func (p *procPipe) Write(b []byte) (int, error) { return p.in.Write(b) }

// Close tears the child down. The child gets EOF on stdin first, then a
// kill, so Wait always returns.
func (p *procPipe) Close() error {
	_ = p.in.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Killed or nonzero exit is the expected way down.
		return nil
	}
	return err
}

// Command spawns argv and returns a Conn over its stdio. The child's
// stderr passes through to ours. Cancelling ctx kills the child.
func Command(ctx context.Context, argv []string) (*Conn, error) {
	if len(argv) == 0 {
		return nil, errors.New("transport: empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return NewConn(&procPipe{cmd: cmd, in: stdin, out: stdout}), nil
}
