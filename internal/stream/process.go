package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync/atomic"
	"time"
)

// Process is a running decode process. Its stdout is handed out separately
// as a reader that ends with io.EOF on a clean exit or deliberate termination
// and with an error otherwise.
type Process struct {
	cancel     context.CancelFunc
	done       chan struct{}
	terminated atomic.Bool
	err        error
}

// Terminate asks the process to exit and returns immediately.
func (p *Process) Terminate() {
	p.terminated.Store(true)
	p.cancel()
}

func (p *Process) Done() <-chan struct{} { return p.done }

// Err is valid after Done is closed. It is nil for deliberate termination.
func (p *Process) Err() error {
	<-p.done
	return p.err
}

// startProcess runs cmd with stdout connected to the returned reader and
// stderr logged line by line.
func startProcess(ctx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, log *slog.Logger) (*Process, io.ReadCloser, error) {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.WaitDelay = 2 * time.Second

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	p := &Process{cancel: cancel, done: make(chan struct{})}
	logged := make(chan struct{})
	go func() {
		defer close(logged)
		logLines(stderr, log)
	}()
	go func() {
		defer close(p.done)
		<-logged
		werr := cmd.Wait()
		stopped := p.terminated.Load() || errors.Is(ctx.Err(), context.Canceled)
		cancel()
		switch {
		case stopped:
			pw.Close()
		case werr != nil:
			p.err = fmt.Errorf("decode process: %w", werr)
			pw.CloseWithError(p.err)
		default:
			pw.Close()
		}
		log.Debug("decode process exited", "err", werr, "terminated", p.terminated.Load())
	}()
	return p, pr, nil
}

func logLines(r io.Reader, log *slog.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 64<<10)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			log.Info(line)
		}
	}
}

type noopProcess struct{}

func (noopProcess) Terminate() {}
