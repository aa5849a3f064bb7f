package regionrank

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const processWaitDelay = 5 * time.Second

// Process is a started external command whose stdout can be streamed.
type Process interface {
	Stdout() io.Reader
	// Wait reaps the process. It must be called once stdout is no longer read.
	Wait() error
}

// Commander starts external commands. Cancelling ctx kills the process.
type Commander interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }

// ExecCommander runs commands on the host.
type ExecCommander struct{}

func (ExecCommander) Start(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = processWaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "could not open stdout of %s", name)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "could not start %s", name)
	}

	return &execProcess{cmd: cmd, stdout: stdout}, nil
}

// runCommand starts a command, discards its output and reaps it.
// Only a failure to start is reported; the exit status is returned separately.
func runCommand(ctx context.Context, commander Commander, name string, args ...string) (exitErr error, err error) {
	proc, err := commander.Start(ctx, name, args...)
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(io.Discard, proc.Stdout()); err != nil {
		_ = proc.Wait()
		return nil, errors.Wrapf(err, "could not read output of %s", name)
	}

	return proc.Wait(), nil
}

// sleep waits for d unless ctx is cancelled first.
func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return errors.Wrap(err, "wait interrupted")
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait interrupted")
	case <-timer.C:
		return nil
	}
}

func trimLine(line string) string {
	return strings.TrimRight(line, "\r")
}

// lineStream scans a reader in the background so callers can select on lines and timers.
type lineStream struct {
	lines chan string
	stop  chan struct{}
	// err is the read error, valid once lines is closed
	err error
}

func newLineStream(r io.Reader) *lineStream {
	s := &lineStream{
		lines: make(chan string),
		stop:  make(chan struct{}),
	}

	go func() {
		defer close(s.lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case s.lines <- trimLine(scanner.Text()):
			case <-s.stop:
				return
			}
		}
		s.err = scanner.Err()
	}()

	return s
}

// Close stops delivering lines. The scanning goroutine exits once its reader is closed.
func (s *lineStream) Close() {
	close(s.stop)
}
