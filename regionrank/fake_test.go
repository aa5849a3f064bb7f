package regionrank

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// fakeScript describes how a fake process behaves.
type fakeScript struct {
	output   string
	hang     bool // keep stdout open until the process is killed
	startErr error
	exitErr  error
}

type fakeProcess struct {
	stdout  *io.PipeReader
	exitErr error
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }

func (p *fakeProcess) Wait() error {
	p.stdout.Close()
	return p.exitErr
}

func startFakeProcess(ctx context.Context, script fakeScript) (Process, error) {
	if script.startErr != nil {
		return nil, script.startErr
	}

	reader, writer := io.Pipe()
	go func() {
		if _, err := io.WriteString(writer, script.output); err != nil {
			return
		}
		if script.hang {
			<-ctx.Done()
			writer.CloseWithError(errors.New("signal: killed"))
			return
		}
		writer.Close()
	}()

	return &fakeProcess{stdout: reader, exitErr: script.exitErr}, nil
}

// scriptedCommander answers every command through respond.
type scriptedCommander struct {
	mu      sync.Mutex
	calls   []string
	respond func(args []string) fakeScript
}

func (c *scriptedCommander) Start(ctx context.Context, name string, args ...string) (Process, error) {
	c.mu.Lock()
	c.calls = append(c.calls, strings.Join(append([]string{name}, args...), " "))
	script := c.respond(args)
	c.mu.Unlock()

	return startFakeProcess(ctx, script)
}

func (c *scriptedCommander) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.calls...)
}

// fakeVPN emulates piactl and speedtest together so that speed test output follows the selected region.
type fakeVPN struct {
	mu           sync.Mutex
	calls        []string
	regions      []string
	state        string
	region       string
	stuck        bool // disconnect never takes effect
	neverConnect map[string]bool
	speedTests   map[string]fakeScript
}

func newFakeVPN(regions ...string) *fakeVPN {
	return &fakeVPN{
		regions:      regions,
		state:        StateConnected,
		neverConnect: map[string]bool{},
		speedTests:   map[string]fakeScript{},
	}
}

func (f *fakeVPN) Start(ctx context.Context, name string, args ...string) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, strings.Join(append([]string{name}, args...), " "))

	if name == "speedtest" {
		return startFakeProcess(ctx, f.speedTests[f.region])
	}

	script := fakeScript{}
	switch strings.Join(args, " ") {
	case "get regions":
		script.output = strings.Join(f.regions, "\n") + "\n"
	case "get connectionstate":
		script.output = f.state + "\n"
	case "disconnect":
		if !f.stuck {
			f.state = StateDisconnected
		}
	case "connect":
		if f.neverConnect[f.region] {
			f.state = "Connecting"
		} else {
			f.state = StateConnected
		}
	default:
		if len(args) == 3 && args[0] == "set" && args[1] == "region" {
			f.region = args[2]
		}
	}

	return startFakeProcess(ctx, script)
}

func (f *fakeVPN) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func countCalls(calls []string, call string) int {
	n := 0
	for _, c := range calls {
		if c == call {
			n++
		}
	}
	return n
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.SettleInterval = time.Millisecond
	cfg.DisconnectTimeout = 20 * time.Millisecond
	cfg.ConnectTimeout = 20 * time.Millisecond
	cfg.StartupDelay = 0
	cfg.GracePeriod = 2 * time.Second
	cfg.ActiveTimeout = 4 * time.Second
	return cfg
}

func testLogger() (logrus.FieldLogger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}
