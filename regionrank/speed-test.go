package regionrank

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LineFunc records one line of output. An error from it aborts the run.
type LineFunc func(line string) error

// SpeedTestRunner runs the speed test tool and scrapes its output.
type SpeedTestRunner struct {
	cfg       *Config
	commander Commander
	log       logrus.FieldLogger
}

func NewSpeedTestRunner(cfg *Config, commander Commander, log logrus.FieldLogger) *SpeedTestRunner {
	return &SpeedTestRunner{
		cfg:       cfg,
		commander: commander,
		log:       log,
	}
}

func (r *SpeedTestRunner) args() []string {
	return []string{"--progress=no", "--server-id=" + r.cfg.TargetServerID}
}

// Run tests the current connection on behalf of region, passing recognised lines to record.
// The returned error is fatal; per-region failures are reported in TestResult.Failure.
func (r *SpeedTestRunner) Run(ctx context.Context, region string, record LineFunc) (*TestResult, error) {
	procCtx, kill := context.WithCancel(ctx)
	defer kill()

	proc, err := r.commander.Start(procCtx, r.cfg.SpeedTestCommand, r.args()...)
	if err != nil {
		return nil, errors.Wrap(err, "could not start speed test")
	}

	stream := newLineStream(proc.Stdout())
	defer func() {
		stream.Close()
		kill()
		if err := proc.Wait(); err != nil {
			r.log.WithError(err).WithField("region", region).Debug("speed test exited abnormally")
		}
	}()

	result := &TestResult{Region: region}

	if err := sleep(ctx, r.cfg.StartupDelay); err != nil {
		return nil, err
	}

	first, err := r.awaitOutput(ctx, stream)
	if IsSoftFailure(err) {
		result.Failure = err
		return result, record(failureLine(err))
	}
	if err != nil {
		return nil, err
	}

	return result, r.parse(ctx, stream, first, result, record)
}

// awaitOutput skips blank lines until the grace period runs out.
func (r *SpeedTestRunner) awaitOutput(ctx context.Context, stream *lineStream) (string, error) {
	grace := time.NewTimer(r.cfg.GracePeriod)
	defer grace.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", errors.Wrap(ctx.Err(), "speed test interrupted")
		case <-grace.C:
			return "", ErrInitTimeout
		case line, ok := <-stream.lines:
			if !ok {
				if stream.err != nil {
					return "", errors.Wrap(stream.err, "could not read speed test output")
				}
				return "", ErrNoOutput
			}
			if strings.TrimSpace(line) != "" {
				return line, nil
			}
		}
	}
}

func (r *SpeedTestRunner) parse(ctx context.Context, stream *lineStream, line string, result *TestResult, record LineFunc) error {
	deadline := time.NewTimer(r.cfg.ActiveTimeout)
	defer deadline.Stop()

	for {
		done, err := r.handleLine(line, result, record)
		if err != nil || done {
			return err
		}

		var ok bool
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "speed test interrupted")
		case <-deadline.C:
			result.Failure = ErrActiveTimeout
			return record(failureLine(ErrActiveTimeout))
		case line, ok = <-stream.lines:
			if !ok {
				if stream.err != nil {
					return errors.Wrap(stream.err, "could not read speed test output")
				}
				return nil
			}
		}
	}
}

func (r *SpeedTestRunner) handleLine(line string, result *TestResult, record LineFunc) (bool, error) {
	if strings.Contains(line, markerError) {
		result.Failure = errors.Wrap(ErrSpeedTestFailed, strings.TrimSpace(line))
		return true, record(line)
	}
	if !isResultLine(line) {
		return false, nil
	}

	if strings.Contains(line, markerDownload) && result.Measurement == nil {
		mbps, err := ParseMbps(line)
		if err != nil {
			r.log.WithError(err).WithField("region", result.Region).Warn("skipping download line")
		} else {
			result.Measurement = &Measurement{Region: result.Region, DownloadMbps: mbps}
		}
	}

	return false, record(line)
}

func failureLine(failure error) string {
	switch {
	case errors.Is(failure, ErrInitTimeout):
		return initTimeoutLine
	case errors.Is(failure, ErrActiveTimeout):
		return activeTimeoutLine
	case errors.Is(failure, ErrNoOutput):
		return noOutputLine
	}
	return failure.Error()
}
