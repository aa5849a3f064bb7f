package regionrank

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	StateConnected    = "Connected"
	StateDisconnected = "Disconnected"
)

// Soft failures. They are recorded in the report and the run moves on to the next region.
var (
	ErrDisconnectTimeout = errors.New("disconnect did not complete")
	ErrConnectTimeout    = errors.New("connection did not complete")
	ErrInitTimeout       = errors.New("speed test initialization timed out")
	ErrActiveTimeout     = errors.New("speed test timed out while reading results")
	ErrNoOutput          = errors.New("speed test produced no output")
	ErrSpeedTestFailed   = errors.New("speed test reported an error")
	ErrMalformedDownload = errors.New("malformed download line")
)

type Measurement struct {
	Region       string
	DownloadMbps float64
}

func (m Measurement) String() string {
	return m.Region + "\t" + formatMbps(m.DownloadMbps)
}

// TestResult is the outcome of one speed test run. Failure is nil on success.
type TestResult struct {
	Region      string
	Measurement *Measurement
	Failure     error
}

// formatMbps always keeps a fractional digit: 45 renders as "45.0".
func formatMbps(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// IsSoftFailure reports whether err only affects the region being tested.
func IsSoftFailure(err error) bool {
	for _, kind := range []error{
		ErrDisconnectTimeout,
		ErrConnectTimeout,
		ErrInitTimeout,
		ErrActiveTimeout,
		ErrNoOutput,
		ErrSpeedTestFailed,
		ErrMalformedDownload,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
