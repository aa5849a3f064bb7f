package regionrank

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	markerError       = "[error]"
	markerDownload    = "Download"
	mbpsSuffix        = " Mbps"
	initTimeoutLine   = "Unexpected Output / Speed Test Initialization Timed Out"
	activeTimeoutLine = "Unexpected Output / Speed Test Timed Out While Reading Results"
	noOutputLine      = "Speed Test Produced No Output"
	rankingHeader     = "Servers ranked by download speed:"
)

var resultMarkers = []string{"Latency", markerDownload, "Upload", "Packet Loss"}

func isResultLine(line string) bool {
	for _, marker := range resultMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// ParseMbps extracts the value between the first digit of line and the " Mbps" that follows it.
func ParseMbps(line string) (float64, error) {
	start := strings.IndexAny(line, "0123456789")
	if start < 0 {
		return 0, errors.Wrapf(ErrMalformedDownload, "no digit in %q", line)
	}

	end := strings.Index(line[start:], mbpsSuffix)
	if end < 0 {
		return 0, errors.Wrapf(ErrMalformedDownload, "no%s after value in %q", mbpsSuffix, line)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(line[start:start+end]), 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedDownload, "%v", err)
	}

	return value, nil
}
