package regionrank

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Runner tests every region in turn and writes the ranked report.
type Runner struct {
	cfg       *Config
	vpn       *VPNControl
	speedTest *SpeedTestRunner
	console   io.Writer
	printer   *log.Logger
	log       logrus.FieldLogger
}

func NewRunner(cfg *Config, commander Commander, console io.Writer, logger logrus.FieldLogger) *Runner {
	return &Runner{
		cfg:       cfg,
		vpn:       NewVPNControl(cfg, commander, console, logger),
		speedTest: NewSpeedTestRunner(cfg, commander, logger),
		console:   console,
		printer:   log.New(console, "", 0),
		log:       logger,
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// selectRegions keeps the listed regions that were requested, or all of them when none were.
func (r *Runner) selectRegions(listed []string) []string {
	if len(r.cfg.Regions) == 0 {
		return listed
	}

	known := map[string]bool{}
	for _, region := range listed {
		known[region] = true
	}

	wanted := map[string]bool{}
	for _, region := range r.cfg.Regions {
		if !known[region] {
			r.log.WithField("region", region).Warn("requested region is not offered by the vpn")
			continue
		}
		wanted[region] = true
	}

	ret := []string{}
	for _, region := range listed {
		if wanted[region] {
			ret = append(ret, region)
		}
	}
	return ret
}

// RunAndPrint executes the whole run. The ranker is returned even when a fatal error cut the run short.
func (r *Runner) RunAndPrint(ctx context.Context) (ranker *Ranker, err error) {
	ranker = NewRanker()

	listed, err := r.vpn.ListRegions(ctx)
	if err != nil {
		return ranker, err
	}
	regions := r.selectRegions(listed)
	r.log.WithField("regions", len(regions)).Info("starting run")

	report, err := CreateReport(r.cfg.OutputPath, r.console, r.cfg.Verbose)
	if err != nil {
		return ranker, err
	}
	defer func() {
		if closeErr := report.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, region := range regions {
		if err := r.testRegion(ctx, region, report, ranker); err != nil {
			return ranker, errors.Wrapf(err, "testing region %s", region)
		}
	}

	if err := report.Println(rankingHeader); err != nil {
		return ranker, err
	}
	for _, m := range ranker.Ranked() {
		if err := report.Println(m.String()); err != nil {
			return ranker, err
		}
	}

	if err := report.Close(); err != nil {
		return ranker, err
	}
	r.log.WithFields(logrus.Fields{
		"path": report.Path(),
		"size": humanize.Bytes(uint64(report.Written())),
	}).Info("report written")

	r.printer.Println()
	printDownloadStats(r.printer, ranker.Ranked())

	return ranker, nil
}

func (r *Runner) recordFailure(report *Report, state string, message string) error {
	if err := report.Println(state); err != nil {
		return err
	}
	if err := report.Println(message); err != nil {
		return err
	}
	return report.Println("")
}

func (r *Runner) testRegion(ctx context.Context, region string, report *Report, ranker *Ranker) error {
	logger := r.log.WithField("region", region)

	r.printer.Println("Disconnecting")
	state, disconnectErr := r.vpn.EnsureDisconnected(ctx)
	if disconnectErr != nil && !IsSoftFailure(disconnectErr) {
		return disconnectErr
	}

	if err := report.Println(region); err != nil {
		return err
	}
	if disconnectErr != nil {
		logger.WithError(disconnectErr).Warn("skipping region")
		return r.recordFailure(report, state, fmt.Sprintf("Disconnect Failed after %s seconds.", formatSeconds(r.cfg.DisconnectTimeout)))
	}

	r.printer.Printf("Connecting to %s\n", region)
	state, err := r.vpn.ConnectTo(ctx, region)
	if err != nil && !IsSoftFailure(err) {
		return err
	}
	if err != nil {
		logger.WithError(err).Warn("skipping region")
		return r.recordFailure(report, state, fmt.Sprintf("Connection Failed after %s seconds.", formatSeconds(r.cfg.ConnectTimeout)))
	}

	r.printer.Printf("Running speed test for server %s\n", region)
	result, err := r.speedTest.Run(ctx, region, report.Println)
	if err != nil {
		return err
	}

	if result.Failure != nil {
		logger.WithError(result.Failure).Warn("speed test failed")
	}
	if result.Measurement != nil {
		ranker.Add(*result.Measurement)
		logger.WithField("download_mbps", result.Measurement.DownloadMbps).Debug("measured")
	}

	return report.Println("")
}
