package regionrank

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// VPNControl drives the VPN control tool through its command line.
type VPNControl struct {
	cfg       *Config
	commander Commander
	// progress receives one marker per state poll
	progress io.Writer
	log      logrus.FieldLogger
}

func NewVPNControl(cfg *Config, commander Commander, progress io.Writer, log logrus.FieldLogger) *VPNControl {
	return &VPNControl{
		cfg:       cfg,
		commander: commander,
		progress:  progress,
		log:       log,
	}
}

// ListRegions returns the regions the tool offers, de-duplicated and sorted.
func (v *VPNControl) ListRegions(ctx context.Context) ([]string, error) {
	proc, err := v.commander.Start(ctx, v.cfg.VPNCommand, "get", "regions")
	if err != nil {
		return nil, errors.Wrap(err, "could not list regions")
	}

	seen := map[string]bool{}
	regions := []string{}

	scanner := bufio.NewScanner(proc.Stdout())
	for scanner.Scan() {
		region := trimLine(scanner.Text())
		if strings.TrimSpace(region) == "" || seen[region] {
			continue
		}
		seen[region] = true
		regions = append(regions, region)
	}
	if err := scanner.Err(); err != nil {
		_ = proc.Wait()
		return nil, errors.Wrap(err, "could not read region list")
	}
	if err := proc.Wait(); err != nil {
		return nil, errors.Wrap(err, "region listing failed")
	}

	sort.Strings(regions)

	return regions, nil
}

// ConnectionState runs the state query, lets it settle and returns its first output line.
func (v *VPNControl) ConnectionState(ctx context.Context) (string, error) {
	proc, err := v.commander.Start(ctx, v.cfg.VPNCommand, "get", "connectionstate")
	if err != nil {
		return "", errors.Wrap(err, "could not query connection state")
	}

	if err := sleep(ctx, v.cfg.SettleInterval); err != nil {
		_ = proc.Wait()
		return "", err
	}

	reader := bufio.NewReader(proc.Stdout())
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		_ = proc.Wait()
		return "", errors.Wrap(err, "could not read connection state")
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		_ = proc.Wait()
		return "", errors.Wrap(err, "could not read connection state")
	}
	if err := proc.Wait(); err != nil {
		v.log.WithError(err).Debug("connection state query exited abnormally")
	}

	return trimLine(strings.TrimSuffix(line, "\n")), nil
}

// WaitForState polls until target is observed or maxWait has elapsed, whichever comes first.
// It always polls at least once and returns the last observed state.
func (v *VPNControl) WaitForState(ctx context.Context, target string, maxWait time.Duration) (string, error) {
	start := time.Now()
	defer v.printProgress("\n")

	for {
		state, err := v.ConnectionState(ctx)
		if err != nil {
			return "", err
		}
		v.printProgress(".")

		if state == target || time.Since(start) >= maxWait {
			return state, nil
		}
	}
}

// printProgress writes a poll marker. Write failures are only logged.
func (v *VPNControl) printProgress(marker string) {
	if _, err := io.WriteString(v.progress, marker); err != nil {
		v.log.WithError(err).Debug("could not write progress")
	}
}

func (v *VPNControl) run(ctx context.Context, args ...string) error {
	exitErr, err := runCommand(ctx, v.commander, v.cfg.VPNCommand, args...)
	if err != nil {
		return errors.Wrapf(err, "%s %s", v.cfg.VPNCommand, strings.Join(args, " "))
	}
	if exitErr != nil {
		// the state poll that follows decides whether the command took effect
		v.log.WithError(exitErr).WithField("args", args).Debug("vpn command exited abnormally")
	}
	return nil
}

func (v *VPNControl) Disconnect(ctx context.Context) error {
	return v.run(ctx, "disconnect")
}

func (v *VPNControl) SetRegion(ctx context.Context, region string) error {
	if err := v.run(ctx, "set", "region", region); err != nil {
		return err
	}
	return sleep(ctx, v.cfg.SettleInterval)
}

func (v *VPNControl) Connect(ctx context.Context) error {
	if err := v.run(ctx, "connect"); err != nil {
		return err
	}
	return sleep(ctx, v.cfg.SettleInterval)
}

// EnsureDisconnected disconnects and waits for the tool to confirm it.
// The returned state is the last one observed; a soft error reports a timeout.
func (v *VPNControl) EnsureDisconnected(ctx context.Context) (string, error) {
	if err := v.Disconnect(ctx); err != nil {
		return "", err
	}

	state, err := v.WaitForState(ctx, StateDisconnected, v.cfg.DisconnectTimeout)
	if err != nil {
		return "", err
	}
	if state != StateDisconnected {
		return state, errors.Wrapf(ErrDisconnectTimeout, "state %q after %s", state, v.cfg.DisconnectTimeout)
	}

	return state, nil
}

// ConnectTo selects region, connects and waits for the tool to report it connected.
func (v *VPNControl) ConnectTo(ctx context.Context, region string) (string, error) {
	if err := v.SetRegion(ctx, region); err != nil {
		return "", err
	}
	if err := v.Connect(ctx); err != nil {
		return "", err
	}

	state, err := v.WaitForState(ctx, StateConnected, v.cfg.ConnectTimeout)
	if err != nil {
		return "", err
	}
	if state != StateConnected {
		return state, errors.Wrapf(ErrConnectTimeout, "state %q after %s", state, v.cfg.ConnectTimeout)
	}

	return state, nil
}
