package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/makotom/regionrank/regionrank"
)

var (
	BuildName       = "\b"
	BuildAnnotation = "git"
)

type CmdOpts struct {
	configPath string
	envFile    string
	logLevel   string
	quiet      bool

	vpnCommand       string
	speedTestCommand string
	serverID         string
	output           string
	regions          []string

	settleInterval    time.Duration
	disconnectTimeout time.Duration
	connectTimeout    time.Duration
	startupDelay      time.Duration
	gracePeriod       time.Duration
	activeTimeout     time.Duration
}

func printTimestamp() {
	fmt.Println()
	fmt.Printf("At: %s\n", time.Now().Format(time.RFC1123Z))
	fmt.Println()
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cmd *cobra.Command, opts *CmdOpts, cfg *regionrank.Config) {
	flags := cmd.Flags()

	strs := map[string]struct {
		from *string
		to   *string
	}{
		"vpn-command":       {&opts.vpnCommand, &cfg.VPNCommand},
		"speedtest-command": {&opts.speedTestCommand, &cfg.SpeedTestCommand},
		"server-id":         {&opts.serverID, &cfg.TargetServerID},
		"output":            {&opts.output, &cfg.OutputPath},
	}
	for name, field := range strs {
		if flags.Changed(name) {
			*field.to = *field.from
		}
	}

	durations := map[string]struct {
		from *time.Duration
		to   *time.Duration
	}{
		"settle-interval":    {&opts.settleInterval, &cfg.SettleInterval},
		"disconnect-timeout": {&opts.disconnectTimeout, &cfg.DisconnectTimeout},
		"connect-timeout":    {&opts.connectTimeout, &cfg.ConnectTimeout},
		"startup-delay":      {&opts.startupDelay, &cfg.StartupDelay},
		"grace-period":       {&opts.gracePeriod, &cfg.GracePeriod},
		"active-timeout":     {&opts.activeTimeout, &cfg.ActiveTimeout},
	}
	for name, field := range durations {
		if flags.Changed(name) {
			*field.to = *field.from
		}
	}

	if flags.Changed("region") {
		cfg.Regions = opts.regions
	}
	if flags.Changed("quiet") {
		cfg.Verbose = !opts.quiet
	}
}

// buildConfig layers defaults, the config file, the environment and flags, in that order.
func buildConfig(cmd *cobra.Command, opts *CmdOpts, lookupEnv func(string) (string, bool)) (*regionrank.Config, error) {
	if err := regionrank.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}

	cfg, err := regionrank.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}
	applyFlags(cmd, opts, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(parsed)
	return logger, nil
}

func newRootCmd(opts *CmdOpts) *cobra.Command {
	defaults := regionrank.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "regionrank",
		Short:         "Rank VPN regions by measured download speed",
		Version:       fmt.Sprintf("%s (%s)", BuildName, BuildAnnotation),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(opts.logLevel)
			if err != nil {
				return err
			}

			cfg, err := buildConfig(cmd, opts, os.LookupEnv)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("regionrank %s (%s)\n", BuildName, BuildAnnotation)
			printTimestamp()

			runLog := logger.WithField("run", uuid.NewString())
			_, err = regionrank.NewRunner(cfg, regionrank.ExecCommander{}, os.Stdout, runLog).RunAndPrint(ctx)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with REGIONRANK_* variables, ignored when missing")
	flags.StringVar(&opts.logLevel, "log-level", "info", "diagnostic log level (debug, info, warn, error)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "do not mirror the report to stdout")

	flags.StringVar(&opts.vpnCommand, "vpn-command", defaults.VPNCommand, "VPN control tool")
	flags.StringVar(&opts.speedTestCommand, "speedtest-command", defaults.SpeedTestCommand, "speed test tool")
	flags.StringVar(&opts.serverID, "server-id", defaults.TargetServerID, "speed test server id every region is measured against")
	flags.StringVarP(&opts.output, "output", "o", defaults.OutputPath, "report file, truncated on every run")
	flags.StringSliceVar(&opts.regions, "region", nil, "only test these regions (repeatable)")

	flags.DurationVar(&opts.settleInterval, "settle-interval", defaults.SettleInterval, "pause after VPN commands and before reading the connection state")
	flags.DurationVar(&opts.disconnectTimeout, "disconnect-timeout", defaults.DisconnectTimeout, "how long to wait for the VPN to disconnect")
	flags.DurationVar(&opts.connectTimeout, "connect-timeout", defaults.ConnectTimeout, "how long to wait for the VPN to connect")
	flags.DurationVar(&opts.startupDelay, "startup-delay", defaults.StartupDelay, "pause before reading speed test output")
	flags.DurationVar(&opts.gracePeriod, "grace-period", defaults.GracePeriod, "how long the speed test may stay silent")
	flags.DurationVar(&opts.activeTimeout, "active-timeout", defaults.ActiveTimeout, "how long reading speed test results may take")

	return cmd
}

func main() {
	if err := newRootCmd(&CmdOpts{}).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
