package regionrank

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "REGIONRANK_"

// Config holds every tunable of a run. The defaults reproduce the fixed constants
// the tool has always used.
type Config struct {
	VPNCommand       string `yaml:"vpn_command"`
	SpeedTestCommand string `yaml:"speedtest_command"`
	TargetServerID   string `yaml:"server_id"`
	OutputPath       string `yaml:"output"`
	Verbose          bool   `yaml:"verbose"`

	// Pause after state-changing commands and before reading the connection state
	SettleInterval    time.Duration `yaml:"settle_interval"`
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`

	// Speed test phases
	StartupDelay  time.Duration `yaml:"startup_delay"`
	GracePeriod   time.Duration `yaml:"grace_period"`
	ActiveTimeout time.Duration `yaml:"active_timeout"`

	// Restricts the run to these regions when non-empty
	Regions []string `yaml:"regions"`
}

func DefaultConfig() *Config {
	return &Config{
		VPNCommand:        "piactl",
		SpeedTestCommand:  "speedtest",
		TargetServerID:    "8864", // CenturyLink, Seattle WA
		OutputPath:        "result.txt",
		Verbose:           true,
		SettleInterval:    2 * time.Second,
		DisconnectTimeout: 30 * time.Second,
		ConnectTimeout:    20 * time.Second,
		StartupDelay:      2 * time.Second,
		GracePeriod:       30 * time.Second,
		ActiveTimeout:     8 * 30 * time.Second,
	}
}

// LoadConfig reads a YAML file on top of the defaults. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "could not parse config file %s", path)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given files into the process environment.
// Missing files are ignored; already set variables win.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "could not load %s", path)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with REGIONRANK_* variables found through lookup.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	fields := map[string]*string{
		"VPN_COMMAND":       &cfg.VPNCommand,
		"SPEEDTEST_COMMAND": &cfg.SpeedTestCommand,
		"SERVER_ID":         &cfg.TargetServerID,
		"OUTPUT":            &cfg.OutputPath,
	}
	for key, field := range fields {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*field = v
		}
	}

	if v, ok := lookup(envPrefix + "VERBOSE"); ok && v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sVERBOSE", envPrefix)
		}
		cfg.Verbose = verbose
	}

	return nil
}

func (cfg *Config) Validate() error {
	if cfg.VPNCommand == "" {
		return errors.New("vpn command must not be empty")
	}
	if cfg.SpeedTestCommand == "" {
		return errors.New("speed test command must not be empty")
	}
	if cfg.TargetServerID == "" {
		return errors.New("target server id must not be empty")
	}
	if cfg.OutputPath == "" {
		return errors.New("output path must not be empty")
	}

	for name, d := range map[string]time.Duration{
		"settle interval":    cfg.SettleInterval,
		"disconnect timeout": cfg.DisconnectTimeout,
		"connect timeout":    cfg.ConnectTimeout,
		"startup delay":      cfg.StartupDelay,
		"grace period":       cfg.GracePeriod,
		"active timeout":     cfg.ActiveTimeout,
	} {
		if d < 0 {
			return errors.Errorf("%s must not be negative, got %s", name, d)
		}
	}

	return nil
}
