package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const envPrefix = "STREAMCTL_"

// ClientConfig holds configuration for the streamctl binary.
type ClientConfig struct {
	ServerURL       string        `yaml:"server_url"`
	Username        string        `yaml:"username"`
	LogLevel        string        `yaml:"log_level"`
	LogFile         string        `yaml:"log_file"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	Insecure        bool          `yaml:"insecure"`
	HTTP3           bool          `yaml:"http3"`
	CredentialsPath string        `yaml:"credentials_path"`
	FeedAddr        string        `yaml:"feed_addr"`
	ConfigFile      string        `yaml:"-"`
}

// Defaults returns the configuration used when nothing else is set.
// The server address matches the service's local development port.
func Defaults() ClientConfig {
	return ClientConfig{
		ServerURL:       "http://localhost:8000",
		LogLevel:        "info",
		PollInterval:    time.Second,
		RequestTimeout:  10 * time.Second,
		CredentialsPath: defaultCredentialsPath(),
	}
}

// ParseClientConfig parses configuration for a subcommand from a YAML file,
// environment variables and flags, in increasing order of precedence.
func ParseClientConfig(name string, args []string) (ClientConfig, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return parseClientConfigWithFlagSet(fs, args)
}

// ParseWithFlagSet is ParseClientConfig on a caller-owned flag set, so
// subcommands can register their own flags first. The config file is read
// from files, or from the OS when files is nil.
func ParseWithFlagSet(fs *flag.FlagSet, files afero.Fs, args []string) (ClientConfig, []string, error) {
	if files == nil {
		files = afero.NewOsFs()
	}
	return parseConfig(fs, files, args)
}

// parseClientConfigWithFlagSet is an internal helper for testing with isolated flag sets.
// It returns the remaining positional arguments.
func parseClientConfigWithFlagSet(fs *flag.FlagSet, args []string) (ClientConfig, []string, error) {
	return parseConfig(fs, afero.NewOsFs(), args)
}

func parseConfig(fs *flag.FlagSet, files afero.Fs, args []string) (ClientConfig, []string, error) {
	cfg := Defaults()

	// The config file is located before anything else so env and flags can override it.
	if path := findConfigFlag(args); path != "" {
		cfg.ConfigFile = path
	} else if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		cfg.ConfigFile = path
	}
	if cfg.ConfigFile != "" {
		if err := loadFile(files, cfg.ConfigFile, &cfg); err != nil {
			return ClientConfig{}, nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return ClientConfig{}, nil, err
	}

	// Flags override environment
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file")
	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "service base URL")
	fs.StringVar(&cfg.Username, "user", cfg.Username, "username for login")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file (dashboard logs are discarded when empty)")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "directory and bandwidth poll interval")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout (uploads are not limited)")
	fs.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "skip TLS certificate verification")
	fs.BoolVar(&cfg.HTTP3, "http3", cfg.HTTP3, "talk to the service over HTTP/3")
	fs.StringVar(&cfg.CredentialsPath, "credentials", cfg.CredentialsPath, "file holding the persisted session")
	fs.StringVar(&cfg.FeedAddr, "feed-addr", cfg.FeedAddr, "serve the live view feed on this address (e.g. :8090)")
	if err := fs.Parse(args); err != nil {
		return ClientConfig{}, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, nil, err
	}
	return cfg, fs.Args(), nil
}

// Validate checks values that would make the client misbehave.
func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("server url is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	return nil
}

func applyEnv(cfg *ClientConfig) error {
	if v := os.Getenv(envPrefix + "SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv(envPrefix + "USER"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv(envPrefix + "CREDENTIALS"); v != "" {
		cfg.CredentialsPath = v
	}
	if v := os.Getenv(envPrefix + "FEED_ADDR"); v != "" {
		cfg.FeedAddr = v
	}
	if v := os.Getenv(envPrefix + "POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sPOLL_INTERVAL: %w", envPrefix, err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv(envPrefix + "TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", envPrefix, err)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv(envPrefix + "INSECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sINSECURE: %w", envPrefix, err)
		}
		cfg.Insecure = b
	}
	if v := os.Getenv(envPrefix + "HTTP3"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sHTTP3: %w", envPrefix, err)
		}
		cfg.HTTP3 = b
	}
	return nil
}

// loadFile overlays a YAML file onto cfg. Keys missing from the file keep their current value.
func loadFile(files afero.Fs, path string, cfg *ClientConfig) error {
	b, err := afero.ReadFile(files, path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

// findConfigFlag scans raw args for -config/--config before the flag set is parsed.
func findConfigFlag(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		for _, name := range []string{"-config", "--config"} {
			if arg == name && i+1 < len(args) {
				return args[i+1]
			}
			if strings.HasPrefix(arg, name+"=") {
				return strings.TrimPrefix(arg, name+"=")
			}
		}
	}
	return ""
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".streamctl-session.json"
	}
	return filepath.Join(dir, "streamctl", "session.json")
}

// StringSlice implements flag.Value for repeatable string flags.
type StringSlice []string

func (s *StringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *StringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func (s *StringSlice) Get() interface{} {
	return []string(*s)
}

var _ flag.Value = (*StringSlice)(nil)
var _ flag.Getter = (*StringSlice)(nil)
