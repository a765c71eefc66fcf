package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestParseClientConfig_Defaults(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, rest, err := parseClientConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	if cfg.ServerURL != "http://localhost:8000" {
		t.Errorf("expected ServerURL to be http://localhost:8000, got %s", cfg.ServerURL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel to be info, got %s", cfg.LogLevel)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("expected PollInterval to be 1s, got %s", cfg.PollInterval)
	}
	if cfg.CredentialsPath == "" {
		t.Errorf("expected a default credentials path")
	}
	if len(rest) != 0 {
		t.Errorf("expected no positional args, got %v", rest)
	}
}

func TestParseClientConfig_Flags(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, rest, err := parseClientConfigWithFlagSet(fs, []string{
		"-server-url", "https://streams.example.com",
		"-log-level", "debug",
		"-poll-interval", "2s",
		"-http3",
		"abc-123",
	})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	if cfg.ServerURL != "https://streams.example.com" {
		t.Errorf("expected ServerURL from flag, got %s", cfg.ServerURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel to be debug, got %s", cfg.LogLevel)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("expected PollInterval to be 2s, got %s", cfg.PollInterval)
	}
	if !cfg.HTTP3 {
		t.Errorf("expected HTTP3 to be enabled")
	}
	if len(rest) != 1 || rest[0] != "abc-123" {
		t.Errorf("expected positional [abc-123], got %v", rest)
	}
}

func TestParseClientConfig_EnvFallback(t *testing.T) {
	os.Clearenv()

	os.Setenv("STREAMCTL_SERVER_URL", "http://env.example.com:7070")
	os.Setenv("STREAMCTL_LOG_LEVEL", "warn")
	os.Setenv("STREAMCTL_POLL_INTERVAL", "500ms")
	defer os.Unsetenv("STREAMCTL_SERVER_URL")
	defer os.Unsetenv("STREAMCTL_LOG_LEVEL")
	defer os.Unsetenv("STREAMCTL_POLL_INTERVAL")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, _, err := parseClientConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	if cfg.ServerURL != "http://env.example.com:7070" {
		t.Errorf("expected ServerURL from env, got %s", cfg.ServerURL)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected LogLevel to be warn, got %s", cfg.LogLevel)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("expected PollInterval to be 500ms, got %s", cfg.PollInterval)
	}
}

func TestParseClientConfig_FlagsOverrideEnv(t *testing.T) {
	os.Clearenv()

	os.Setenv("STREAMCTL_SERVER_URL", "http://env.example.com:7070")
	os.Setenv("STREAMCTL_USER", "envuser")
	defer os.Unsetenv("STREAMCTL_SERVER_URL")
	defer os.Unsetenv("STREAMCTL_USER")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, _, err := parseClientConfigWithFlagSet(fs, []string{"-server-url", "http://flag.example.com:9090", "-user", "flaguser"})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	if cfg.ServerURL != "http://flag.example.com:9090" {
		t.Errorf("expected ServerURL from flag, got %s", cfg.ServerURL)
	}
	if cfg.Username != "flaguser" {
		t.Errorf("expected Username from flag, got %s", cfg.Username)
	}
}

func TestParseClientConfig_InvalidEnvDuration(t *testing.T) {
	os.Clearenv()

	os.Setenv("STREAMCTL_POLL_INTERVAL", "soon")
	defer os.Unsetenv("STREAMCTL_POLL_INTERVAL")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if _, _, err := parseClientConfigWithFlagSet(fs, []string{}); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestParseClientConfig_ZeroIntervalRejected(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if _, _, err := parseClientConfigWithFlagSet(fs, []string{"-poll-interval", "0s"}); err == nil {
		t.Fatal("expected error for zero poll interval")
	}
}

func TestParseClientConfig_YAMLFile(t *testing.T) {
	os.Clearenv()

	dir := t.TempDir()
	path := filepath.Join(dir, "streamctl.yaml")
	content := "server_url: https://file.example.com\npoll_interval: 3s\nfeed_addr: \":8090\"\nusername: Admin\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	os.Setenv("STREAMCTL_SERVER_URL", "https://env.example.com")
	defer os.Unsetenv("STREAMCTL_SERVER_URL")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, _, err := parseClientConfigWithFlagSet(fs, []string{"-config", path})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}

	// env beats file
	if cfg.ServerURL != "https://env.example.com" {
		t.Errorf("expected ServerURL from env, got %s", cfg.ServerURL)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("expected PollInterval from file, got %s", cfg.PollInterval)
	}
	if cfg.FeedAddr != ":8090" {
		t.Errorf("expected FeedAddr from file, got %s", cfg.FeedAddr)
	}
	if cfg.Username != "Admin" {
		t.Errorf("expected Username from file, got %s", cfg.Username)
	}
	if cfg.ConfigFile != path {
		t.Errorf("expected ConfigFile %s, got %s", path, cfg.ConfigFile)
	}
}

func TestParseClientConfig_MissingFile(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if _, _, err := parseClientConfigWithFlagSet(fs, []string{"--config=/nonexistent/streamctl.yaml"}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestParseWithFlagSet_ReadsConfigFromFs(t *testing.T) {
	os.Clearenv()

	files := afero.NewMemMapFs()
	if err := afero.WriteFile(files, "/etc/streamctl.yaml", []byte("server_url: https://mem.example.com\nlog_level: debug\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, _, err := ParseWithFlagSet(fs, files, []string{"-config", "/etc/streamctl.yaml"})
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}
	if cfg.ServerURL != "https://mem.example.com" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	if _, _, err := ParseWithFlagSet(fs, afero.NewMemMapFs(), []string{"-config", "/etc/streamctl.yaml"}); err == nil {
		t.Fatal("expected error for a file missing from the given fs")
	}
}

func TestStringSlice(t *testing.T) {
	var s StringSlice
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&s, "destination", "")
	if err := fs.Parse([]string{"-destination", "rtmp://a", "-destination", "rtmp://b"}); err != nil {
		t.Fatalf("parse error = %v", err)
	}
	if len(s) != 2 || s[0] != "rtmp://a" || s[1] != "rtmp://b" {
		t.Fatalf("unexpected values %v", s)
	}
	if s.String() != "rtmp://a,rtmp://b" {
		t.Fatalf("unexpected String() %q", s.String())
	}
}
