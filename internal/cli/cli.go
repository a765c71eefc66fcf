// Package cli implements the streamctl subcommands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/afero"

	"github.com/Telestream/srtStreamer/internal/app"
	"github.com/Telestream/srtStreamer/internal/clienthttp"
	"github.com/Telestream/srtStreamer/internal/config"
	"github.com/Telestream/srtStreamer/internal/logging"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Env is the outside world a command runs against.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Fs        afero.Fs
	Transport http.RoundTripper
}

func (e Env) withDefaults() Env {
	if e.Stdin == nil {
		e.Stdin = os.Stdin
	}
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	return e
}

type subcommand struct {
	name    string
	summary string
	run     func(ctx context.Context, env Env, args []string) error
}

var commands []subcommand

func init() {
	commands = []subcommand{
		{"ui", "interactive dashboard (default)", runUI},
		{"login", "log in and store the session", runLogin},
		{"logout", "destroy the stored session", runLogout},
		{"streams", "print the active streams once", runStreams},
		{"watch", "print the stream view whenever it changes", runWatch},
		{"start", "start a stream", runStart},
		{"stop", "stop a stream: stop <stream-id>", runStop},
		{"stop-source", "stop one source of a redundant stream: stop-source <stream-id>", runStopSource},
		{"files", "list the media catalog", runFiles},
		{"upload", "upload a media file: upload <path>", runUpload},
		{"health", "check that the service answers", runHealth},
	}
}

// Run executes one subcommand and returns the process exit code.
func Run(ctx context.Context, args []string, env Env) int {
	env = env.withDefaults()
	if len(args) == 0 {
		args = []string{"ui"}
	}
	name := args[0]
	switch name {
	case "-h", "--help", "help":
		printUsage(env.Stdout)
		return ExitOK
	case "-v", "--version", "version":
		fmt.Fprintf(env.Stdout, "streamctl %s\n", app.Version)
		return ExitOK
	}
	for _, c := range commands {
		if c.name != name {
			continue
		}
		err := c.run(ctx, env, args[1:])
		switch {
		case err == nil:
			return ExitOK
		case errors.Is(err, flag.ErrHelp):
			return ExitOK
		case isUsage(err):
			fmt.Fprintf(env.Stderr, "streamctl %s: %v\n", name, err)
			return ExitUsage
		default:
			fmt.Fprintf(env.Stderr, "streamctl %s: %s\n", name, describe(err))
			return ExitError
		}
	}
	fmt.Fprintf(env.Stderr, "unknown command: %s\n", name)
	printUsage(env.Stderr)
	return ExitUsage
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: streamctl <command> [flags] [args]")
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "common flags (also STREAMCTL_* environment variables or -config file):")
	fmt.Fprintln(w, "  -server-url, -user, -log-level, -log-file, -poll-interval, -timeout,")
	fmt.Fprintln(w, "  -insecure, -http3, -credentials, -feed-addr")
}

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func isUsage(err error) bool {
	var ue *usageError
	return errors.As(err, &ue)
}

func describe(err error) string {
	if clienthttp.IsAuth(err) {
		return clienthttp.Detail(err) + " (run streamctl login)"
	}
	return clienthttp.Detail(err)
}

// parse reads the shared configuration plus the command's own flags.
func parse(name string, args []string, env Env, register func(fs *flag.FlagSet)) (config.ClientConfig, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	if register != nil {
		register(fs)
	}
	cfg, rest, err := config.ParseWithFlagSet(fs, env.Fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cfg, nil, err
		}
		return cfg, nil, usagef("%v", err)
	}
	return cfg, rest, nil
}

// headless builds an App logging to stderr, or to the log file when set.
func headless(cfg config.ClientConfig, env Env) (*app.App, func(), error) {
	logger, closeLog, err := openLogger(cfg, env.Stderr)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.NewWithOptions(cfg, logger, app.Options{Fs: env.Fs, Transport: env.Transport})
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return a, closeLog, nil
}

func openLogger(cfg config.ClientConfig, fallback io.Writer) (*slog.Logger, func(), error) {
	f, err := logging.OpenFile(cfg.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	if f == nil {
		return logging.NewWithWriter("streamctl", cfg.LogLevel, fallback), func() {}, nil
	}
	return logging.NewWithWriter("streamctl", cfg.LogLevel, f), func() { _ = f.Close() }, nil
}

// requireSession restores the persisted session for one-shot commands.
func requireSession(a *app.App) error {
	if !a.Restore() {
		return clienthttp.ErrNotAuthenticated
	}
	return nil
}
