package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/Telestream/srtStreamer/internal/app"
	"github.com/Telestream/srtStreamer/internal/command"
	"github.com/Telestream/srtStreamer/internal/config"
	"github.com/Telestream/srtStreamer/internal/dashboard"
	"github.com/Telestream/srtStreamer/internal/feed"
	"github.com/Telestream/srtStreamer/internal/logging"
	"github.com/Telestream/srtStreamer/internal/model"
	"github.com/Telestream/srtStreamer/internal/progress"
	"github.com/Telestream/srtStreamer/internal/termio"
	"github.com/Telestream/srtStreamer/internal/view"
	"github.com/Telestream/srtStreamer/pkg/protocol"
)

const clearScreen = "\033[H\033[2J"

func runUI(ctx context.Context, env Env, args []string) error {
	cfg, _, err := parse("ui", args, env, nil)
	if err != nil {
		return err
	}
	// the dashboard owns the terminal, so logs only go to the log file
	f, err := logging.OpenFile(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logger := logging.Discard()
	if f != nil {
		defer f.Close()
		logger = logging.NewWithWriter("streamctl", cfg.LogLevel, f)
	}

	a, err := app.NewWithOptions(cfg, logger, app.Options{Fs: env.Fs, Transport: env.Transport})
	if err != nil {
		return err
	}
	a.Restore()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		err := a.Run(ctx)
		if err != nil {
			cancel()
		}
		runErr <- err
	}()

	header := fmt.Sprintf("streamctl %s  %s", app.Version, cfg.ServerURL)
	if cfg.FeedAddr != "" {
		header += "  feed " + cfg.FeedAddr
	}
	// the dashboard draws straight to the terminal, bypassing the output queue
	out := env.Stdout
	if f := termio.FileOf(out); f != nil {
		out = f
	}
	uiErr := dashboard.Run(ctx, out, a, header, cfg.Username)
	cancel()
	return errors.Join(uiErr, <-runErr)
}

func runLogin(ctx context.Context, env Env, args []string) error {
	cfg, _, err := parse("login", args, env, nil)
	if err != nil {
		return err
	}
	a, closeLog, err := headless(cfg, env)
	if err != nil {
		return err
	}
	defer closeLog()

	in := bufio.NewReader(env.Stdin)
	user := strings.TrimSpace(cfg.Username)
	if user == "" {
		fmt.Fprint(env.Stderr, "Username: ")
		if user, err = readLine(in); err != nil {
			return fmt.Errorf("read username: %w", err)
		}
		user = strings.TrimSpace(user)
	}
	pass, err := readPassword(env, in)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if user == "" || pass == "" {
		return usagef("username and password are required")
	}

	if err := a.Login(ctx, user, pass); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "Logged in as %s, session valid until %s\n", user, a.Session.ExpiresAt().Format(time.RFC1123))
	return nil
}

// readPassword reads without echo from a terminal, otherwise one line of in.
func readPassword(env Env, in *bufio.Reader) (string, error) {
	if f, ok := env.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(env.Stderr, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(env.Stderr)
		return string(b), err
	}
	line, err := readLine(in)
	return strings.TrimRight(line, "\r"), err
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogout(_ context.Context, env Env, args []string) error {
	cfg, _, err := parse("logout", args, env, nil)
	if err != nil {
		return err
	}
	a, closeLog, err := headless(cfg, env)
	if err != nil {
		return err
	}
	defer closeLog()

	a.Restore()
	if err := a.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, "Logged out")
	return nil
}

func runStreams(ctx context.Context, env Env, args []string) error {
	var asJSON bool
	cfg, _, err := parse("streams", args, env, func(fs *flag.FlagSet) {
		fs.BoolVar(&asJSON, "json", false, "print the view as JSON")
	})
	if err != nil {
		return err
	}
	a, closeLog, err := headless(cfg, env)
	if err != nil {
		return err
	}
	defer closeLog()
	if err := requireSession(a); err != nil {
		return err
	}

	if err := a.Directory.Refresh(ctx); err != nil {
		return err
	}
	a.Bandwidth.Poll(ctx)
	return printView(env.Stdout, a.View(), asJSON)
}

func printView(w io.Writer, v view.View, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := io.WriteString(w, view.Text(v))
	return err
}

func runWatch(ctx context.Context, env Env, args []string) error {
	var remote string
	cfg, _, err := parse("watch", args, env, func(fs *flag.FlagSet) {
		fs.StringVar(&remote, "remote", "", "follow another streamctl's feed instead (e.g. ws://host:8090/ws)")
	})
	if err != nil {
		return err
	}
	a, closeLog, err := headless(cfg, env)
	if err != nil {
		return err
	}
	defer closeLog()

	frames := newFramePrinter(env.Stdout)
	if remote != "" {
		return watchRemote(ctx, env, remote, frames)
	}
	if err := requireSession(a); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return <-runErr
		case err := <-runErr:
			return err
		case <-ticker.C:
			if a.CheckExpiry() || !a.LoggedIn() {
				cancel()
				<-runErr
				frames.print(view.View{Empty: true})
				fmt.Fprintln(env.Stdout, "Session expired")
				return nil
			}
			frames.print(a.View())
		}
	}
}

func watchRemote(ctx context.Context, env Env, url string, frames *framePrinter) error {
	conn, err := feed.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer conn.Close()

	err = conn.ReadLoop(ctx, func(envl protocol.Envelope) {
		switch envl.Type {
		case protocol.TypeHello:
			var h protocol.Hello
			if envl.DecodePayload(&h) == nil {
				fmt.Fprintf(env.Stderr, "following streamctl %s on %s\n", h.Version, h.ServerURL)
			}
		case protocol.TypeView:
			var v view.View
			if envl.DecodePayload(&v) == nil {
				frames.print(v)
			}
		case protocol.TypeSession:
			var st protocol.SessionStatus
			if envl.DecodePayload(&st) == nil && !st.LoggedIn {
				fmt.Fprintln(env.Stderr, "remote is logged out")
			}
		case protocol.TypeError:
			var e protocol.Error
			if envl.DecodePayload(&e) == nil {
				fmt.Fprintf(env.Stderr, "remote error %s: %s\n", e.Code, e.Message)
			}
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// framePrinter prints a view only when its text changed.
type framePrinter struct {
	w    io.Writer
	tty  bool
	last string
}

func newFramePrinter(w io.Writer) *framePrinter {
	return &framePrinter{w: w, tty: termio.IsTTY(w)}
}

func (p *framePrinter) print(v view.View) {
	text := view.Text(v)
	if text == p.last {
		return
	}
	p.last = text
	if p.tty {
		fmt.Fprint(p.w, clearScreen)
	} else {
		fmt.Fprintf(p.w, "--- %s\n", time.Now().Format(time.TimeOnly))
	}
	fmt.Fprint(p.w, text)
}

func runStart(ctx context.Context, env Env, args []string) error {
	var (
		file      string
		duration  int
		dests     config.StringSlice
		redundant bool
		offset    int
	)
	cfg, _, err := parse("start", args, env, func(fs *flag.FlagSet) {
		fs.StringVar(&file, "file", "", "catalog file to stream (random when empty)")
		fs.IntVar(&duration, "duration", 0, "stream duration in seconds")
		fs.Var(&dests, "destination", "destination URL; repeat once more for the secondary of a redundant stream")
		fs.BoolVar(&redundant, "redundant", false, "send to a primary and a secondary destination")
		fs.IntVar(&offset, "start-offset", 0, "delay before streaming starts, in seconds")
	})
	if err != nil {
		return err
	}
	if len(dests) > 2 {
		return usagef("at most two destinations, got %d", len(dests))
	}
	in := command.StartInput{
		Source:      command.File(file),
		Duration:    duration,
		Redundant:   redundant,
		StartOffset: offset,
	}
	if len(dests) > 0 {
		in.Primary = dests[0]
	}
	if len(dests) > 1 {
		in.Secondary = dests[1]
	}
	if err := in.Validate(); err != nil {
		return usagef("%v", err)
	}

	a, closeLog, err := headless(cfg, env)
	if err != nil {
		return err
	}
	defer closeLog()
	if err := requireSession(a); err != nil {
		return err
	}

	res, err := a.StartStream(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "Started stream %s: %s -> %s\n", res.StreamID, res.File, strings.Join(res.Destination, ", "))
	if res.ScheduledStartTime != nil && *res.ScheduledStartTime != "" {
		fmt.Fprintf(env.Stdout, "Starting at: %s\n", *res.ScheduledStartTime)
	}
	return nil
}

func runStop(ctx context.Context, env Env, args []string) error {
	cfg, rest, err := parse("stop", args, env, nil)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return usagef("expected exactly one stream id")
	}
	a, closeLog, err := headless(cfg, env)
	if err != nil {
		return err
	}
	defer closeLog()
	if err := requireSession(a); err != nil {
		return err
	}

	if err := a.StopStream(ctx, rest[0]); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "Stopped stream %s\n", rest[0])
	return nil
}

func runStopSource(ctx context.Context, env Env, args []string) error {
	cfg, rest, err := parse("stop-source", args, env, nil)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return usagef("expected exactly one stream id")
	}
	a, closeLog, err := headless(cfg, env)
	if err != nil {
		return err
	}
	defer closeLog()
	if err := requireSession(a); err != nil {
		return err
	}

	// a loaded directory lets non-redundant streams be refused locally
	if err := a.Directory.Refresh(ctx); err != nil {
		return err
	}
	res, err := a.StopRandomSource(ctx, rest[0])
	if err != nil {
		return err
	}
	if len(res.RemainingDestinations) == 0 {
		fmt.Fprintf(env.Stdout, "Stopped stream %s\n", rest[0])
		return nil
	}
	fmt.Fprintf(env.Stdout, "Stopped one source of %s, still sending to %s\n", rest[0], strings.Join(res.RemainingDestinations, ", "))
	return nil
}

func runFiles(ctx context.Context, env Env, args []string) error {
	cfg, _, err := parse("files", args, env, nil)
	if err != nil {
		return err
	}
	a, closeLog, err := headless(cfg, env)
	if err != nil {
		return err
	}
	defer closeLog()
	if err := requireSession(a); err != nil {
		return err
	}

	files, err := a.RefreshFiles(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintln(env.Stdout, f)
	}
	return nil
}

func runUpload(ctx context.Context, env Env, args []string) error {
	var expire int
	cfg, rest, err := parse("upload", args, env, func(fs *flag.FlagSet) {
		fs.IntVar(&expire, "expire", 0, "delete the file from the catalog after this many minutes (0 keeps it)")
	})
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return usagef("expected exactly one file path")
	}
	if expire < 0 {
		return usagef("-expire must not be negative")
	}
	a, closeLog, err := headless(cfg, env)
	if err != nil {
		return err
	}
	defer closeLog()
	if err := requireSession(a); err != nil {
		return err
	}

	if termio.IsTTY(env.Stderr) {
		a.Uploads.OnChange(func() {
			if task, ok := a.Uploads.Snapshot(); ok && task.Outcome == model.UploadPending {
				fmt.Fprintf(env.Stderr, "\r%s %s %s ", task.FileName, progress.Bar(task.Fraction(), 24), progress.FormatRate(task.RateBps))
			}
		})
	}
	if _, err := a.StartUpload(ctx, rest[0], &expire); err != nil {
		return err
	}
	task, err := a.Uploads.Wait(ctx)
	if termio.IsTTY(env.Stderr) {
		fmt.Fprintln(env.Stderr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "Uploaded %s (%s)\n", task.FileName, progress.FormatBytes(task.BytesTotal))
	return nil
}

func runHealth(ctx context.Context, env Env, args []string) error {
	cfg, _, err := parse("health", args, env, nil)
	if err != nil {
		return err
	}
	a, closeLog, err := headless(cfg, env)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := a.Client.Health(ctx); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "%s is healthy\n", cfg.ServerURL)
	return nil
}
