package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/Telestream/srtStreamer/internal/app"
	"github.com/Telestream/srtStreamer/internal/cli"
	"github.com/Telestream/srtStreamer/internal/termio"
)

var version = "v0.1.0"

func main() {
	termio.Init()
	app.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], cli.Env{
		Stdin:  os.Stdin,
		Stdout: termio.Stdout(),
		Stderr: termio.Stderr(),
	})
	stop()
	termio.Flush(2 * time.Second)
	os.Exit(code)
}
