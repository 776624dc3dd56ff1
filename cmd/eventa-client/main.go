// Command eventa-client calls the chat bundles of an eventa server over
// websocket and prints the results as JSON lines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxorio/eventa/pkg/adapters/ws"
	"github.com/fluxorio/eventa/pkg/config"
	"github.com/fluxorio/eventa/pkg/core"
	eventalog "github.com/fluxorio/eventa/pkg/log"
)

const usage = `usage: eventa-client [flags] <command> [args]

commands:
  record -id ID [-name NAME] [-type user|channel|group] [-platform P]
  get ID
  list [-platform P] [-limit N]
  watch            print core:progress and core:error until interrupted

flags:
`

func main() {
	flags := flag.NewFlagSet("eventa-client", flag.ExitOnError)
	configPath := flags.String("config", "", "path to config file (YAML or JSON)")
	url := flags.String("url", "", "server websocket URL (overrides config)")
	connectTimeout := flags.Duration("connect-timeout", 5*time.Second, "how long to wait for the connection")
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])
	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	eventalog.Configure(eventalog.Config{Service: "eventa-client", Level: "warn"})
	logger := eventalog.WithComponent("client")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *url != "" {
		cfg.Client.URL = *url
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := ws.NewClient(cfg.Client.URL, ws.ClientOptions{Logger: core.NewLogger(logger)})
	bus, err := core.NewEventContextWithOptions(ctx, core.EventContextOptions{
		Adapter: client,
		Logger:  core.NewLogger(logger),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create event context")
	}

	err = waitConnected(ctx, client, *connectTimeout)
	if err == nil {
		err = runCommand(ctx, bus, cfg.Invoke.Timeout, flags.Arg(0), flags.Args()[1:], os.Stdout)
	}
	bus.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "eventa-client:", err)
		os.Exit(1)
	}
}

func waitConnected(ctx context.Context, client *ws.Client, timeout time.Duration) error {
	select {
	case <-client.Connected():
		return nil
	case <-client.Done():
		return fmt.Errorf("cannot connect to %s", client.URL())
	case <-time.After(timeout):
		return fmt.Errorf("timed out connecting to %s", client.URL())
	case <-ctx.Done():
		return ctx.Err()
	}
}
