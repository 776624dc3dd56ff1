// Command eventa-server serves the chat bundles over websocket, optionally
// relaying every event through NATS to other server instances.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxorio/eventa/pkg/config"
	eventalog "github.com/fluxorio/eventa/pkg/log"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML or JSON)")
	writeConfig := flag.String("write-config", "", "write the default configuration to this path and exit")
	printEnv := flag.Bool("print-env", false, "list the environment variables that override the configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if *printEnv {
		keys, err := config.EnvKeys(config.EnvPrefix, &config.Config{})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return
	}
	if *writeConfig != "" {
		if err := config.SaveYAML(*writeConfig, config.Default()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	eventalog.Configure(eventalog.Config{Service: "eventa-server"})
	logger := eventalog.WithComponent("main")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("config_path", *configPath).Msg("failed to load configuration")
	}
	eventalog.Configure(eventalog.Config{
		Level:   cfg.Log.Level,
		Service: "eventa-server",
		Pretty:  cfg.Log.Pretty,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		mainLogger := eventalog.WithComponent("main")
		mainLogger.Fatal().Err(err).Msg("server stopped")
	}
}
