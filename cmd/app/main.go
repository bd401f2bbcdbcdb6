package main

import (
	"flag"
	"fmt"
	"os"

	"SOCPulse/internal/di"
	svcmetrics "SOCPulse/internal/service/metrics"
	"SOCPulse/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	checkOnly := flag.Bool("check-config", false, "load and validate the config, then exit")
	flag.Parse()

	if err := run(*configPath, *checkOnly); err != nil {
		fmt.Fprintf(os.Stderr, "socpulse: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, checkOnly bool) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if checkOnly {
		fmt.Printf("config ok: env=%s kafka=%t redis=%t queue=%t sampler=%t\n",
			cfg.Environment, cfg.Kafka.Enabled, cfg.Redis.Enabled, cfg.Queue.Enabled, cfg.Sampler.Enabled)
		return nil
	}

	svcmetrics.Register()

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer cleanup()

	// blocks until SIGINT or SIGTERM
	return app.Run()
}
