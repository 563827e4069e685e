package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wheres-my-table/internal/app/availability"
	"wheres-my-table/internal/app/notifysub"
	"wheres-my-table/internal/app/reservation"
	"wheres-my-table/internal/config"
	"wheres-my-table/internal/logger"
)

func main() {
	mode := flag.String("mode", "", "reservation-service | availability-service | notification-subscriber")
	port := flag.Int("port", 0, "http port for services that expose HTTP")
	cfgPath := flag.String("config", "", "path to YAML config (default: conventional locations)")
	flag.Parse()

	lg := logger.New("bootstrap")
	defer lg.Sync()

	path := *cfgPath
	if path == "" {
		var err error
		path, err = config.FindConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, "no config.yaml found; pass --config")
			os.Exit(2)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": path})
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "reservation-service":
		if *port == 0 {
			*port = 3000
		}
		lg.Info("service_starting", map[string]any{"service": "reservation-service", "port": *port})
		if err := reservation.Run(ctx, *port, cfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "availability-service":
		if *port == 0 {
			*port = 3001
		}
		lg.Info("service_starting", map[string]any{"service": "availability-service", "port": *port})
		if err := availability.Run(ctx, *port, cfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "notification-subscriber":
		lg.Info("service_starting", map[string]any{"service": "notification-subscriber"})
		if err := notifysub.Run(ctx, cfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: reservation-service | availability-service | notification-subscriber")
		os.Exit(2)
	}
}
