package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/CheckinBox/config"
	"github.com/BearBump/CheckinBox/internal/metrics"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("config parse failed: %v", err))
	}

	swaggerPath := os.Getenv("swaggerPath")
	httpAddr := cfg.Checkin.WorkerHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}

	metrics.Register()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = RunCheckinWorker(ctx, cfg, defaultWorkerFactories(), workerHTTPOpts{
		httpAddr:    httpAddr,
		swaggerPath: swaggerPath,
	})
	if err != nil && err != context.Canceled {
		panic(err)
	}
}
