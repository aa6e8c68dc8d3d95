package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CheckinBox/config"
	checkinsapi "github.com/BearBump/CheckinBox/internal/api/checkins_api"
	"github.com/BearBump/CheckinBox/internal/broker/kafka"
	"github.com/BearBump/CheckinBox/internal/cache/rediscache"
	"github.com/BearBump/CheckinBox/internal/integrations/chat/chathttp"
	"github.com/BearBump/CheckinBox/internal/integrations/geocoder"
	geofake "github.com/BearBump/CheckinBox/internal/integrations/geocoder/fake"
	"github.com/BearBump/CheckinBox/internal/integrations/geocoder/goonghttp"
	"github.com/BearBump/CheckinBox/internal/integrations/mediastore"
	mediafake "github.com/BearBump/CheckinBox/internal/integrations/mediastore/fake"
	"github.com/BearBump/CheckinBox/internal/integrations/mediastore/mediahttp"
	"github.com/BearBump/CheckinBox/internal/services/checkins"
	"github.com/BearBump/CheckinBox/internal/storage/pgcheckin"
)

type checkinAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    checkinAPIOpts
	api     *checkinsapi.API
	closeDB func()
}

func mustBootstrapCheckinAPI() *checkinAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse failed: %v", err))
	}

	httpAddr := cfg.Checkin.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.CheckinCreatedTopicName
	if topic == "" {
		topic = "checkin.created"
	}
	cacheTTL := time.Duration(cfg.Checkin.CheckinTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	st := mustOpenPostgresWithRetry(postgresConnString(cfg), 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)

	// External services fall back to local fakes when no base URL is
	// configured, so a bare compose still serves requests.
	var geo geocoder.Resolver
	if cfg.Checkin.GeocoderBaseURL != "" {
		geo = goonghttp.New(cfg.Checkin.GeocoderBaseURL, cfg.Checkin.GeocoderAPIKey, cfg.Checkin.DefaultCountry)
	} else {
		geo = geofake.New(cfg.Checkin.DefaultCountry)
	}
	var media mediastore.Ingestor
	if cfg.Checkin.MediaBaseURL != "" {
		media = mediahttp.New(cfg.Checkin.MediaBaseURL, cfg.Checkin.MediaAPIKey)
	} else {
		media = mediafake.New()
	}

	svc := checkins.New(st, st, st, geo, media).
		WithProducer(producer, topic).
		WithCache(rc, cacheTTL).
		WithDefaultCountry(cfg.Checkin.DefaultCountry)
	if cfg.Checkin.ChatBaseURL != "" {
		svc.WithThreads(chathttp.New(cfg.Checkin.ChatBaseURL))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &checkinAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: checkinAPIOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
		},
		api:     checkinsapi.New(svc, st),
		closeDB: st.Close,
	}
}

func postgresConnString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgcheckin.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgcheckin.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *checkinAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *checkinAPIApp) Run() error {
	return runCheckinAPI(a.ctx, a.opts, a.api)
}
