package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/CheckinBox/config"
	"github.com/BearBump/CheckinBox/internal/broker/kafka"
	"github.com/BearBump/CheckinBox/internal/broker/messages"
	"github.com/BearBump/CheckinBox/internal/cache/rediscache"
	"github.com/BearBump/CheckinBox/internal/integrations/mailer"
	"github.com/BearBump/CheckinBox/internal/integrations/mailer/mailhttp"
	"github.com/BearBump/CheckinBox/internal/services/notifier"
	"github.com/BearBump/CheckinBox/internal/storage/pgcheckin"
)

type workerStores struct {
	repo  notifier.Repository
	users notifier.UserStore
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (stores workerStores, closeFn func(), err error)
	newSender      func(cfg *config.Config) mailer.Sender
	newRateLimiter func(cfg *config.Config) notifier.RateLimiter
	newConsumer    func(cfg *config.Config, topic string) kafkaConsumer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStores, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgcheckin.New(connString)
			if err != nil {
				return workerStores{}, nil, err
			}
			return workerStores{repo: st, users: st}, st.Close, nil
		},
		newSender: func(cfg *config.Config) mailer.Sender {
			return mailhttp.New(cfg.Checkin.MailBaseURL, cfg.Checkin.MailAPIKey, cfg.Checkin.MailFrom)
		},
		newRateLimiter: func(cfg *config.Config) notifier.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newConsumer: func(cfg *config.Config, topic string) kafkaConsumer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			group := cfg.Checkin.KafkaConsumerGroup
			if group == "" {
				group = "checkin-worker"
			}
			return kafka.NewConsumer(brokers, topic, group)
		},
	}
}

func buildNotifier(cfg *config.Config, stores workerStores, sender mailer.Sender, rl notifier.RateLimiter) *notifier.Notifier {
	pollInterval := time.Duration(cfg.Checkin.WorkerPollIntervalSeconds) * time.Second
	lease := time.Duration(cfg.Checkin.WorkerLeaseSeconds) * time.Second

	return notifier.New(stores.repo, stores.users, sender, rl).
		WithSettings(
			pollInterval,
			cfg.Checkin.WorkerBatchSize,
			cfg.Checkin.WorkerConcurrency,
			lease,
			int64(cfg.Checkin.WorkerRateLimitPerMinute),
			cfg.Checkin.WorkerMaxSendAttempts,
		).
		WithBackoff(notifier.Backoff{
			Step1: time.Duration(cfg.Checkin.WorkerBackoff1Seconds) * time.Second,
			Step2: time.Duration(cfg.Checkin.WorkerBackoff2Seconds) * time.Second,
			Step3: time.Duration(cfg.Checkin.WorkerBackoff3Seconds) * time.Second,
			Step4: time.Duration(cfg.Checkin.WorkerBackoff4Seconds) * time.Second,
		})
}

// RunCheckinWorker runs the notification loop, the event consumer, and the
// operational HTTP server until the context ends. Kafka events only nudge
// the loop; the claim query is the source of truth, so missed events are
// picked up on the next tick.
func RunCheckinWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts workerHTTPOpts) error {
	topic := cfg.Kafka.CheckinCreatedTopicName
	if topic == "" {
		topic = "checkin.created"
	}

	stores, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	n := buildNotifier(cfg, stores, f.newSender(cfg), f.newRateLimiter(cfg))

	httpOpts.notifier = n
	httpOpts.cfg = cfg

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)

	go func() { errCh <- n.Run(runCtx) }()

	go func() {
		consumer := f.newConsumer(cfg, topic)
		slog.Info("kafka consumer started", "topic", topic)
		errCh <- consumer.Consume(runCtx, func(_key, value []byte) error {
			var m messages.CheckinCreated
			if err := json.Unmarshal(value, &m); err != nil {
				slog.Warn("malformed checkin event", "error", err.Error())
				return nil
			}
			slog.Info("checkin created event", "checkin_id", m.CheckinID, "order_number", m.OrderNumber)
			n.Trigger()
			return nil
		})
	}()

	go func() { errCh <- runWorkerHTTPServer(runCtx, httpOpts) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
