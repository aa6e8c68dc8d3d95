package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/CheckinBox/internal/integrations/mailer"
	"github.com/BearBump/CheckinBox/internal/metrics"
	"github.com/BearBump/CheckinBox/internal/models"
)

type Repository interface {
	ClaimUnnotifiedCheckins(ctx context.Context, now time.Time, limit int, lease time.Duration, maxAttempts int) ([]*models.Checkin, error)
	MarkEmailSent(ctx context.Context, id uint64, at time.Time) error
	MarkEmailFailed(ctx context.Context, id uint64, nextAttempt time.Time) error
}

type UserStore interface {
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Backoff holds the stepped retry delays by attempt count.
type Backoff struct {
	Step1 time.Duration
	Step2 time.Duration
	Step3 time.Duration
	Step4 time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{
		Step1: 5 * time.Minute,
		Step2: 15 * time.Minute,
		Step3: 30 * time.Minute,
		Step4: 60 * time.Minute,
	}
}

// Delay returns the wait before the next attempt, given how many attempts
// have already failed (including the one that just failed).
func (b Backoff) Delay(failedAttempts int32) time.Duration {
	switch {
	case failedAttempts <= 1:
		return b.Step1
	case failedAttempts == 2:
		return b.Step2
	case failedAttempts == 3:
		return b.Step3
	default:
		return b.Step4
	}
}

// Notifier claims check-ins whose confirmation email is still pending and
// delivers them through the mail service. Kafka events trigger an immediate
// cycle; the ticker picks up anything the events missed.
type Notifier struct {
	repo   Repository
	users  UserStore
	mailer mailer.Sender
	rl     RateLimiter

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64
	maxAttempts        int
	backoff            Backoff

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalSent           atomic.Int64
	totalSkipped        atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, users UserStore, sender mailer.Sender, rl RateLimiter) *Notifier {
	return &Notifier{
		repo: repo, users: users, mailer: sender, rl: rl,
		pollInterval:       5 * time.Second,
		batchSize:          50,
		concurrency:        5,
		lease:              120 * time.Second,
		rateLimitPerMinute: 60,
		maxAttempts:        5,
		backoff:            DefaultBackoff(),
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (n *Notifier) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64, maxAttempts int) *Notifier {
	if pollInterval > 0 {
		n.pollInterval = pollInterval
	}
	if batchSize > 0 {
		n.batchSize = batchSize
	}
	if concurrency > 0 {
		n.concurrency = concurrency
	}
	if lease > 0 {
		n.lease = lease
	}
	if rlPerMin > 0 {
		n.rateLimitPerMinute = rlPerMin
	}
	if maxAttempts > 0 {
		n.maxAttempts = maxAttempts
	}
	return n
}

func (n *Notifier) WithBackoff(b Backoff) *Notifier {
	def := DefaultBackoff()
	if b.Step1 <= 0 {
		b.Step1 = def.Step1
	}
	if b.Step2 <= 0 {
		b.Step2 = def.Step2
	}
	if b.Step3 <= 0 {
		b.Step3 = def.Step3
	}
	if b.Step4 <= 0 {
		b.Step4 = def.Step4
	}
	n.backoff = b
	return n
}

// Trigger forces an immediate delivery cycle (best-effort, non-blocking).
func (n *Notifier) Trigger() {
	n.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case n.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed  int64      `json:"totalClaimed"`
	TotalSent     int64      `json:"totalSent"`
	TotalSkipped  int64      `json:"totalSkipped"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	LastError     string     `json:"lastError,omitempty"`
}

func (n *Notifier) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, n.startedAtUnixNano).UTC(),
		TotalClaimed: n.totalClaimed.Load(),
		TotalSent:    n.totalSent.Load(),
		TotalSkipped: n.totalSkipped.Load(),
		TotalErrors:  n.totalErrors.Load(),
		InFlight:     n.inFlight.Load(),
	}
	if v := n.lastCycleUnixNano.Load(); v > 0 {
		t := time.Unix(0, v).UTC()
		st.LastCycleAt = &t
	}
	if v := n.lastTriggerUnixNano.Load(); v > 0 {
		t := time.Unix(0, v).UTC()
		st.LastTriggerAt = &t
	}
	n.lastErrorMu.Lock()
	st.LastError = n.lastError
	n.lastErrorMu.Unlock()
	return st
}

func (n *Notifier) Run(ctx context.Context) error {
	t := time.NewTicker(n.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			n.runOnce(ctx)
		case <-n.triggerCh:
			n.runOnce(ctx)
		}
	}
}

func (n *Notifier) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	n.lastCycleUnixNano.Store(now.UnixNano())

	items, err := n.repo.ClaimUnnotifiedCheckins(ctx, now, n.batchSize, n.lease, n.maxAttempts)
	if err != nil {
		slog.Error("claim unnotified checkins", "error", err.Error())
		n.recordError(err)
		return
	}
	n.totalClaimed.Add(int64(len(items)))
	metrics.NotificationsClaimedTotal.Add(float64(len(items)))

	sem := make(chan struct{}, n.concurrency)
	var wg sync.WaitGroup
	for _, c := range items {
		sem <- struct{}{}
		wg.Add(1)
		cCopy := c
		n.inFlight.Add(1)
		go func() {
			defer func() {
				n.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := n.processOne(ctx, cCopy); err != nil {
				n.totalErrors.Add(1)
				n.recordError(err)
				slog.Error("notify checkin", "checkin_id", cCopy.ID, "error", err.Error())
			}
		}()
	}
	wg.Wait()
}

func (n *Notifier) recordError(err error) {
	n.lastErrorMu.Lock()
	n.lastError = err.Error()
	n.lastErrorMu.Unlock()
}

func (n *Notifier) processOne(ctx context.Context, c *models.Checkin) error {
	now := time.Now().UTC()

	// No recipient: mark sent so the row stops coming back.
	if c.CustomerEmail == "" {
		n.totalSkipped.Add(1)
		metrics.NotificationsSkippedTotal.Inc()
		return n.repo.MarkEmailSent(ctx, c.ID, now)
	}

	// Recipient opted out of delivery mail.
	if c.CustomerID != 0 {
		user, err := n.users.GetUserByID(ctx, c.CustomerID)
		if err != nil {
			slog.Warn("load notification recipient", "customer_id", c.CustomerID, "error", err.Error())
		} else if user != nil && user.EmailOptOut {
			n.totalSkipped.Add(1)
			metrics.NotificationsSkippedTotal.Inc()
			return n.repo.MarkEmailSent(ctx, c.ID, now)
		}
	}

	if n.rl != nil && n.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:mail:%s", now.Format("200601021504"))
		allowed, count, err := n.rl.Allow(ctx, minuteKey, n.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			slog.Warn("mail rate limit exceeded", "count", count)
			time.Sleep(500 * time.Millisecond)
		}
	}

	start := time.Now()
	err := n.mailer.SendCheckinNotification(ctx, c)
	metrics.NotificationSendDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.NotificationsFailedTotal.Inc()
		failed := c.EmailAttempts + 1
		next := now.Add(n.backoff.Delay(failed))
		if mErr := n.repo.MarkEmailFailed(ctx, c.ID, next); mErr != nil {
			slog.Error("mark email failed", "checkin_id", c.ID, "error", mErr.Error())
		}
		return err
	}

	n.totalSent.Add(1)
	metrics.NotificationsSentTotal.Inc()
	return n.repo.MarkEmailSent(ctx, c.ID, now)
}
