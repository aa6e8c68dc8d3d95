package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu sync.Mutex

	claims    [][]*models.Checkin
	claimErr  error
	claimCall int

	sent    []uint64
	failed  []uint64
	nextAts []time.Time
}

func (r *fakeRepo) ClaimUnnotifiedCheckins(ctx context.Context, now time.Time, limit int, lease time.Duration, maxAttempts int) ([]*models.Checkin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimCall++
	if r.claimErr != nil {
		return nil, r.claimErr
	}
	if len(r.claims) == 0 {
		return nil, nil
	}
	out := r.claims[0]
	r.claims = r.claims[1:]
	return out, nil
}
func (r *fakeRepo) MarkEmailSent(ctx context.Context, id uint64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, id)
	return nil
}
func (r *fakeRepo) MarkEmailFailed(ctx context.Context, id uint64, nextAttempt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, id)
	r.nextAts = append(r.nextAts, nextAttempt)
	return nil
}

type fakeUsers struct {
	users map[uint64]*models.User
}

func (f *fakeUsers) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	return f.users[id], nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []uint64
	err  error
}

func (s *fakeSender) SendCheckinNotification(ctx context.Context, c *models.Checkin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, c.ID)
	return nil
}

type fakeRL struct {
	allowed bool
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, 1, r.err
}

func TestBackoff_Delay(t *testing.T) {
	b := DefaultBackoff()
	require.Equal(t, 5*time.Minute, b.Delay(1))
	require.Equal(t, 15*time.Minute, b.Delay(2))
	require.Equal(t, 30*time.Minute, b.Delay(3))
	require.Equal(t, 60*time.Minute, b.Delay(4))
	require.Equal(t, 60*time.Minute, b.Delay(9))
}

func TestNotifier_processOne_sendsAndMarks(t *testing.T) {
	repo := &fakeRepo{}
	sender := &fakeSender{}
	n := New(repo, &fakeUsers{users: map[uint64]*models.User{}}, sender, fakeRL{allowed: true})

	c := &models.Checkin{ID: 42, CustomerID: 9, CustomerEmail: "cust@example.com"}
	require.NoError(t, n.processOne(context.Background(), c))
	require.Equal(t, []uint64{42}, sender.sent)
	require.Equal(t, []uint64{42}, repo.sent)
}

func TestNotifier_processOne_noEmailSkips(t *testing.T) {
	repo := &fakeRepo{}
	sender := &fakeSender{}
	n := New(repo, &fakeUsers{users: map[uint64]*models.User{}}, sender, nil)

	c := &models.Checkin{ID: 7}
	require.NoError(t, n.processOne(context.Background(), c))
	require.Empty(t, sender.sent)
	require.Equal(t, []uint64{7}, repo.sent) // marked so it is not re-claimed
}

func TestNotifier_processOne_optOutSkips(t *testing.T) {
	repo := &fakeRepo{}
	sender := &fakeSender{}
	users := &fakeUsers{users: map[uint64]*models.User{
		9: {ID: 9, Email: "cust@example.com", EmailOptOut: true},
	}}
	n := New(repo, users, sender, nil)

	c := &models.Checkin{ID: 8, CustomerID: 9, CustomerEmail: "cust@example.com"}
	require.NoError(t, n.processOne(context.Background(), c))
	require.Empty(t, sender.sent)
	require.Equal(t, []uint64{8}, repo.sent)
}

func TestNotifier_processOne_failureSchedulesRetry(t *testing.T) {
	repo := &fakeRepo{}
	sender := &fakeSender{err: errors.New("smtp down")}
	n := New(repo, &fakeUsers{users: map[uint64]*models.User{}}, sender, nil)

	before := time.Now().UTC()
	c := &models.Checkin{ID: 5, CustomerEmail: "x@y.z", EmailAttempts: 1}
	require.Error(t, n.processOne(context.Background(), c))
	require.Equal(t, []uint64{5}, repo.failed)
	require.Empty(t, repo.sent)

	// second failure lands on the second backoff step
	require.Len(t, repo.nextAts, 1)
	gap := repo.nextAts[0].Sub(before)
	require.GreaterOrEqual(t, gap, 14*time.Minute)
	require.LessOrEqual(t, gap, 16*time.Minute)
}

func TestNotifier_processOne_rateLimiterError(t *testing.T) {
	repo := &fakeRepo{}
	n := New(repo, &fakeUsers{users: map[uint64]*models.User{}}, &fakeSender{}, fakeRL{err: errors.New("redis down")})

	c := &models.Checkin{ID: 1, CustomerEmail: "x@y.z"}
	require.Error(t, n.processOne(context.Background(), c))
	require.Empty(t, repo.sent)
	require.Empty(t, repo.failed)
}

func TestNotifier_runOnce_processesBatch(t *testing.T) {
	repo := &fakeRepo{claims: [][]*models.Checkin{{
		{ID: 1, CustomerEmail: "a@b.c"},
		{ID: 2, CustomerEmail: "d@e.f"},
	}}}
	sender := &fakeSender{}
	n := New(repo, &fakeUsers{users: map[uint64]*models.User{}}, sender, nil)

	n.runOnce(context.Background())
	require.Len(t, sender.sent, 2)
	require.Len(t, repo.sent, 2)

	st := n.Stats()
	require.Equal(t, int64(2), st.TotalClaimed)
	require.Equal(t, int64(2), st.TotalSent)
	require.Zero(t, st.TotalErrors)
}

func TestNotifier_runOnce_claimErrorRecorded(t *testing.T) {
	repo := &fakeRepo{claimErr: errors.New("db down")}
	n := New(repo, &fakeUsers{users: map[uint64]*models.User{}}, &fakeSender{}, nil)

	n.runOnce(context.Background())
	require.Equal(t, "db down", n.Stats().LastError)
}

func TestNotifier_WithSettings(t *testing.T) {
	n := New(&fakeRepo{}, &fakeUsers{}, &fakeSender{}, nil).
		WithSettings(3*time.Second, 7, 9, 11*time.Second, 13, 4)
	require.Equal(t, 3*time.Second, n.pollInterval)
	require.Equal(t, 7, n.batchSize)
	require.Equal(t, 9, n.concurrency)
	require.Equal(t, 11*time.Second, n.lease)
	require.Equal(t, int64(13), n.rateLimitPerMinute)
	require.Equal(t, 4, n.maxAttempts)
}

func TestNotifier_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	n := New(repo, &fakeUsers{users: map[uint64]*models.User{}}, &fakeSender{}, nil).
		WithSettings(5*time.Millisecond, 1, 1, time.Second, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := n.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, repo.claimCall, 1)
}

func TestNotifier_Trigger_ForcesCycle(t *testing.T) {
	repo := &fakeRepo{}
	n := New(repo, &fakeUsers{users: map[uint64]*models.User{}}, &fakeSender{}, nil).
		WithSettings(time.Hour, 1, 1, time.Second, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	n.Trigger()
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.claimCall >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.Error(t, <-done)
	require.NotNil(t, n.Stats().LastTriggerAt)
}
