package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/maillog"
	"github.com/voyagecrm/notify/internal/domain/mailqueue"
	"github.com/voyagecrm/notify/internal/domain/user"
	pgrepo "github.com/voyagecrm/notify/internal/repository/postgres"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fakeQueue keeps entries in memory and mimics the claim transition:
// pending and due rows move to processing with attempts incremented,
// and processing rows stale past the TTL are claimed again.
type fakeQueue struct {
	mu      sync.Mutex
	entries map[int64]*mailqueue.Entry
	now     time.Time
}

func newFakeQueue(now time.Time) *fakeQueue {
	return &fakeQueue{entries: map[int64]*mailqueue.Entry{}, now: now}
}

func (q *fakeQueue) add(e *mailqueue.Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.Status == "" {
		e.Status = mailqueue.StatusPending
	}
	q.entries[e.ID] = e
}

func (q *fakeQueue) get(id int64) mailqueue.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.entries[id]
}

func (q *fakeQueue) Enqueue(context.Context, *mailqueue.Entry) error { return nil }

func (q *fakeQueue) GetByID(_ context.Context, id int64) (*mailqueue.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return nil, pgrepo.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (q *fakeQueue) ClaimBatch(_ context.Context, limit int, ttl time.Duration) ([]*mailqueue.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*mailqueue.Entry
	for _, e := range q.entries {
		if len(out) >= limit {
			break
		}
		switch e.Status {
		case mailqueue.StatusPending:
			if e.NextAttemptAt != nil && e.NextAttemptAt.After(q.now) {
				continue
			}
		case mailqueue.StatusProcessing:
			if e.UpdatedAt.After(q.now.Add(-ttl)) {
				continue
			}
		default:
			continue
		}
		e.Status = mailqueue.StatusProcessing
		e.Attempts++
		e.UpdatedAt = q.now
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (q *fakeQueue) MarkCompleted(_ context.Context, id, logID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.entries[id]
	e.Status = mailqueue.StatusCompleted
	if logID != 0 {
		e.EmailLogID = &logID
	}
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id, logID int64, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.entries[id]
	e.Status = mailqueue.StatusFailed
	e.ErrorMessage = &msg
	if logID != 0 {
		e.EmailLogID = &logID
	}
	return nil
}

func (q *fakeQueue) Reschedule(_ context.Context, id int64, next time.Time, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.entries[id]
	e.Status = mailqueue.StatusPending
	e.NextAttemptAt = &next
	e.ErrorMessage = &msg
	return nil
}

func (q *fakeQueue) Cancel(context.Context, int64) error { return nil }

func (q *fakeQueue) Stats(context.Context) (*mailqueue.Stats, error) { return &mailqueue.Stats{}, nil }

func (q *fakeQueue) DeleteOld(context.Context, int) (int64, error) { return 0, nil }

type fakeLogs struct {
	mu     sync.Mutex
	logs   []*maillog.Log
	nextID int64
	err    error
}

func (l *fakeLogs) Create(_ context.Context, rec *maillog.Log) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.nextID++
	rec.ID = l.nextID
	cp := *rec
	l.logs = append(l.logs, &cp)
	return nil
}

func (l *fakeLogs) ListByUser(context.Context, int64, int) ([]*maillog.Log, error) {
	return nil, nil
}

type fakeUsers struct{ users map[int64]*user.User }

func (u *fakeUsers) GetByID(_ context.Context, id int64) (*user.User, error) {
	if usr, ok := u.users[id]; ok {
		return usr, nil
	}
	return nil, pgrepo.ErrNotFound
}

// scriptedTransport returns the queued results in order, then succeeds.
type fakeTransport struct {
	mu    sync.Mutex
	fails []error
	sent  []string
}

func (t *fakeTransport) Send(_ context.Context, to string, _ mailqueue.RenderedMail) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.fails) > 0 {
		err := t.fails[0]
		t.fails = t.fails[1:]
		if err != nil {
			return "", err
		}
	}
	t.sent = append(t.sent, to)
	return "<msg@test>", nil
}

type staticRenderer struct{ err error }

func (r staticRenderer) Render(string, map[string]any) (mailqueue.RenderedMail, error) {
	if r.err != nil {
		return mailqueue.RenderedMail{}, r.err
	}
	return mailqueue.RenderedMail{Subject: "hi", HTML: "<p>hi</p>", Text: "hi"}, nil
}

func newTestProcessor(q *fakeQueue, logs *fakeLogs, tp *fakeTransport, rend mailqueue.Renderer) *Processor {
	p := NewProcessor(q, logs, &fakeUsers{users: map[int64]*user.User{
		7: {ID: 7, Email: "ivan@example.com"},
	}}, tp, rend, "noreply@voyagecrm.dev", 5*time.Minute, 3, 10*time.Minute, zap.NewNop())
	p.Clock = fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return p
}

func entry(id int64) *mailqueue.Entry {
	return &mailqueue.Entry{
		ID:           id,
		TemplateType: "trip_upcoming",
		To:           "ivan@example.com",
		UserID:       7,
		MaxAttempts:  3,
	}
}

func TestSuccessWritesSentLogAndCompletes(t *testing.T) {
	q := newFakeQueue(time.Now())
	logs := &fakeLogs{}
	tp := &fakeTransport{}
	q.add(entry(1))

	p := newTestProcessor(q, logs, tp, staticRenderer{})
	claimed, sent, retried, failed, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, claimed)
	require.Equal(t, 1, sent)
	require.Zero(t, retried)
	require.Zero(t, failed)

	e := q.get(1)
	require.Equal(t, mailqueue.StatusCompleted, e.Status)
	require.Equal(t, 1, e.Attempts)
	require.NotNil(t, e.EmailLogID)

	require.Len(t, logs.logs, 1)
	rec := logs.logs[0]
	require.Equal(t, maillog.StatusSent, rec.Status)
	require.Equal(t, "ivan@example.com", rec.To)
	require.Equal(t, "noreply@voyagecrm.dev", rec.From)
	require.NotNil(t, rec.ProviderMessageID)
	require.NotNil(t, rec.SentAt)
	require.Nil(t, rec.FailedAt)
}

func TestTransientFailureReschedulesWithBackoff(t *testing.T) {
	q := newFakeQueue(time.Now())
	logs := &fakeLogs{}
	tp := &fakeTransport{fails: []error{mailqueue.Transient("smtp 421: busy")}}
	q.add(entry(1))

	p := newTestProcessor(q, logs, tp, staticRenderer{})
	_, sent, retried, failed, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, sent)
	require.Equal(t, 1, retried)
	require.Zero(t, failed)

	e := q.get(1)
	require.Equal(t, mailqueue.StatusPending, e.Status)
	require.Equal(t, 1, e.Attempts)
	require.NotNil(t, e.NextAttemptAt)
	require.Equal(t, p.Clock.Now().Add(5*time.Minute), *e.NextAttemptAt)
	require.Contains(t, *e.ErrorMessage, "smtp 421")
	require.Empty(t, logs.logs, "no log row until a terminal outcome")
}

func TestBackoffDoublesPerAttempt(t *testing.T) {
	base := 5 * time.Minute
	require.Equal(t, 5*time.Minute, mailqueue.Backoff(base, 1))
	require.Equal(t, 10*time.Minute, mailqueue.Backoff(base, 2))
	require.Equal(t, 20*time.Minute, mailqueue.Backoff(base, 3))
}

func TestExhaustedAttemptsFailTerminally(t *testing.T) {
	now := time.Now()
	q := newFakeQueue(now)
	logs := &fakeLogs{}
	tp := &fakeTransport{fails: []error{
		mailqueue.Transient("smtp 421: busy"),
		mailqueue.Transient("smtp 421: busy"),
		mailqueue.Transient("smtp 421: busy"),
	}}
	q.add(entry(1))
	p := newTestProcessor(q, logs, tp, staticRenderer{})

	for i := 0; i < 3; i++ {
		// make rescheduled entries due again
		q.mu.Lock()
		if e, ok := q.entries[1]; ok {
			e.NextAttemptAt = nil
		}
		q.mu.Unlock()
		_, _, _, _, err := p.Tick(context.Background(), 10)
		require.NoError(t, err)
	}

	e := q.get(1)
	require.Equal(t, mailqueue.StatusFailed, e.Status)
	require.Equal(t, 3, e.Attempts)
	require.NotNil(t, e.EmailLogID)

	require.Len(t, logs.logs, 1, "only the terminal attempt writes a log")
	require.Equal(t, maillog.StatusFailed, logs.logs[0].Status)
	require.NotNil(t, logs.logs[0].FailedAt)
	require.Nil(t, logs.logs[0].SentAt)
}

func TestFailThenSucceedCompletesOnSecondAttempt(t *testing.T) {
	q := newFakeQueue(time.Now())
	logs := &fakeLogs{}
	tp := &fakeTransport{fails: []error{mailqueue.Transient("smtp 451: try later"), nil}}
	q.add(entry(1))
	p := newTestProcessor(q, logs, tp, staticRenderer{})

	_, _, retried, _, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, retried)

	q.mu.Lock()
	q.entries[1].NextAttemptAt = nil
	q.mu.Unlock()

	_, sent, _, failed, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Zero(t, failed)

	e := q.get(1)
	require.Equal(t, mailqueue.StatusCompleted, e.Status)
	require.Equal(t, 2, e.Attempts)
	require.Len(t, logs.logs, 1)
	require.Equal(t, maillog.StatusSent, logs.logs[0].Status)
}

func TestPermanentErrorSkipsRemainingRetries(t *testing.T) {
	q := newFakeQueue(time.Now())
	logs := &fakeLogs{}
	tp := &fakeTransport{fails: []error{mailqueue.Permanent("smtp 550: no such user")}}
	q.add(entry(1))
	p := newTestProcessor(q, logs, tp, staticRenderer{})

	_, _, retried, failed, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, retried)
	require.Equal(t, 1, failed)

	e := q.get(1)
	require.Equal(t, mailqueue.StatusFailed, e.Status)
	require.Equal(t, 1, e.Attempts)
	require.Contains(t, *e.ErrorMessage, "550")
}

func TestUnclassifiedErrorTreatedAsTransient(t *testing.T) {
	q := newFakeQueue(time.Now())
	tp := &fakeTransport{fails: []error{errors.New("connection reset")}}
	q.add(entry(1))
	p := newTestProcessor(q, &fakeLogs{}, tp, staticRenderer{})

	_, _, retried, failed, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, retried)
	require.Zero(t, failed)
}

func TestRenderFailureIsTerminal(t *testing.T) {
	q := newFakeQueue(time.Now())
	logs := &fakeLogs{}
	tp := &fakeTransport{}
	q.add(entry(1))
	p := newTestProcessor(q, logs, tp, staticRenderer{err: errors.New("missing template")})

	_, _, retried, failed, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, retried)
	require.Equal(t, 1, failed)
	require.Empty(t, tp.sent)

	e := q.get(1)
	require.Equal(t, mailqueue.StatusFailed, e.Status)
	require.Len(t, logs.logs, 1)
	require.Equal(t, maillog.StatusFailed, logs.logs[0].Status)
}

func TestMissingRecipientResolvedFromUser(t *testing.T) {
	q := newFakeQueue(time.Now())
	logs := &fakeLogs{}
	tp := &fakeTransport{}
	e := entry(1)
	e.To = ""
	q.add(e)
	p := newTestProcessor(q, logs, tp, staticRenderer{})

	_, sent, _, _, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, []string{"ivan@example.com"}, tp.sent)
}

func TestUnknownRecipientFailsTerminally(t *testing.T) {
	q := newFakeQueue(time.Now())
	logs := &fakeLogs{}
	tp := &fakeTransport{}
	e := entry(1)
	e.To = ""
	e.UserID = 999
	q.add(e)
	p := newTestProcessor(q, logs, tp, staticRenderer{})

	_, _, retried, failed, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, retried)
	require.Equal(t, 1, failed)
	require.Empty(t, tp.sent)
}

func TestBadEntryDoesNotBlockBatch(t *testing.T) {
	q := newFakeQueue(time.Now())
	logs := &fakeLogs{}
	tp := &fakeTransport{fails: []error{mailqueue.Permanent("smtp 550: rejected"), nil}}
	q.add(entry(1))
	q.add(entry(2))
	p := newTestProcessor(q, logs, tp, staticRenderer{})

	claimed, sent, _, failed, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 2, claimed)
	require.Equal(t, 1, sent)
	require.Equal(t, 1, failed)
}

func TestLogWriteFailureStillSettlesEntry(t *testing.T) {
	q := newFakeQueue(time.Now())
	logs := &fakeLogs{err: errors.New("db down")}
	tp := &fakeTransport{}
	q.add(entry(1))
	p := newTestProcessor(q, logs, tp, staticRenderer{})

	_, sent, _, _, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	e := q.get(1)
	require.Equal(t, mailqueue.StatusCompleted, e.Status)
	require.Nil(t, e.EmailLogID)
}

func TestClaimHonorsNextAttemptAt(t *testing.T) {
	now := time.Now()
	q := newFakeQueue(now)
	later := now.Add(time.Hour)
	e := entry(1)
	e.NextAttemptAt = &later
	q.add(e)
	p := newTestProcessor(q, &fakeLogs{}, &fakeTransport{}, staticRenderer{})

	claimed, _, _, _, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, claimed)
	require.Equal(t, mailqueue.StatusPending, q.get(1).Status)
}

func TestAbandonedProcessingEntryReclaimed(t *testing.T) {
	now := time.Now()
	q := newFakeQueue(now)
	logs := &fakeLogs{}
	tp := &fakeTransport{}
	e := entry(1)
	e.Status = mailqueue.StatusProcessing
	e.Attempts = 1
	e.UpdatedAt = now.Add(-30 * time.Minute)
	q.add(e)

	p := newTestProcessor(q, logs, tp, staticRenderer{})
	claimed, sent, _, _, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, claimed)
	require.Equal(t, 1, sent)

	got := q.get(1)
	require.Equal(t, mailqueue.StatusCompleted, got.Status)
	// the attempt lost to the dead worker stays consumed
	require.Equal(t, 2, got.Attempts)
	require.Len(t, logs.logs, 1)
}

func TestFreshProcessingEntryNotReclaimed(t *testing.T) {
	now := time.Now()
	q := newFakeQueue(now)
	e := entry(1)
	e.Status = mailqueue.StatusProcessing
	e.Attempts = 1
	e.UpdatedAt = now.Add(-time.Minute)
	q.add(e)

	p := newTestProcessor(q, &fakeLogs{}, &fakeTransport{}, staticRenderer{})
	claimed, _, _, _, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, claimed)
	require.Equal(t, mailqueue.StatusProcessing, q.get(1).Status)
	require.Equal(t, 1, q.get(1).Attempts)
}

func TestReclaimedEntryPastMaxAttemptsFailsTerminally(t *testing.T) {
	now := time.Now()
	q := newFakeQueue(now)
	logs := &fakeLogs{}
	tp := &fakeTransport{fails: []error{mailqueue.Transient("smtp 421")}}
	e := entry(1)
	e.Status = mailqueue.StatusProcessing
	e.Attempts = 2
	e.UpdatedAt = now.Add(-30 * time.Minute)
	q.add(e)

	p := newTestProcessor(q, logs, tp, staticRenderer{})
	claimed, _, _, failed, err := p.Tick(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, claimed)
	require.Equal(t, 1, failed)
	require.Equal(t, mailqueue.StatusFailed, q.get(1).Status)
	require.Equal(t, 3, q.get(1).Attempts)
}
