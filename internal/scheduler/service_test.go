package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"taskbot/internal/domain"
)

type memStore struct {
	mu    sync.Mutex
	tasks []domain.Task
	// onList runs after the tasks are read, to simulate concurrent edits.
	onList  func()
	listErr error
}

func (m *memStore) ListTasks(ctx context.Context, chatID *int64) ([]domain.Task, error) {
	m.mu.Lock()
	out := append([]domain.Task(nil), m.tasks...)
	m.mu.Unlock()
	if m.onList != nil {
		m.onList()
	}
	return out, m.listErr
}

func (m *memStore) UpdateLastRun(ctx context.Context, t domain.Task, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ChatID == t.ChatID && m.tasks[i].Name == t.Name && m.tasks[i].LastRun.Equal(t.LastRun) {
			m.tasks[i].LastRun = now
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].Name == name {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return
		}
	}
}

func (m *memStore) get(name string) domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.Name == name {
			return t
		}
	}
	return domain.Task{}
}

type fakeAsker struct {
	fail map[string]bool
}

func (f fakeAsker) Ask(ctx context.Context, q string) (string, error) {
	if f.fail[q] {
		return "", domain.ErrServiceUnavailable
	}
	return "answer to " + q, nil
}

type sent struct {
	chatID int64
	text   string
}

type fakeOut struct {
	mu   sync.Mutex
	msgs []sent
	fail bool
}

func (f *fakeOut) Deliver(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return domain.ErrTransport
	}
	f.msgs = append(f.msgs, sent{chatID, text})
	return nil
}

func (f *fakeOut) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestIsDue(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		interval int64
		lastRun  time.Time
		want     bool
	}{
		{"elapsed beyond interval", 1, now.Add(-2 * time.Minute), true},
		{"well inside interval", 60, now.Add(-1 * time.Minute), false},
		{"exact boundary", 5, now.Add(-5 * time.Minute), true},
		{"partial minute truncated", 1, now.Add(-59 * time.Second), false},
		{"clock moved backwards", 1, now.Add(10 * time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := domain.Task{Interval: tt.interval, LastRun: tt.lastRun}
			assert.Equal(t, tt.want, IsDue(task, now))
			// same inputs, same verdict
			assert.Equal(t, IsDue(task, now), IsDue(task, now))
		})
	}
}

func TestRunOnceDeliversDueTasks(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := &memStore{tasks: []domain.Task{
		{ChatID: 1, Name: "due", Question: "price?", Interval: 1, LastRun: now.Add(-2 * time.Minute)},
		{ChatID: 2, Name: "later", Question: "weather?", Interval: 60, LastRun: now.Add(-time.Minute)},
	}}
	out := &fakeOut{}
	svc := NewService(st, fakeAsker{}, out, time.Minute)

	rep := svc.RunOnce(context.Background(), now)
	assert.Equal(t, Report{Checked: 2, Due: 1, Delivered: 1}, rep)

	require.Len(t, out.msgs, 1)
	assert.Equal(t, int64(1), out.msgs[0].chatID)
	assert.Contains(t, out.msgs[0].text, `*Task\:* due`)
	assert.Contains(t, out.msgs[0].text, "answer to price")

	// the watermark moves to the poll time, not to when it became due
	assert.True(t, now.Equal(st.get("due").LastRun))
	assert.True(t, now.Add(-time.Minute).Equal(st.get("later").LastRun))

	// nothing left to do in the same minute
	rep = svc.RunOnce(context.Background(), now.Add(30*time.Second))
	assert.Zero(t, rep.Due)
	assert.Equal(t, int64(1), svc.Stats().Deliveries)
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-time.Hour)
	st := &memStore{tasks: []domain.Task{
		{ChatID: 1, Name: "broken", Question: "fail", Interval: 1, LastRun: old},
		{ChatID: 1, Name: "fine", Question: "ok", Interval: 1, LastRun: old},
	}}
	out := &fakeOut{}
	svc := NewService(st, fakeAsker{fail: map[string]bool{"fail": true}}, out, time.Minute)

	rep := svc.RunOnce(context.Background(), now)
	assert.Equal(t, 2, rep.Due)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Delivered)
	assert.True(t, old.Equal(st.get("broken").LastRun), "failed task keeps its watermark")
	assert.True(t, now.Equal(st.get("fine").LastRun))

	// retried on the very next cycle
	rep = svc.RunOnce(context.Background(), now.Add(30*time.Second))
	assert.Equal(t, 1, rep.Due)
	assert.Equal(t, int64(2), svc.Stats().Failures)
}

func TestRunOnceDeliveryFailureKeepsWatermark(t *testing.T) {
	now := time.Now()
	old := now.Add(-10 * time.Minute)
	st := &memStore{tasks: []domain.Task{{ChatID: 3, Name: "t", Question: "q", Interval: 5, LastRun: old}}}
	svc := NewService(st, fakeAsker{}, &fakeOut{fail: true}, time.Minute)

	rep := svc.RunOnce(context.Background(), now)
	assert.Equal(t, 1, rep.Failed)
	assert.True(t, old.Equal(st.get("t").LastRun))
}

func TestRunOnceTaskDeletedMidCycle(t *testing.T) {
	now := time.Now()
	st := &memStore{tasks: []domain.Task{{ChatID: 3, Name: "ghost", Question: "q", Interval: 1, LastRun: now.Add(-time.Hour)}}}
	st.onList = func() { st.remove("ghost") }
	out := &fakeOut{}
	svc := NewService(st, fakeAsker{}, out, time.Minute)

	rep := svc.RunOnce(context.Background(), now)
	assert.Equal(t, 1, rep.Delivered)
	assert.Equal(t, 1, out.count())
	assert.Equal(t, "", st.get("ghost").Name)
}

func TestRunOnceContinuesWithPartialList(t *testing.T) {
	now := time.Now()
	st := &memStore{
		tasks:   []domain.Task{{ChatID: 1, Name: "ok", Question: "q", Interval: 1, LastRun: now.Add(-time.Hour)}},
		listErr: domain.ErrDateParse,
	}
	out := &fakeOut{}
	rep := NewService(st, fakeAsker{}, out, time.Minute).RunOnce(context.Background(), now)
	assert.Equal(t, 1, rep.Delivered)
}

func TestRunOnceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := &memStore{tasks: []domain.Task{{Name: "x", Interval: 1}}}
	out := &fakeOut{}
	rep := NewService(st, fakeAsker{}, out, time.Minute).RunOnce(ctx, time.Now())
	assert.Zero(t, rep.Checked)
	assert.Zero(t, out.count())
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := &memStore{tasks: []domain.Task{{ChatID: 9, Name: "now", Question: "q", Interval: 1, LastRun: time.Now().Add(-time.Hour)}}}
	out := &fakeOut{}
	svc := NewService(st, fakeAsker{}, out, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return out.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int64(1), svc.Stats().Cycles)
}

// slowStore records when each cycle starts listing and stalls the second
// cycle for stall.
type slowStore struct {
	mu     sync.Mutex
	starts []time.Time
	stall  time.Duration
}

func (s *slowStore) ListTasks(ctx context.Context, chatID *int64) ([]domain.Task, error) {
	s.mu.Lock()
	s.starts = append(s.starts, time.Now())
	n := len(s.starts)
	s.mu.Unlock()
	if n == 2 {
		select {
		case <-ctx.Done():
		case <-time.After(s.stall):
		}
	}
	return nil, nil
}

func (s *slowStore) UpdateLastRun(ctx context.Context, t domain.Task, now time.Time) (bool, error) {
	return true, nil
}

func (s *slowStore) startTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.starts...)
}

func TestStartDropsTicksMissedDuringOverrun(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := &slowStore{stall: 2500 * time.Millisecond}
	svc := NewService(st, fakeAsker{}, &fakeOut{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(st.startTimes()) >= 4 }, 10*time.Second, 20*time.Millisecond)
	cancel()
	<-done

	starts := st.startTimes()
	// starts[1] is the overrunning cycle; ticks missed during it must not
	// run back to back once it returns.
	assert.GreaterOrEqual(t, starts[2].Sub(starts[1]), 2500*time.Millisecond)
	for i := 3; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), 500*time.Millisecond, "cycle %d", i)
	}
}

func TestStopEndsStart(t *testing.T) {
	svc := NewService(&memStore{}, fakeAsker{}, &fakeOut{}, time.Hour)
	done := make(chan struct{})
	go func() {
		svc.Start(context.Background())
		close(done)
	}()
	svc.Stop()
	svc.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestCronLoggerDoesNotPanic(t *testing.T) {
	cronLogger{}.Info("wake", "now", time.Now())
	cronLogger{}.Error(errors.New("x"), "job panicked", "entry", 1)
}
