package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homework_bot/internal/homework"
)

type response struct {
	body string
	err  error
}

// scriptedFetcher replays responses in order, repeating the last one.
type scriptedFetcher struct {
	mu        sync.Mutex
	responses []response
	fromDates []int64
	calls     chan struct{}
}

func (f *scriptedFetcher) Statuses(_ context.Context, fromDate int64) (homework.Payload, error) {
	f.mu.Lock()
	f.fromDates = append(f.fromDates, fromDate)
	i := min(len(f.fromDates), len(f.responses)) - 1
	r := f.responses[i]
	f.mu.Unlock()

	if f.calls != nil {
		select {
		case f.calls <- struct{}{}:
		default:
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	var p homework.Payload
	if err := json.Unmarshal([]byte(r.body), &p); err != nil {
		return nil, err
	}
	return p, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) SendMessage(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type everySchedule time.Duration

func (s everySchedule) Next(t time.Time) time.Time { return t.Add(time.Duration(s)) }

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestPoller(t *testing.T, f Fetcher, n Notifier, opts ...Option) *Poller {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	p, err := New(f, n, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return p
}

const (
	approved    = `{"homeworks":[{"status":"approved","homework_name":"diploma"}]}`
	reviewing   = `{"homeworks":[{"status":"reviewing","homework_name":"diploma"}]}`
	approvedMsg = `Изменился статус проверки работы "diploma". Работа проверена: ревьюеру всё понравилось. Ура!`
)

func TestCycle_DuplicateStatusNotifiesOnce(t *testing.T) {
	f := &scriptedFetcher{responses: []response{{body: approved}, {body: approved}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n)

	require.NoError(t, p.Cycle(context.Background()))
	require.NoError(t, p.Cycle(context.Background()))

	assert.Equal(t, []string{approvedMsg}, n.messages())
}

func TestCycle_StatusChangeNotifiesAgain(t *testing.T) {
	f := &scriptedFetcher{responses: []response{{body: reviewing}, {body: approved}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n)

	require.NoError(t, p.Cycle(context.Background()))
	require.NoError(t, p.Cycle(context.Background()))

	assert.Equal(t, []string{
		`Изменился статус проверки работы "diploma". Работа взята на проверку ревьюером.`,
		approvedMsg,
	}, n.messages())
}

func TestCycle_EmptyListIsQuiet(t *testing.T) {
	f := &scriptedFetcher{responses: []response{{body: `{"homeworks":[],"current_date":1}`}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n)

	require.NoError(t, p.Cycle(context.Background()))
	assert.Empty(t, n.messages())
}

func TestCycle_RepeatedErrorNotifiesOnce(t *testing.T) {
	f := &scriptedFetcher{responses: []response{{body: `{"current_date":1}`}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n)

	err := p.Cycle(context.Background())
	require.ErrorIs(t, err, homework.ErrHomeworksMissing)
	assert.Equal(t, []string{"Сбой в работе программы: Ответ API не соответствует ожидаемому: None"}, n.messages())

	err = p.Cycle(context.Background())
	require.ErrorIs(t, err, homework.ErrHomeworksMissing)
	assert.Len(t, n.messages(), 1)
}

func TestCycle_UnknownStatusRejectedByValidator(t *testing.T) {
	f := &scriptedFetcher{responses: []response{{body: `{"homeworks":[{"status":"lost","homework_name":"diploma"}]}`}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n)

	err := p.Cycle(context.Background())
	require.ErrorIs(t, err, homework.ErrStatusUnknown)
	assert.Equal(t, []string{"Сбой в работе программы: Неожиданный статус домашней работы"}, n.messages())
	assert.Empty(t, p.Snapshot().LastMessage)
}

func TestCycle_TransportErrorThenRecovery(t *testing.T) {
	transport := homework.TransportError("Ошибка при запросе к основному API, status_code: 500", nil)
	f := &scriptedFetcher{responses: []response{{err: transport}, {err: transport}, {body: approved}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n)

	for range 3 {
		_ = p.Cycle(context.Background())
	}

	assert.Equal(t, []string{
		"Сбой в работе программы: Ошибка при запросе к основному API, status_code: 500",
		approvedMsg,
	}, n.messages())

	snap := p.Snapshot()
	assert.Equal(t, uint64(3), snap.Cycles)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, approvedMsg, snap.LastMessage)
}

func TestCycle_ErrorKindInSnapshot(t *testing.T) {
	f := &scriptedFetcher{responses: []response{{err: homework.TransportError("down", nil)}}}
	p := newTestPoller(t, f, &recordingNotifier{})

	_ = p.Cycle(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, "down", snap.LastError)
	assert.Equal(t, "transport", snap.LastErrorKind)
	assert.Equal(t, fixedNow, snap.LastPoll)
}

func TestCycle_CancelledContextIsNotReported(t *testing.T) {
	f := &scriptedFetcher{responses: []response{{err: context.Canceled}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, p.Cycle(ctx))
	assert.Empty(t, n.messages())
}

// Курсор from_date не сдвигается между циклами. Похоже на недосмотр,
// но поведение зафиксировано намеренно.
func TestCycle_FromDateNeverAdvances(t *testing.T) {
	f := &scriptedFetcher{responses: []response{{body: approved}}}
	clock := fixedNow
	p, err := New(f, &recordingNotifier{}, zerolog.Nop(), WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	want := fixedNow.Add(-5 * time.Hour).Unix()
	assert.Equal(t, want, p.FromDate())

	for range 3 {
		clock = clock.Add(DefaultInterval)
		require.NoError(t, p.Cycle(context.Background()))
	}
	assert.Equal(t, []int64{want, want, want}, f.fromDates)
	assert.Equal(t, want, p.Snapshot().FromDate)
}

func TestCycle_ErrorCacheIsBounded(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	errC := errors.New("c")
	f := &scriptedFetcher{responses: []response{{err: errA}, {err: errB}, {err: errC}, {err: errA}}}
	n := &recordingNotifier{}
	p := newTestPoller(t, f, n, WithErrorCacheSize(2))

	for range 4 {
		_ = p.Cycle(context.Background())
	}

	assert.Equal(t, []string{
		"Сбой в работе программы: a",
		"Сбой в работе программы: b",
		"Сбой в работе программы: c",
		"Сбой в работе программы: a",
	}, n.messages())
}

type panickyFetcher struct{}

func (panickyFetcher) Statuses(context.Context, int64) (homework.Payload, error) {
	panic("nil map")
}

func TestCycle_PanicIsReported(t *testing.T) {
	n := &recordingNotifier{}
	p := newTestPoller(t, panickyFetcher{}, n)

	err := p.Cycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"Сбой в работе программы: panic: nil map"}, n.messages())
}

func TestNew_InvalidCacheSize(t *testing.T) {
	_, err := New(&scriptedFetcher{}, &recordingNotifier{}, zerolog.Nop(), WithErrorCacheSize(0))
	require.Error(t, err)
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	f := &scriptedFetcher{
		responses: []response{{body: approved}},
		calls:     make(chan struct{}, 1),
	}
	n := &recordingNotifier{}
	p, err := New(f, n, zerolog.Nop(), WithSchedule(everySchedule(5*time.Millisecond)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for range 3 {
		select {
		case <-f.calls:
		case <-time.After(5 * time.Second):
			t.Fatal("poller did not run")
		}
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, []string{approvedMsg}, n.messages())
	assert.GreaterOrEqual(t, p.Snapshot().Cycles, uint64(3))
}

func TestRun_NeverFiringScheduleDoesNotSpin(t *testing.T) {
	// 30 февраля не наступает никогда: Next возвращает нулевое время
	sched, err := cron.ParseStandard("0 0 30 2 *")
	require.NoError(t, err)

	f := &scriptedFetcher{responses: []response{{body: approved}}}
	p, err := New(f, &recordingNotifier{}, zerolog.Nop(), WithSchedule(sched))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Len(t, f.fromDates, 1)
}

func TestNextWait(t *testing.T) {
	t.Run("FallbackOnZeroNext", func(t *testing.T) {
		sched, err := cron.ParseStandard("0 0 30 2 *")
		require.NoError(t, err)
		p := newTestPoller(t, &scriptedFetcher{}, &recordingNotifier{}, WithSchedule(sched))

		assert.Equal(t, DefaultInterval, p.nextWait())
	})

	t.Run("SubSecondDelayKept", func(t *testing.T) {
		now := fixedNow.Add(700 * time.Millisecond)
		p, err := New(&scriptedFetcher{}, &recordingNotifier{}, zerolog.Nop(),
			WithClock(func() time.Time { return now }),
			WithSchedule(Every(1500*time.Millisecond)))
		require.NoError(t, err)

		assert.Equal(t, 1500*time.Millisecond, p.nextWait())
	})

	t.Run("DefaultIsFullInterval", func(t *testing.T) {
		now := fixedNow.Add(999 * time.Millisecond)
		p, err := New(&scriptedFetcher{}, &recordingNotifier{}, zerolog.Nop(),
			WithClock(func() time.Time { return now }))
		require.NoError(t, err)

		assert.Equal(t, DefaultInterval, p.nextWait())
	})
}
