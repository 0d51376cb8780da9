// Package poller runs the poll cycle: fetch the latest homework status,
// notify when it changes, and report failures to the operator once per
// distinct error text.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"homework_bot/internal/homework"
)

const (
	DefaultInterval       = 300 * time.Second
	DefaultFromOffset     = 5 * time.Hour
	DefaultErrorCacheSize = 128
)

// Fetcher returns the raw API response for homeworks updated since fromDate.
type Fetcher interface {
	Statuses(ctx context.Context, fromDate int64) (homework.Payload, error)
}

// Notifier delivers a message to the operator. Delivery failures are the
// notifier's concern.
type Notifier interface {
	SendMessage(ctx context.Context, text string)
}

// Snapshot is the externally visible state of the poller.
type Snapshot struct {
	Cycles        uint64    `json:"cycles"`
	LastPoll      time.Time `json:"last_poll"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorKind string    `json:"last_error_kind,omitempty"`
	FromDate      int64     `json:"from_date"`
}

type Poller struct {
	fetcher  Fetcher
	notifier Notifier
	log      zerolog.Logger

	schedule   cron.Schedule
	now        func() time.Time
	fromOffset time.Duration
	cacheSize  int

	// Курсор считается один раз при старте и больше не двигается.
	fromDate    int64
	lastMessage string
	seenErrors  *lru.Cache[string, struct{}]

	mu   sync.RWMutex
	snap Snapshot
}

// Every is a fixed delay between the end of one cycle and the start of the
// next. Unlike cron.Every it keeps sub-second precision.
type Every time.Duration

func (d Every) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

type Option func(*Poller)

// WithSchedule sets when the next cycle starts, relative to the end of the
// previous one.
func WithSchedule(s cron.Schedule) Option {
	return func(p *Poller) { p.schedule = s }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

func WithFromOffset(d time.Duration) Option {
	return func(p *Poller) { p.fromOffset = d }
}

// WithErrorCacheSize bounds how many distinct error texts are remembered.
func WithErrorCacheSize(n int) Option {
	return func(p *Poller) { p.cacheSize = n }
}

func New(fetcher Fetcher, notifier Notifier, log zerolog.Logger, opts ...Option) (*Poller, error) {
	p := &Poller{
		fetcher:    fetcher,
		notifier:   notifier,
		log:        log.With().Str("component", "poller").Logger(),
		schedule:   Every(DefaultInterval),
		now:        time.Now,
		fromOffset: DefaultFromOffset,
		cacheSize:  DefaultErrorCacheSize,
	}
	for _, opt := range opts {
		opt(p)
	}

	seen, err := lru.New[string, struct{}](p.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create error cache: %w", err)
	}
	p.seenErrors = seen
	p.fromDate = p.now().Add(-p.fromOffset).Unix()
	p.snap.FromDate = p.fromDate
	return p, nil
}

// FromDate returns the from_date cursor sent with every request.
func (p *Poller) FromDate() int64 { return p.fromDate }

func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Run polls until ctx is cancelled. Each cycle is followed by a wait until
// the schedule's next activation.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().Int64("from_date", p.fromDate).Msg("Start!")
	for {
		if ctx.Err() != nil {
			return nil
		}
		_ = p.Cycle(ctx)

		timer := time.NewTimer(p.nextWait())
		select {
		case <-ctx.Done():
			timer.Stop()
			p.log.Info().Msg("poller stopped")
			return nil
		case <-timer.C:
		}
	}
}

// nextWait never returns a non-positive delay: a schedule that has no next
// activation would otherwise spin the loop against the API.
func (p *Poller) nextWait() time.Duration {
	now := p.now()
	next := p.schedule.Next(now)
	if next.IsZero() || !next.After(now) {
		p.log.Warn().Dur("fallback", DefaultInterval).Msg("schedule has no next activation")
		return DefaultInterval
	}
	return next.Sub(now)
}

// Cycle runs one poll iteration. The returned error has already been logged
// and, if new, reported to the operator.
func (p *Poller) Cycle(ctx context.Context) error {
	ctx = p.log.WithContext(ctx)

	err := p.poll(ctx)
	p.record(err)
	if err != nil {
		p.handleError(ctx, err)
	}
	return err
}

func (p *Poller) poll(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	payload, err := p.fetcher.Statuses(ctx, p.fromDate)
	if err != nil {
		return err
	}
	hw, err := homework.CheckResponse(ctx, payload)
	if err != nil {
		return err
	}
	if hw == nil {
		return nil
	}

	msg, err := homework.ParseStatus(*hw)
	if err != nil {
		return err
	}
	p.log.Info().Str("homework", hw.Name).Str("status", string(hw.Status)).Msg(msg)

	if msg != p.lastMessage {
		p.lastMessage = msg
		p.notifier.SendMessage(ctx, msg)
	}
	return nil
}

func (p *Poller) handleError(ctx context.Context, err error) {
	// Отмена при остановке процесса не сбой
	if ctx.Err() != nil {
		p.log.Debug().Err(err).Msg("cycle interrupted")
		return
	}

	message := fmt.Sprintf("Сбой в работе программы: %v", err)
	kind := homework.KindOf(err)

	ev := p.log.Error()
	if kind == homework.KindTransport {
		ev = p.log.Warn()
	}
	ev.Str("kind", kind.String()).Msg(message)

	if p.seenErrors.Contains(message) {
		return
	}
	p.seenErrors.Add(message, struct{}{})
	p.notifier.SendMessage(ctx, message)
}

func (p *Poller) record(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snap.Cycles++
	p.snap.LastPoll = p.now()
	p.snap.LastMessage = p.lastMessage
	if err != nil {
		p.snap.LastError = err.Error()
		p.snap.LastErrorKind = homework.KindOf(err).String()
	} else {
		p.snap.LastError = ""
		p.snap.LastErrorKind = ""
	}
}
