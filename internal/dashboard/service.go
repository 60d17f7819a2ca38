package dashboard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"fms-backend/internal/availability"
	"fms-backend/internal/model"
	"fms-backend/internal/reactive"
	"fms-backend/internal/store"
)

var (
	ErrWindowNotAllowed = errors.New("window not allowed")
	ErrNotStarted       = errors.New("dashboard not started")
)

// Options configures a Service.
type Options struct {
	AllowedDays []int
	DefaultDays int
	Now         func() time.Time
}

// Service keeps a live snapshot of the store and derives availability
// reports from it.
type Service struct {
	hub  *reactive.Hub
	calc *availability.Calculator
	opts Options
	log  *zap.Logger

	load reactive.Query[availability.Snapshot]

	mu          sync.RWMutex
	snap        availability.Snapshot
	delivered   bool
	started     bool
	watchers    map[uint64]*watcher
	nextID      uint64
	unsubscribe func()
}

type watcher struct {
	days int
	ch   chan availability.Report
}

// New creates a Service. Start must be called before reports are served.
func New(hub *reactive.Hub, calc *availability.Calculator, opts Options, log *zap.Logger) *Service {
	if len(opts.AllowedDays) == 0 {
		opts.AllowedDays = []int{7, 30}
	}
	if opts.DefaultDays <= 0 {
		opts.DefaultDays = 30
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		hub:      hub,
		calc:     calc,
		load:     LoadSnapshot,
		opts:     opts,
		log:      log,
		watchers: make(map[uint64]*watcher),
	}
}

// LoadSnapshot reads every collection the calculator needs.
func LoadSnapshot(ctx context.Context, tx *reactive.Tracker) (availability.Snapshot, error) {
	var (
		snap availability.Snapshot
		err  error
	)
	if snap.Units, err = store.All[model.Unit](ctx, tx); err != nil {
		return snap, err
	}
	if snap.Components, err = store.All[model.Component](ctx, tx); err != nil {
		return snap, err
	}
	if snap.HMLogs, err = store.All[model.HMLog](ctx, tx); err != nil {
		return snap, err
	}
	if snap.BreakdownLogs, err = store.All[model.BreakdownLog](ctx, tx); err != nil {
		return snap, err
	}
	return snap, nil
}

// Start subscribes to the store. Watchers are closed when ctx ends.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.delivered = false
	s.mu.Unlock()

	initial, unsubscribe, err := reactive.Subscribe(ctx, s.hub, s.load, s.onSnapshot)
	if err != nil {
		return fmt.Errorf("dashboard subscribe: %w", err)
	}
	s.applyInitial(initial, unsubscribe)

	s.log.Info("dashboard started",
		zap.Int("units", len(initial.Units)),
		zap.Int("hm_logs", len(initial.HMLogs)),
		zap.Int("breakdown_logs", len(initial.BreakdownLogs)),
	)

	go func() {
		<-ctx.Done()
		s.stop()
	}()
	return nil
}

func (s *Service) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	for id, w := range s.watchers {
		close(w.ch)
		delete(s.watchers, id)
	}
	s.started = false
}

// ResolveDays maps 0 to the default window and rejects windows that are
// not configured.
func (s *Service) ResolveDays(days int) (int, error) {
	if days == 0 {
		return s.opts.DefaultDays, nil
	}
	if !slices.Contains(s.opts.AllowedDays, days) {
		return 0, fmt.Errorf("%w: %d (allowed %v)", ErrWindowNotAllowed, days, s.opts.AllowedDays)
	}
	return days, nil
}

// AllowedDays returns the configured window choices.
func (s *Service) AllowedDays() []int {
	return slices.Clone(s.opts.AllowedDays)
}

// Report derives a report for days from the current snapshot.
func (s *Service) Report(days int) (availability.Report, error) {
	days, err := s.ResolveDays(days)
	if err != nil {
		return availability.Report{}, err
	}

	s.mu.RLock()
	snap, started := s.snap, s.started
	s.mu.RUnlock()
	if !started {
		return availability.Report{}, ErrNotStarted
	}
	return s.calc.Compute(snap, days, s.opts.Now())
}

// Watch returns a channel that receives the current report and then a fresh
// one whenever the store changes or Refresh is called. Only the latest
// report is kept for a slow reader. The returned func stops the watch and
// closes the channel.
func (s *Service) Watch(days int) (<-chan availability.Report, func(), error) {
	days, err := s.ResolveDays(days)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}

	report, err := s.calc.Compute(s.snap, days, s.opts.Now())
	if err != nil {
		return nil, nil, err
	}

	s.nextID++
	id := s.nextID
	w := &watcher{days: days, ch: make(chan availability.Report, 1)}
	w.ch <- report
	s.watchers[id] = w

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(w.ch)
			}
		})
	}
	return w.ch, cancel, nil
}

// Refresh re-derives reports for every watcher without a store change, so
// open breakdowns keep accruing downtime.
func (s *Service) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish()
}

// applyInitial installs the first snapshot unless a re-run already
// delivered a newer one.
func (s *Service) applyInitial(initial availability.Snapshot, unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.delivered {
		s.snap = initial
	}
	s.started = true
	s.unsubscribe = unsubscribe
}

func (s *Service) onSnapshot(snap availability.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.delivered = true
	s.publish()
}

// publish must be called with s.mu held.
func (s *Service) publish() {
	if len(s.watchers) == 0 {
		return
	}

	now := s.opts.Now()
	reports := make(map[int]availability.Report)
	for _, w := range s.watchers {
		r, ok := reports[w.days]
		if !ok {
			var err error
			r, err = s.calc.Compute(s.snap, w.days, now)
			if err != nil {
				s.log.Error("availability derivation failed", zap.Int("days", w.days), zap.Error(err))
				continue
			}
			reports[w.days] = r
		}
		offer(w.ch, r)
	}
}

// offer replaces whatever report is waiting in ch with r.
func offer(ch chan availability.Report, r availability.Report) {
	for {
		select {
		case ch <- r:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
