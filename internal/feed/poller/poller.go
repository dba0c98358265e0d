package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"compliancedash/internal/feed/memorystore"
	"compliancedash/internal/feed/normalize"
	"compliancedash/internal/feed/source"
	"compliancedash/pkg/csvfeed"

	"go.uber.org/zap"
)

var (
	ErrAlreadyStarted = errors.New("poller already started")
	ErrStopped        = errors.New("poller stopped")
)

// State is the lifecycle position of a Poller.
type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Source fetches the parsed feed rows.
type Source interface {
	Fetch(ctx context.Context) ([]csvfeed.Row, error)
}

// Store receives each successfully normalized snapshot.
type Store interface {
	Replace(records []memorystore.TransactionRecord) memorystore.Snapshot
}

// Config holds poller configuration.
type Config struct {
	Interval     time.Duration // Poll interval (default: 5s)
	FetchTimeout time.Duration // Per-fetch timeout (default: 4s)
}

// DefaultConfig returns the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Second,
		FetchTimeout: 4 * time.Second,
	}
}

// Stats are cumulative counters since the poller was created.
type Stats struct {
	State      string `json:"state"`
	Ticks      uint64 `json:"ticks"`
	Skipped    uint64 `json:"skipped"`
	Succeeded  uint64 `json:"succeeded"`
	Failed     uint64 `json:"failed"`
	Empty      uint64 `json:"empty"`
	Discarded  uint64 `json:"discarded"`
	BadNumeric uint64 `json:"bad_numeric"`
}

// Poller periodically refreshes a Store from a Source.
type Poller struct {
	cfg    Config
	source Source
	store  Store
	logger *zap.Logger

	mu     sync.Mutex // guards lifecycle transitions and commits
	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inFlight atomic.Bool

	ticks      atomic.Uint64
	skipped    atomic.Uint64
	succeeded  atomic.Uint64
	failed     atomic.Uint64
	empty      atomic.Uint64
	discarded  atomic.Uint64
	badNumeric atomic.Uint64
}

// New creates a Poller. Zero config values fall back to DefaultConfig.
func New(cfg Config, src Source, store Store, logger *zap.Logger) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		cfg:    cfg,
		source: src,
		store:  store,
		logger: logger,
	}
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Start runs the first cycle immediately and then one per Interval until
// Stop is called or ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case Running:
		return ErrAlreadyStarted
	case Stopped:
		return ErrStopped
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.state.Store(int32(Running))

	p.wg.Add(1)
	go p.run()

	p.logger.Info("feed poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Duration("fetch_timeout", p.cfg.FetchTimeout),
	)
	return nil
}

// Stop cancels the timer and any in-flight fetch, then waits for the
// poller's goroutines to exit or ctx to expire. Once Stop returns no further
// Replace calls are made, even when the wait itself times out.
// A stopped poller cannot be restarted.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	prev := p.State()
	p.state.Store(int32(Stopped))
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if prev == Running {
			p.logger.Info("feed poller stopped")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a point-in-time copy of the counters.
func (p *Poller) Stats() Stats {
	return Stats{
		State:      p.State().String(),
		Ticks:      p.ticks.Load(),
		Skipped:    p.skipped.Load(),
		Succeeded:  p.succeeded.Load(),
		Failed:     p.failed.Load(),
		Empty:      p.empty.Load(),
		Discarded:  p.discarded.Load(),
		BadNumeric: p.badNumeric.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	// Poll immediately on start.
	p.tick()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick launches a cycle unless the previous one is still in flight.
func (p *Poller) tick() {
	p.ticks.Add(1)

	if !p.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.logger.Debug("previous cycle still in flight, skipping tick")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		p.cycle(p.ctx)
	}()
}

// cycle performs one fetch-normalize-replace pass.
func (p *Poller) cycle(ctx context.Context) {
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	rows, err := p.source.Fetch(fetchCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			p.discarded.Add(1)
			p.logger.Debug("fetch aborted by shutdown", zap.Error(err))
			return
		}
		p.failed.Add(1)
		p.logger.Warn("feed fetch failed, keeping last snapshot",
			zap.String("kind", errorKind(err)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	res := normalize.Normalize(rows)

	if n := len(res.BadNumeric); n > 0 {
		p.badNumeric.Add(uint64(n))
		p.logger.Warn("records with non-numeric amount",
			zap.Int("count", n),
			zap.Strings("ids", res.BadNumeric),
		)
	}

	if res.Empty() {
		p.empty.Add(1)
		p.logger.Warn("feed produced no usable records, keeping last snapshot",
			zap.Int("rows", len(rows)),
			zap.Int("dropped", res.Dropped),
		)
		return
	}

	snap, ok := p.commit(ctx, res.Records)
	if !ok {
		p.discarded.Add(1)
		p.logger.Debug("cycle finished after stop, result discarded", zap.Int("records", len(res.Records)))
		return
	}

	p.succeeded.Add(1)
	p.logger.Info("snapshot replaced",
		zap.Uint64("version", snap.Version),
		zap.Int("records", len(snap.Records)),
		zap.Int("dropped", res.Dropped),
		zap.Duration("duration", time.Since(start)),
	)
}

// commit hands records to the store unless the poller has been stopped.
// Holding mu here is what makes Stop a barrier for Replace.
func (p *Poller) commit(ctx context.Context, records []memorystore.TransactionRecord) (memorystore.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != Running || ctx.Err() != nil {
		return memorystore.Snapshot{}, false
	}
	return p.store.Replace(records), true
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, source.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, source.ErrParseFailure):
		return "parse_failure"
	case errors.Is(err, source.ErrEmpty):
		return "empty"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unknown"
	}
}
