package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"compliancedash/internal/feed/memorystore"
	"compliancedash/internal/feed/source"
	"compliancedash/pkg/csvfeed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type fetchResult struct {
	rows []csvfeed.Row
	err  error
}

// scriptedSource replays results in order and repeats the last one.
// When gate is set every Fetch waits on it, ignoring ctx, to model a
// response that arrives late.
type scriptedSource struct {
	mu      sync.Mutex
	script  []fetchResult
	calls   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
}

func (s *scriptedSource) Fetch(ctx context.Context) ([]csvfeed.Row, error) {
	n := int(s.calls.Add(1))
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.gate != nil {
		<-s.gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return nil, fmt.Errorf("%w: nothing scripted", source.ErrUnreachable)
	}
	idx := n - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	return s.script[idx].rows, s.script[idx].err
}

func goodRows(ids ...string) []csvfeed.Row {
	rows := make([]csvfeed.Row, 0, len(ids))
	for i, id := range ids {
		rows = append(rows, csvfeed.Row{"transaction_id": id, "type": "PAYMENT", "amount": fmt.Sprintf("%d.25", i+1), "step": "1"})
	}
	return rows
}

func stop(t *testing.T, p *Poller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
}

// go test -v --run TestPoller_ImmediateFirstCycle
func TestPoller_ImmediateFirstCycle(t *testing.T) {
	src := &scriptedSource{script: []fetchResult{{rows: goodRows("T1", "T2")}}}
	store := memorystore.NewSnapshotStore()

	p := New(Config{Interval: time.Hour, FetchTimeout: time.Second}, src, store, zaptest.NewLogger(t))
	require.NoError(t, p.Start(context.Background()))
	defer stop(t, p)

	require.Eventually(t, func() bool { return store.Current().Version == 1 }, time.Second, 5*time.Millisecond)
	snap := store.Current()
	require.Len(t, snap.Records, 2)
	assert.Equal(t, "T1", snap.Records[0].ID)
	assert.Equal(t, 1.25, snap.Records[0].Amount)
	assert.Equal(t, Running, p.State())
}

// go test -v --run TestPoller_RepeatsOnInterval
func TestPoller_RepeatsOnInterval(t *testing.T) {
	src := &scriptedSource{script: []fetchResult{{rows: goodRows("T1")}}}
	store := memorystore.NewSnapshotStore()

	p := New(Config{Interval: 10 * time.Millisecond, FetchTimeout: time.Second}, src, store, zaptest.NewLogger(t))
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return store.Current().Version >= 3 }, 2*time.Second, 5*time.Millisecond)
	stop(t, p)

	assert.Equal(t, Stopped, p.State())
	assert.GreaterOrEqual(t, p.Stats().Succeeded, uint64(3))
}

// go test -v --run TestPoller_StaleButAvailable
func TestPoller_StaleButAvailable(t *testing.T) {
	src := &scriptedSource{script: []fetchResult{
		{rows: goodRows("T1", "T2")},
		{err: fmt.Errorf("%w: connection refused", source.ErrUnreachable)},
		{err: fmt.Errorf("%w: bad quote", source.ErrParseFailure)},
	}}
	store := memorystore.NewSnapshotStore()

	p := New(Config{Interval: time.Hour, FetchTimeout: time.Second}, src, store, zaptest.NewLogger(t))
	require.NoError(t, p.Start(context.Background()))
	defer stop(t, p)

	require.Eventually(t, func() bool { return p.Stats().Succeeded == 1 }, time.Second, 5*time.Millisecond)
	before := store.Current()

	p.cycle(p.ctx)
	p.cycle(p.ctx)

	after := store.Current()
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(2), p.Stats().Failed)
	assert.Equal(t, Running, p.State())
}

// go test -v --run TestPoller_NoReplaceAfterStop
func TestPoller_NoReplaceAfterStop(t *testing.T) {
	src := &scriptedSource{
		script:  []fetchResult{{rows: goodRows("LATE")}},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	store := memorystore.NewSnapshotStore()
	var replaced atomic.Int32
	store.Subscribe(func(memorystore.Snapshot) { replaced.Add(1) })

	p := New(Config{Interval: time.Hour, FetchTimeout: time.Second}, src, store, zaptest.NewLogger(t))
	require.NoError(t, p.Start(context.Background()))

	select {
	case <-src.entered:
	case <-time.After(time.Second):
		t.Fatal("fetch never started")
	}

	// The fetch ignores cancellation, so Stop times out waiting for it.
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	err := p.Stop(stopCtx)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(src.gate)

	require.Eventually(t, func() bool { return p.Stats().Discarded == 1 }, time.Second, 5*time.Millisecond)
	stop(t, p)

	assert.Equal(t, int32(0), replaced.Load())
	assert.Equal(t, uint64(0), store.Current().Version)
	assert.Equal(t, int32(1), src.calls.Load())
}

// go test -v --run TestPoller_SkipsOverlappingTicks
func TestPoller_SkipsOverlappingTicks(t *testing.T) {
	src := &scriptedSource{
		script:  []fetchResult{{rows: goodRows("T1")}},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	store := memorystore.NewSnapshotStore()

	p := New(Config{Interval: 5 * time.Millisecond, FetchTimeout: time.Second}, src, store, zaptest.NewLogger(t))
	require.NoError(t, p.Start(context.Background()))

	<-src.entered
	require.Eventually(t, func() bool { return p.Stats().Skipped >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), src.calls.Load())

	close(src.gate)
	require.Eventually(t, func() bool { return store.Current().Version >= 1 }, time.Second, 5*time.Millisecond)
	stop(t, p)
}

func TestPoller_EmptyResultKeepsSnapshot(t *testing.T) {
	src := &scriptedSource{script: []fetchResult{
		{rows: goodRows("T1")},
		{rows: []csvfeed.Row{{"transaction_id": ""}, {"type": "PAYMENT"}}},
	}}
	store := memorystore.NewSnapshotStore()

	p := New(Config{Interval: time.Hour, FetchTimeout: time.Second}, src, store, zaptest.NewLogger(t))
	require.NoError(t, p.Start(context.Background()))
	defer stop(t, p)

	require.Eventually(t, func() bool { return p.Stats().Succeeded == 1 }, time.Second, 5*time.Millisecond)
	p.cycle(p.ctx)

	assert.Equal(t, uint64(1), p.Stats().Empty)
	assert.Equal(t, uint64(1), store.Current().Version)
	assert.Equal(t, "T1", store.Current().Records[0].ID)
}

// go test -v --run TestPoller_ReportsBadNumeric
func TestPoller_ReportsBadNumeric(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	src := &scriptedSource{script: []fetchResult{{rows: []csvfeed.Row{
		{"transaction_id": "T1", "type": "PAYMENT", "amount": "100.50", "step": "1"},
		{"transaction_id": "T2", "type": "CASH_OUT", "amount": "abc", "step": "3"},
	}}}}
	store := memorystore.NewSnapshotStore()

	p := New(Config{Interval: time.Hour, FetchTimeout: time.Second}, src, store, zap.New(core))
	require.NoError(t, p.Start(context.Background()))
	defer stop(t, p)

	require.Eventually(t, func() bool { return p.Stats().Succeeded == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, uint64(1), p.Stats().BadNumeric)
	assert.Len(t, store.Current().Records, 2)
	assert.True(t, store.Current().Records[1].BadAmount)

	entries := logs.FilterMessage("records with non-numeric amount").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{"T2"}, entries[0].ContextMap()["ids"])
}

func TestPoller_FailureLogsKind(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	src := &scriptedSource{script: []fetchResult{{err: fmt.Errorf("%w: header only", source.ErrEmpty)}}}

	p := New(Config{Interval: time.Hour, FetchTimeout: time.Second}, src, memorystore.NewSnapshotStore(), zap.New(core))
	require.NoError(t, p.Start(context.Background()))
	defer stop(t, p)

	require.Eventually(t, func() bool { return p.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
	entries := logs.FilterMessage("feed fetch failed, keeping last snapshot").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "empty", entries[0].ContextMap()["kind"])
}

// go test -v --run TestPoller_Lifecycle
func TestPoller_Lifecycle(t *testing.T) {
	src := &scriptedSource{script: []fetchResult{{rows: goodRows("T1")}}}
	p := New(Config{}, src, memorystore.NewSnapshotStore(), nil)

	assert.Equal(t, Idle, p.State())
	assert.Equal(t, DefaultConfig(), p.cfg)

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)

	stop(t, p)
	stop(t, p)
	assert.ErrorIs(t, p.Start(context.Background()), ErrStopped)
	assert.Equal(t, "stopped", p.Stats().State)
}

func TestPoller_StopBeforeStart(t *testing.T) {
	p := New(DefaultConfig(), &scriptedSource{}, memorystore.NewSnapshotStore(), nil)
	stop(t, p)
	assert.ErrorIs(t, p.Start(context.Background()), ErrStopped)
}

func TestPoller_ParentContextCancel(t *testing.T) {
	src := &scriptedSource{script: []fetchResult{{rows: goodRows("T1")}}}
	store := memorystore.NewSnapshotStore()

	ctx, cancel := context.WithCancel(context.Background())
	p := New(Config{Interval: 5 * time.Millisecond, FetchTimeout: time.Second}, src, store, nil)
	require.NoError(t, p.Start(ctx))
	require.Eventually(t, func() bool { return store.Current().Version >= 1 }, time.Second, 5*time.Millisecond)

	cancel()
	stop(t, p)

	v := store.Current().Version
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, v, store.Current().Version)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "unreachable", errorKind(fmt.Errorf("%w: x", source.ErrUnreachable)))
	assert.Equal(t, "parse_failure", errorKind(fmt.Errorf("%w: x", source.ErrParseFailure)))
	assert.Equal(t, "empty", errorKind(source.ErrEmpty))
	assert.Equal(t, "timeout", errorKind(context.DeadlineExceeded))
	assert.Equal(t, "unknown", errorKind(errors.New("x")))
}
