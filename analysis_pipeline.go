// analysis_pipeline.go: debounced, latest-wins background content analysis
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// DefaultDebounceWindow is the quiet period after the last edit before an
// analysis is issued.
const DefaultDebounceWindow = 500 * time.Millisecond

// PipelineConfig configures an AnalysisPipeline.
type PipelineConfig struct {
	// Name labels log lines and metrics.
	Name string

	DebounceWindow time.Duration

	// Dispatcher receives result application tasks.
	Dispatcher Dispatcher

	Logger  Logger
	Metrics MetricsCollector
}

func setPipelineDefaults(cfg *PipelineConfig) {
	if cfg.Name == "" {
		cfg.Name = "analysis"
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = InlineDispatcher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoOpMetricsCollector{}
	}
}

// AnalysisRequest is one content snapshot issued for analysis.
type AnalysisRequest struct {
	Seq         uint64
	Content     string
	SubmittedAt time.Time
}

// AnalysisResult is the outcome of a successful analysis.
type AnalysisResult[R any] struct {
	Seq      uint64
	Value    R
	Duration time.Duration
}

// PipelineStats counts requests by outcome.
type PipelineStats struct {
	Submitted  uint64 // content-change events
	Issued     uint64 // requests issued after a quiet period
	Applied    uint64
	Stale      uint64 // finished but no longer the latest
	Failed     uint64
	Superseded uint64 // replaced before or while running
}

// Request outcomes used as metric labels.
const (
	outcomeApplied    = "applied"
	outcomeStale      = "stale"
	outcomeFailed     = "failed"
	outcomeSuperseded = "superseded"
)

// AnalysisPipeline turns a stream of content edits into at most one
// running analysis at a time and applies only the newest result.
//
// Edits are coalesced by a restartable debounce timer. When the editor has
// been quiet for the debounce window, a request numbered latest+1 is issued,
// any in-flight analysis is cancelled, and the request replaces whatever
// is still waiting in the single queue slot. One worker goroutine runs
// analyses serially. A finished result is posted to the dispatcher and
// applied there only if its sequence number is still the latest and the
// pipeline has not been closed.
type AnalysisPipeline[R any] struct {
	cfg     PipelineConfig
	analyze func(ctx context.Context, content string) (R, error)
	apply   func(AnalysisResult[R])

	mu             sync.Mutex
	timer          *time.Timer
	generation     uint64
	pending        bool
	pendingContent string
	latest         uint64
	settled        uint64
	inflightCancel context.CancelFunc
	closed         bool
	settleCh       chan struct{}

	// applyMu is taken before mu. deliver holds it across the liveness
	// check and apply, Close while marking the pipeline closed.
	applyMu sync.Mutex

	slot      chan AnalysisRequest
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	submitted  atomic.Uint64
	issued     atomic.Uint64
	applied    atomic.Uint64
	stale      atomic.Uint64
	failed     atomic.Uint64
	superseded atomic.Uint64
}

// NewAnalysisPipeline starts a pipeline. analyze runs on the worker
// goroutine and should honour ctx cancellation; apply runs on the
// dispatcher.
func NewAnalysisPipeline[R any](cfg PipelineConfig, analyze func(ctx context.Context, content string) (R, error), apply func(AnalysisResult[R])) *AnalysisPipeline[R] {
	setPipelineDefaults(&cfg)
	ctx, cancel := context.WithCancel(context.Background())
	p := &AnalysisPipeline[R]{
		cfg:      cfg,
		analyze:  analyze,
		apply:    apply,
		settleCh: make(chan struct{}),
		slot:     make(chan AnalysisRequest, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	p.cfg.Logger = cfg.Logger.With("pipeline", cfg.Name)
	SafeGoWithHandler(MetricsRecoveryHandler(p.cfg.Logger, p.cfg.Metrics, "analysis_pipeline"), p.worker)
	return p
}

// Submit records a content change. It returns false once the pipeline is
// closed.
func (p *AnalysisPipeline[R]) Submit(content string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.submitted.Add(1)
	p.pendingContent = content
	p.pending = true
	p.generation++
	gen := p.generation
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.cfg.DebounceWindow, func() { p.fire(gen) })
	return true
}

// fire is the debounce timer callback. A timer that was stopped too late
// to prevent its callback carries an old generation and does nothing.
func (p *AnalysisPipeline[R]) fire(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || gen != p.generation || !p.pending {
		return
	}
	p.issueLocked()
}

// Flush issues a pending burst immediately instead of waiting for the
// quiet period.
func (p *AnalysisPipeline[R]) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.pending {
		return
	}
	p.generation++
	p.issueLocked()
}

// caller holds p.mu
func (p *AnalysisPipeline[R]) issueLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = false
	p.latest++
	req := AnalysisRequest{
		Seq:         p.latest,
		Content:     p.pendingContent,
		SubmittedAt: timecache.CachedTime(),
	}
	p.pendingContent = ""
	p.issued.Add(1)

	if p.inflightCancel != nil {
		p.inflightCancel()
		p.inflightCancel = nil
	}

	// The worker only ever receives from the slot, so after draining it
	// under p.mu the send cannot block.
	select {
	case old := <-p.slot:
		p.record(outcomeSuperseded, &p.superseded)
		p.cfg.Logger.Debug("Analysis request superseded before start", "seq", old.Seq)
	default:
	}
	p.slot <- req
}

func (p *AnalysisPipeline[R]) worker() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case req := <-p.slot:
			p.process(req)
		}
	}
}

func (p *AnalysisPipeline[R]) process(req AnalysisRequest) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if req.Seq != p.latest {
		p.mu.Unlock()
		p.record(outcomeSuperseded, &p.superseded)
		return
	}
	actx, cancel := context.WithCancel(p.ctx)
	p.inflightCancel = cancel
	p.mu.Unlock()
	defer cancel()

	start := time.Now()
	value, err := p.runAnalyze(actx, req.Content)
	elapsed := time.Since(start)

	p.mu.Lock()
	p.inflightCancel = nil
	current := req.Seq == p.latest && !p.closed
	p.mu.Unlock()

	p.cfg.Metrics.RecordHistogram(MetricPipelineAnalysis,
		map[string]string{"pipeline": p.cfg.Name}, elapsed.Seconds())

	if err != nil {
		if !current && actx.Err() != nil {
			p.record(outcomeSuperseded, &p.superseded)
			p.markSettled(req.Seq)
			return
		}
		p.record(outcomeFailed, &p.failed)
		p.cfg.Logger.Warn("Analysis failed",
			"seq", req.Seq,
			"error", NewAnalysisFailedError(p.cfg.Name, req.Seq, err))
		p.markSettled(req.Seq)
		return
	}

	result := AnalysisResult[R]{Seq: req.Seq, Value: value, Duration: elapsed}
	if !p.cfg.Dispatcher.Post(func() { p.deliver(result) }) {
		p.record(outcomeStale, &p.stale)
		p.markSettled(req.Seq)
	}
}

func (p *AnalysisPipeline[R]) runAnalyze(ctx context.Context, content string) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Value: r, Stack: captureStack()}
			p.cfg.Logger.Error("Panic recovered in analysis",
				"panic", r,
				"stack", string(pe.Stack))
			err = pe
		}
	}()
	return p.analyze(ctx, content)
}

// deliver runs on the dispatcher.
func (p *AnalysisPipeline[R]) deliver(result AnalysisResult[R]) {
	defer p.markSettled(result.Seq)

	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	live := !p.closed && result.Seq == p.latest
	p.mu.Unlock()
	if !live {
		p.record(outcomeStale, &p.stale)
		return
	}

	defer withStackRecover(p.cfg.Logger)()
	p.apply(result)
	p.record(outcomeApplied, &p.applied)
}

func (p *AnalysisPipeline[R]) record(outcome string, counter *atomic.Uint64) {
	counter.Add(1)
	p.cfg.Metrics.IncrementCounter(MetricPipelineRequests,
		map[string]string{"pipeline": p.cfg.Name, "outcome": outcome}, 1)
}

func (p *AnalysisPipeline[R]) markSettled(seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq > p.settled {
		p.settled = seq
	}
	close(p.settleCh)
	p.settleCh = make(chan struct{})
}

// Settle flushes any pending burst and waits until the newest request has
// been applied, dropped or has failed. It returns nil immediately once the
// pipeline is closed. Settle must not be called from the dispatcher
// goroutine, which would deadlock waiting for its own task.
func (p *AnalysisPipeline[R]) Settle(ctx context.Context) error {
	p.Flush()
	for {
		p.mu.Lock()
		if p.closed || (!p.pending && p.settled >= p.latest) {
			p.mu.Unlock()
			return nil
		}
		ch := p.settleCh
		p.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the pipeline. The pending burst is dropped and the in-flight
// analysis is cancelled. An apply already running on the dispatcher is
// waited for, and none runs after Close returns. apply must not call
// Close. Close may be called more than once.
func (p *AnalysisPipeline[R]) Close() {
	p.closeOnce.Do(func() {
		p.applyMu.Lock()
		defer p.applyMu.Unlock()

		p.mu.Lock()
		p.closed = true
		p.pending = false
		p.generation++
		if p.timer != nil {
			p.timer.Stop()
			p.timer = nil
		}
		if p.inflightCancel != nil {
			p.inflightCancel()
			p.inflightCancel = nil
		}
		close(p.settleCh)
		p.settleCh = make(chan struct{})
		p.mu.Unlock()

		p.cancel()
	})
}

// Closed reports whether Close has been called.
func (p *AnalysisPipeline[R]) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Done is closed when the worker goroutine has exited after Close.
func (p *AnalysisPipeline[R]) Done() <-chan struct{} {
	return p.done
}

// LatestSeq returns the sequence number of the newest issued request.
func (p *AnalysisPipeline[R]) LatestSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

func (p *AnalysisPipeline[R]) Stats() PipelineStats {
	return PipelineStats{
		Submitted:  p.submitted.Load(),
		Issued:     p.issued.Load(),
		Applied:    p.applied.Load(),
		Stale:      p.stale.Load(),
		Failed:     p.failed.Load(),
		Superseded: p.superseded.Load(),
	}
}
