// analysis_pipeline_test.go: tests for debounced latest-wins analysis
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package devtools

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// recorder collects applied results from any goroutine.
type recorder struct {
	mu      sync.Mutex
	values  []string
	seqs    []uint64
	content []string
}

func (r *recorder) apply(res AnalysisResult[string]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, res.Value)
	r.seqs = append(r.seqs, res.Seq)
}

func (r *recorder) analyzed(content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content = append(r.content, content)
}

func (r *recorder) snapshot() (values []string, seqs []uint64, content []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...), append([]uint64(nil), r.seqs...), append([]string(nil), r.content...)
}

func upper(rec *recorder) func(context.Context, string) (string, error) {
	return func(_ context.Context, content string) (string, error) {
		rec.analyzed(content)
		return strings.ToUpper(content), nil
	}
}

func settle(t *testing.T, s interface{ Settle(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Settle(ctx))
}

// TestAnalysisPipeline_CoalescesBurst verifies that a burst of edits within
// the quiet period produces a single analysis of the final content
func TestAnalysisPipeline_CoalescesBurst(t *testing.T) {
	rec := &recorder{}
	p := NewAnalysisPipeline(PipelineConfig{Name: "burst", DebounceWindow: 40 * time.Millisecond}, upper(rec), rec.apply)
	defer p.Close()

	for _, s := range []string{"h", "he", "hel", "hell", "hello"} {
		require.True(t, p.Submit(s))
	}

	require.Eventually(t, func() bool {
		values, _, _ := rec.snapshot()
		return len(values) == 1
	}, 2*time.Second, 5*time.Millisecond)

	values, seqs, content := rec.snapshot()
	assert.Equal(t, []string{"HELLO"}, values)
	assert.Equal(t, []uint64{1}, seqs)
	assert.Equal(t, []string{"hello"}, content)

	stats := p.Stats()
	assert.Equal(t, uint64(5), stats.Submitted)
	assert.Equal(t, uint64(1), stats.Issued)
	assert.Equal(t, uint64(1), stats.Applied)
}

// TestAnalysisPipeline_CancelsInFlight verifies that a newer request cancels
// the running analysis and only the newer result is applied
func TestAnalysisPipeline_CancelsInFlight(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	analyze := func(ctx context.Context, content string) (string, error) {
		if content == "slow" {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return strings.ToUpper(content), nil
	}
	p := NewAnalysisPipeline(PipelineConfig{Name: "cancel", DebounceWindow: time.Hour}, analyze, rec.apply)
	defer p.Close()

	p.Submit("slow")
	p.Flush()
	<-started

	p.Submit("fast")
	settle(t, p)

	values, seqs, _ := rec.snapshot()
	assert.Equal(t, []string{"FAST"}, values)
	assert.Equal(t, []uint64{2}, seqs)
	assert.Equal(t, uint64(1), p.Stats().Superseded)
	assert.Zero(t, p.Stats().Failed)
}

// TestAnalysisPipeline_DropsStaleResult covers an analysis that ignores
// cancellation and finishes after a newer request was issued
func TestAnalysisPipeline_DropsStaleResult(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	release := make(chan struct{})
	analyze := func(_ context.Context, content string) (string, error) {
		if content == "old" {
			close(started)
			<-release
		}
		return strings.ToUpper(content), nil
	}
	p := NewAnalysisPipeline(PipelineConfig{Name: "stale", DebounceWindow: time.Hour}, analyze, rec.apply)
	defer p.Close()

	p.Submit("old")
	p.Flush()
	<-started
	p.Submit("new")
	p.Flush()
	close(release)
	settle(t, p)

	values, _, _ := rec.snapshot()
	assert.Equal(t, []string{"NEW"}, values)
	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Stale)
	assert.Equal(t, uint64(1), stats.Applied)
}

func TestAnalysisPipeline_CloseDuringFlight(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})
	analyze := func(ctx context.Context, content string) (string, error) {
		close(started)
		<-ctx.Done()
		return content, nil
	}
	p := NewAnalysisPipeline(PipelineConfig{Name: "close", DebounceWindow: time.Hour}, analyze, rec.apply)

	p.Submit("x")
	p.Flush()
	<-started
	p.Close()
	p.Close()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
	values, _, _ := rec.snapshot()
	assert.Empty(t, values)
	assert.True(t, p.Closed())
	assert.False(t, p.Submit("y"))
	assert.NoError(t, p.Settle(context.Background()))
}

// TestAnalysisPipeline_CloseWaitsForRunningApply closes the pipeline while
// a result is being applied on the event loop. Close must not return before
// that apply finishes, and the pane must not change afterwards.
func TestAnalysisPipeline_CloseWaitsForRunningApply(t *testing.T) {
	// Setup
	loop := NewEventLoop(nil)
	loop.Start()
	defer loop.Stop()

	pane := NewPane("text", false)
	pane.SetText("hello")
	entered := make(chan struct{})
	release := make(chan struct{})
	var closeReturned atomic.Bool
	var lateWrites atomic.Int32
	apply := func(res AnalysisResult[string]) {
		close(entered)
		<-release
		if closeReturned.Load() {
			lateWrites.Add(1)
		}
		pane.SetSpans([]StyleSpan{{Start: 0, End: len(res.Value), Class: StyleKeyword}})
	}
	p := NewAnalysisPipeline(PipelineConfig{Name: "teardown", DebounceWindow: time.Hour, Dispatcher: loop}, upper(&recorder{}), apply)

	// Execute
	p.Submit("hello")
	p.Flush()
	<-entered

	closed := make(chan struct{})
	go func() {
		p.Close()
		closeReturned.Store(true)
		close(closed)
	}()

	// Verify: Close blocks until the apply is done
	select {
	case <-closed:
		t.Fatal("Close returned while an apply was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after the apply finished")
	}

	var changes int
	pane.OnChange(func(PaneChange) { changes++ })
	require.NoError(t, loop.Do(context.Background(), func() {}))
	assert.Zero(t, lateWrites.Load())
	assert.Zero(t, changes)
	assert.Equal(t, uint64(1), p.Stats().Applied)
}

func TestAnalysisPipeline_CloseDropsPendingBurst(t *testing.T) {
	rec := &recorder{}
	p := NewAnalysisPipeline(PipelineConfig{Name: "pending", DebounceWindow: 20 * time.Millisecond}, upper(rec), rec.apply)
	p.Submit("never")
	p.Close()

	time.Sleep(60 * time.Millisecond)
	_, _, content := rec.snapshot()
	assert.Empty(t, content)
	assert.Zero(t, p.LatestSeq())
}

func TestAnalysisPipeline_FailuresAndPanics(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		logger := NewTestLogger()
		metrics := NewDefaultMetricsCollector()
		rec := &recorder{}
		analyze := func(context.Context, string) (string, error) {
			return "", stderrors.New("tokenizer broke")
		}
		p := NewAnalysisPipeline(PipelineConfig{
			Name: "fail", DebounceWindow: time.Hour, Logger: logger, Metrics: metrics,
		}, analyze, rec.apply)
		defer p.Close()

		p.Submit("x")
		settle(t, p)

		values, _, _ := rec.snapshot()
		assert.Empty(t, values)
		assert.Equal(t, uint64(1), p.Stats().Failed)
		assert.True(t, logger.HasMessage("WARN", "Analysis failed"))
		assert.Equal(t, int64(1), metrics.Counter(MetricPipelineRequests,
			map[string]string{"pipeline": "fail", "outcome": "failed"}))
	})

	t.Run("Panic", func(t *testing.T) {
		logger := NewTestLogger()
		rec := &recorder{}
		analyze := func(_ context.Context, content string) (string, error) {
			if content == "boom" {
				panic("analyzer panic")
			}
			return content, nil
		}
		p := NewAnalysisPipeline(PipelineConfig{Name: "panic", DebounceWindow: time.Hour, Logger: logger}, analyze, rec.apply)
		defer p.Close()

		p.Submit("boom")
		settle(t, p)
		assert.True(t, logger.HasMessage("ERROR", "Panic recovered in analysis"))
		assert.Equal(t, uint64(1), p.Stats().Failed)

		p.Submit("fine")
		settle(t, p)
		values, _, _ := rec.snapshot()
		assert.Equal(t, []string{"fine"}, values)
	})
}

func TestAnalysisPipeline_AppliesOnDispatcher(t *testing.T) {
	loop := NewEventLoop(nil)
	loop.Start()
	defer loop.Stop()

	var onLoop bool
	rec := &recorder{}
	apply := func(res AnalysisResult[string]) {
		onLoop = true
		rec.apply(res)
	}
	p := NewAnalysisPipeline(PipelineConfig{Name: "loop", DebounceWindow: time.Hour, Dispatcher: loop}, upper(rec), apply)
	defer p.Close()

	p.Submit("abc")
	settle(t, p)

	require.NoError(t, loop.Do(context.Background(), func() {
		assert.True(t, onLoop)
	}))
	values, _, _ := rec.snapshot()
	assert.Equal(t, []string{"ABC"}, values)
}

func TestAnalysisPipeline_SettleTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	analyze := func(context.Context, string) (string, error) {
		<-block
		return "", nil
	}
	p := NewAnalysisPipeline(PipelineConfig{Name: "slow", DebounceWindow: time.Hour}, analyze, func(AnalysisResult[string]) {})
	defer p.Close()

	p.Submit("x")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Settle(ctx), context.DeadlineExceeded)
}

// TestAnalysisPipeline_LatestWinsProperty checks that whatever the mix of
// edits and flushes, the last applied value matches the last edit and
// applied sequence numbers only grow
func TestAnalysisPipeline_LatestWinsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rec := &recorder{}
		p := NewAnalysisPipeline(PipelineConfig{Name: "prop", DebounceWindow: time.Hour}, upper(rec), rec.apply)
		defer p.Close()

		edits := rapid.SliceOfN(rapid.StringOf(rapid.RuneFrom([]rune("abc{}"))), 1, 12).Draw(rt, "edits")
		for _, e := range edits {
			p.Submit(e)
			if rapid.Bool().Draw(rt, "flush") {
				p.Flush()
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Settle(ctx); err != nil {
			rt.Fatalf("settle: %v", err)
		}

		values, seqs, _ := rec.snapshot()
		if len(values) == 0 {
			rt.Fatalf("nothing applied")
		}
		if want := strings.ToUpper(edits[len(edits)-1]); values[len(values)-1] != want {
			rt.Fatalf("last applied %q, want %q", values[len(values)-1], want)
		}
		for i := 1; i < len(seqs); i++ {
			if seqs[i] <= seqs[i-1] {
				rt.Fatalf("sequence went backwards: %v", seqs)
			}
		}
		if seqs[len(seqs)-1] != p.LatestSeq() {
			rt.Fatalf("last applied seq %d, latest %d", seqs[len(seqs)-1], p.LatestSeq())
		}
	})
}
