package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docAnalyzer/internal/analyzer"
	"docAnalyzer/internal/cache"
	"docAnalyzer/internal/extractor"
	"docAnalyzer/internal/model"
)

func writeTempText(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

// countingExtractor 记录提取次数，可选地模拟慢速提取并遵守 ctx 取消
type countingExtractor struct {
	calls int64
	delay time.Duration
}

func (e *countingExtractor) Name() string            { return "CountingExtractor" }
func (e *countingExtractor) Format() model.FormatKind { return model.FormatText }

func (e *countingExtractor) Extract(ctx context.Context, path string) (*model.Document, error) {
	atomic.AddInt64(&e.calls, 1)
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &extractor.CancellationError{Path: path, Err: ctx.Err()}
		case <-time.After(e.delay):
		}
	}
	doc := model.NewDocument(path, model.FormatText)
	doc.Pages = []string{"extracted content"}
	return doc, nil
}

func (e *countingExtractor) Calls() int64 {
	return atomic.LoadInt64(&e.calls)
}

func registryWith(e extractor.Extractor) *extractor.Registry {
	r := extractor.NewRegistry()
	r.Register(e)
	return r
}

// waitTerminal 从订阅通道读到终态快照为止
func waitTerminal(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatal("Channel closed before terminal snapshot")
			}
			if snap.State.Terminal() {
				return snap
			}
		case <-deadline:
			t.Fatal("Timed out waiting for terminal snapshot")
		}
	}
}

// ============================================================
// 状态机测试
// ============================================================

func TestJobStateTransitions(t *testing.T) {
	tests := []struct {
		from, to JobState
		want     bool
	}{
		{StateQueued, StateRunning, true},
		{StateQueued, StateCancelled, true},
		{StateQueued, StateSucceeded, false},
		{StateRunning, StateSucceeded, true},
		{StateRunning, StateFailed, true},
		{StateRunning, StateCancelled, true},
		{StateSucceeded, StateRunning, false},
		{StateFailed, StateCancelled, false},
		{StateCancelled, StateQueued, false},
	}

	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

// ============================================================
// 提交与执行测试
// ============================================================

func TestSubmitAndSucceed(t *testing.T) {
	o := New(Options{Workers: 2, QueueSize: 8}, extractor.DefaultRegistry(), nil)
	defer o.Close()

	path := writeTempText(t, "hello orchestrated world")
	id, err := o.Submit(path, analyzer.Options{Keyword: "orchestrated"})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	ch, err := o.Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	snap := waitTerminal(t, ch)
	if snap.State != StateSucceeded {
		t.Fatalf("State = %v, want Succeeded (err=%v)", snap.State, snap.Err)
	}
	if snap.Result == nil {
		t.Fatal("Succeeded job must carry a result")
	}
	if snap.Result.WordCount != 3 {
		t.Errorf("WordCount = %d, want 3", snap.Result.WordCount)
	}
	if len(snap.Result.KeywordMatches) != 1 {
		t.Errorf("KeywordMatches = %v", snap.Result.KeywordMatches)
	}
	if snap.FinishedAt.IsZero() {
		t.Error("FinishedAt must be set on terminal state")
	}
}

func TestSubmitUnsupportedFileFails(t *testing.T) {
	o := New(Options{Workers: 1, QueueSize: 4}, extractor.DefaultRegistry(), nil)
	defer o.Close()

	// PNG 不是受支持的文档格式
	path := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(path, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 1}, 0644); err != nil {
		t.Fatal(err)
	}

	id, err := o.Submit(path, analyzer.Options{})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	ch, _ := o.Subscribe(id)
	snap := waitTerminal(t, ch)
	if snap.State != StateFailed {
		t.Errorf("State = %v, want Failed", snap.State)
	}
	if snap.Err == nil {
		t.Error("Failed job must carry an error")
	}
	if snap.Result != nil {
		t.Error("Failed job must not carry a result")
	}
}

// 每个订阅者收到恰好一次终态通知，随后通道关闭
func TestSubscribe_ExactlyOneTerminalNotification(t *testing.T) {
	o := New(Options{Workers: 1, QueueSize: 4}, extractor.DefaultRegistry(), nil)
	defer o.Close()

	id, err := o.Submit(writeTempText(t, "content"), analyzer.Options{})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	ch, _ := o.Subscribe(id)

	terminals := 0
	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				if terminals != 1 {
					t.Fatalf("Terminal notifications = %d, want exactly 1", terminals)
				}
				return
			}
			if snap.State.Terminal() {
				terminals++
			}
		case <-deadline:
			t.Fatal("Channel never closed")
		}
	}
}

func TestSubscribe_AfterTerminalReplaysSnapshot(t *testing.T) {
	o := New(Options{Workers: 1, QueueSize: 4}, extractor.DefaultRegistry(), nil)
	defer o.Close()

	id, _ := o.Submit(writeTempText(t, "content"), analyzer.Options{})
	first, _ := o.Subscribe(id)
	waitTerminal(t, first)

	// 终态之后订阅：立即补发快照并关闭
	late, err := o.Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	snap, ok := <-late
	if !ok || !snap.State.Terminal() {
		t.Fatalf("Late subscriber should get terminal snapshot, ok=%v state=%v", ok, snap.State)
	}
	if _, ok := <-late; ok {
		t.Error("Channel must be closed after the terminal snapshot")
	}
}

// ============================================================
// 取消测试
// ============================================================

func TestCancelQueuedJob(t *testing.T) {
	slow := &countingExtractor{delay: 2 * time.Second}
	o := New(Options{Workers: 1, QueueSize: 8}, registryWith(slow), nil)
	defer o.Close()

	blocker := writeTempText(t, "blocker")
	queued := writeTempText(t, "queued")

	// 占住唯一的 Worker
	if _, err := o.Submit(blocker, analyzer.Options{}); err != nil {
		t.Fatalf("Submit(blocker) error: %v", err)
	}
	id, err := o.Submit(queued, analyzer.Options{})
	if err != nil {
		t.Fatalf("Submit(queued) error: %v", err)
	}

	// 给 Worker 一点时间拿走第一个任务
	time.Sleep(100 * time.Millisecond)

	if err := o.Cancel(id); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	snap, err := o.Poll(id)
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if snap.State != StateCancelled {
		t.Errorf("State = %v, want Cancelled", snap.State)
	}
	if !extractor.IsCancellation(snap.Err) {
		t.Errorf("Err = %v, want CancellationError", snap.Err)
	}

	// 终态后重复取消是无害的空操作
	if err := o.Cancel(id); err != nil {
		t.Errorf("Cancel() after terminal should be a no-op, got %v", err)
	}
}

func TestCancelRunningJob(t *testing.T) {
	slow := &countingExtractor{delay: 5 * time.Second}
	o := New(Options{Workers: 1, QueueSize: 4}, registryWith(slow), nil)
	defer o.Close()

	id, err := o.Submit(writeTempText(t, "content"), analyzer.Options{})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	ch, _ := o.Subscribe(id)

	// 等任务进入 Running 再取消
	waitState := time.After(2 * time.Second)
	for {
		snap, _ := o.Poll(id)
		if snap.State == StateRunning {
			break
		}
		select {
		case <-waitState:
			t.Fatal("Job never started running")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := o.Cancel(id); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	snap := waitTerminal(t, ch)
	if snap.State != StateCancelled {
		t.Errorf("State = %v, want Cancelled", snap.State)
	}
	if snap.Result != nil {
		t.Error("Cancelled job must discard partial output")
	}
}

// lateFinishExtractor 感知到取消后仍返回完整文档
// 模拟取消到达在最后一个检查点之后、提取照常跑完的情况
type lateFinishExtractor struct{}

func (e *lateFinishExtractor) Name() string             { return "LateFinishExtractor" }
func (e *lateFinishExtractor) Format() model.FormatKind { return model.FormatText }

func (e *lateFinishExtractor) Extract(ctx context.Context, path string) (*model.Document, error) {
	<-ctx.Done()
	doc := model.NewDocument(path, model.FormatText)
	doc.Pages = []string{"late content"}
	return doc, nil
}

// 取消生效前提取就完成了的任务也必须以 Cancelled 收场，绝不允许 Succeeded
func TestCancelRunningJob_LateFinishNeverSucceeds(t *testing.T) {
	o := New(Options{Workers: 1, QueueSize: 4}, registryWith(&lateFinishExtractor{}), nil)
	defer o.Close()

	id, err := o.Submit(writeTempText(t, "content"), analyzer.Options{})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	ch, _ := o.Subscribe(id)

	waitState := time.After(2 * time.Second)
	for {
		snap, _ := o.Poll(id)
		if snap.State == StateRunning {
			break
		}
		select {
		case <-waitState:
			t.Fatal("Job never started running")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := o.Cancel(id); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	snap := waitTerminal(t, ch)
	if snap.State != StateCancelled {
		t.Fatalf("State = %v, want Cancelled", snap.State)
	}
	if snap.Result != nil {
		t.Error("Cancelled job must discard the extracted document")
	}
	if !extractor.IsCancellation(snap.Err) {
		t.Errorf("Err = %v, want CancellationError", snap.Err)
	}
}

// 超时不是用户取消，超时的任务以 Failed 收场
func TestExtractionTimeoutFails(t *testing.T) {
	slow := &countingExtractor{delay: 5 * time.Second}
	o := New(Options{Workers: 1, QueueSize: 4, Timeout: 100 * time.Millisecond}, registryWith(slow), nil)
	defer o.Close()

	id, err := o.Submit(writeTempText(t, "content"), analyzer.Options{})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	ch, _ := o.Subscribe(id)
	snap := waitTerminal(t, ch)
	if snap.State != StateFailed {
		t.Errorf("State = %v, want Failed", snap.State)
	}
	if snap.Err == nil {
		t.Error("Timed-out job must carry an error")
	}
}

func TestCancelUnknownJob(t *testing.T) {
	o := New(Options{Workers: 1, QueueSize: 4}, extractor.DefaultRegistry(), nil)
	defer o.Close()

	if err := o.Cancel("no-such-id"); err != ErrUnknownJob {
		t.Errorf("Cancel() = %v, want ErrUnknownJob", err)
	}
	if _, err := o.Poll("no-such-id"); err != ErrUnknownJob {
		t.Errorf("Poll() = %v, want ErrUnknownJob", err)
	}
}

// ============================================================
// 背压与并发去重测试
// ============================================================

func TestSubmitQueueFull(t *testing.T) {
	slow := &countingExtractor{delay: 2 * time.Second}
	o := New(Options{Workers: 1, QueueSize: 1}, registryWith(slow), nil)
	defer o.Close()

	path := writeTempText(t, "content")

	// 第一个占 Worker，第二个占队列
	if _, err := o.Submit(path, analyzer.Options{}); err != nil {
		t.Fatalf("Submit(1) error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, err := o.Submit(path, analyzer.Options{}); err != nil {
		t.Fatalf("Submit(2) error: %v", err)
	}

	if _, err := o.Submit(path, analyzer.Options{}); err != ErrQueueFull {
		t.Errorf("Submit(3) = %v, want ErrQueueFull", err)
	}
}

// 同一个未见过的文件被并发提交时，实际提取至多发生一次
func TestConcurrentSameFileSingleExtraction(t *testing.T) {
	counting := &countingExtractor{delay: 300 * time.Millisecond}
	o := New(Options{Workers: 4, QueueSize: 16}, registryWith(counting), nil)
	defer o.Close()

	path := writeTempText(t, "shared file content")

	var wg sync.WaitGroup
	ids := make([]string, 4)
	for i := 0; i < 4; i++ {
		id, err := o.Submit(path, analyzer.Options{})
		if err != nil {
			t.Fatalf("Submit(%d) error: %v", i, err)
		}
		ids[i] = id
	}

	for _, id := range ids {
		ch, err := o.Subscribe(id)
		if err != nil {
			t.Fatalf("Subscribe error: %v", err)
		}
		wg.Add(1)
		go func(ch <-chan Snapshot) {
			defer wg.Done()
			snap := waitTerminal(t, ch)
			if snap.State != StateSucceeded {
				t.Errorf("State = %v, want Succeeded (err=%v)", snap.State, snap.Err)
			}
		}(ch)
	}
	wg.Wait()

	if calls := counting.Calls(); calls != 1 {
		t.Errorf("Extraction calls = %d, want 1 (singleflight dedup)", calls)
	}
}

// ============================================================
// 缓存协同测试
// ============================================================

func TestCacheHitSkipsExtraction(t *testing.T) {
	counting := &countingExtractor{}
	c := cache.New(0)
	o := New(Options{Workers: 1, QueueSize: 4}, registryWith(counting), c)
	defer o.Close()

	path := writeTempText(t, "cache me")

	// 第一轮：miss + 提取 + 成功后写缓存
	id1, _ := o.Submit(path, analyzer.Options{})
	ch1, _ := o.Subscribe(id1)
	if snap := waitTerminal(t, ch1); snap.State != StateSucceeded {
		t.Fatalf("First run state = %v (err=%v)", snap.State, snap.Err)
	}

	// 第二轮：缓存命中，不再提取
	id2, _ := o.Submit(path, analyzer.Options{})
	ch2, _ := o.Subscribe(id2)
	if snap := waitTerminal(t, ch2); snap.State != StateSucceeded {
		t.Fatalf("Second run state = %v (err=%v)", snap.State, snap.Err)
	}

	if calls := counting.Calls(); calls != 1 {
		t.Errorf("Extraction calls = %d, want 1 (second run should hit cache)", calls)
	}
}

func TestCancelledJobNeverWritesCache(t *testing.T) {
	slow := &countingExtractor{delay: 5 * time.Second}
	c := cache.New(0)
	o := New(Options{Workers: 1, QueueSize: 4}, registryWith(slow), c)
	defer o.Close()

	path := writeTempText(t, "content")
	id, _ := o.Submit(path, analyzer.Options{})
	ch, _ := o.Subscribe(id)

	time.Sleep(100 * time.Millisecond)
	if err := o.Cancel(id); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	waitTerminal(t, ch)

	if c.Len() != 0 {
		t.Error("Cancelled job must not write to the cache")
	}
}

// ============================================================
// 关闭测试
// ============================================================

func TestSubmitAfterClose(t *testing.T) {
	o := New(Options{Workers: 1, QueueSize: 4}, extractor.DefaultRegistry(), nil)
	o.Close()

	if _, err := o.Submit(writeTempText(t, "content"), analyzer.Options{}); err != ErrClosed {
		t.Errorf("Submit() after Close = %v, want ErrClosed", err)
	}
}
