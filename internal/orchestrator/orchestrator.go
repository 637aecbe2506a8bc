// Package orchestrator 负责分析任务的受控并发执行
// 提交、取消、查询、订阅全部非阻塞；每个任务严格遵守单向状态机，
// 每个订阅者收到恰好一次终态通知
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"docAnalyzer/internal/analyzer"
	"docAnalyzer/internal/cache"
	"docAnalyzer/internal/config"
	"docAnalyzer/internal/extractor"
	"docAnalyzer/internal/logger"
	"docAnalyzer/internal/metrics"
	"docAnalyzer/internal/model"
)

var (
	// ErrQueueFull 等待队列已满，Submit 不阻塞直接拒绝
	ErrQueueFull = errors.New("任务队列已满")
	// ErrUnknownJob 任务 ID 不存在
	ErrUnknownJob = errors.New("任务不存在")
	// ErrClosed 编排器已关闭
	ErrClosed = errors.New("编排器已关闭")
)

// Options 编排器选项
type Options struct {
	// Workers 并发 Worker 数
	Workers int
	// QueueSize 等待队列容量
	QueueSize int
	// EventBuffer 订阅通道缓冲大小 (至少为 2: 进度槽 + 终态保留槽)
	EventBuffer int
	// Timeout 单任务提取超时，0 不限制
	Timeout time.Duration
}

// OptionsFromConfig 从全局配置取编排器选项
func OptionsFromConfig(cfg *config.AppConfig) Options {
	return Options{
		Workers:     cfg.Orchestrator.Workers,
		QueueSize:   cfg.Orchestrator.QueueSize,
		EventBuffer: cfg.Orchestrator.EventBuffer,
		Timeout:     cfg.Extractor.Timeout,
	}
}

// normalize 兜底非法选项
func (o Options) normalize() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1
	}
	if o.EventBuffer < 2 {
		o.EventBuffer = 2
	}
	return o
}

// Orchestrator 任务编排器
type Orchestrator struct {
	opts     Options
	registry *extractor.Registry
	cache    *cache.Cache // 可以为 nil: 不启用缓存

	mu     sync.Mutex
	jobs   map[string]*job
	queue  chan *job
	closed bool

	// group 同一文件的并发提取合并成一次
	group singleflight.Group
	wg    sync.WaitGroup
}

// New 创建编排器并启动 Worker 池
func New(opts Options, registry *extractor.Registry, resultCache *cache.Cache) *Orchestrator {
	opts = opts.normalize()
	o := &Orchestrator{
		opts:     opts,
		registry: registry,
		cache:    resultCache,
		jobs:     make(map[string]*job),
		queue:    make(chan *job, opts.QueueSize),
	}

	for i := 0; i < opts.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}

	logger.Info("Orchestrator started", "workers", opts.Workers, "queue_size", opts.QueueSize)
	return o
}

// ==========================================
// 对外操作：全部非阻塞
// ==========================================

// Submit 提交分析任务，立刻返回任务 ID
// 队列满时返回 ErrQueueFull 而不是阻塞调用方
func (o *Orchestrator) Submit(path string, analyzeOpts analyzer.Options) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return "", ErrClosed
	}

	j := &job{
		id:          uuid.NewString(),
		path:        path,
		analyzeOpts: analyzeOpts,
		state:       StateQueued,
		queuedAt:    time.Now(),
	}

	select {
	case o.queue <- j:
	default:
		return "", ErrQueueFull
	}

	o.jobs[j.id] = j
	metrics.Default().JobsSubmittedTotal.Inc()
	logger.Debug("Job submitted", "job_id", j.id, "path", path)
	return j.id, nil
}

// Cancel 请求取消任务
// 排队中的任务立即进入 Cancelled；运行中的任务通过 context 协作取消，
// 在提取器的页间检查点生效；已终态的任务什么都不做
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	j, ok := o.jobs[id]
	if !ok {
		return ErrUnknownJob
	}

	switch {
	case j.state.Terminal():
		// 终态后取消是无害的空操作
		return nil

	case j.state == StateQueued:
		j.err = &extractor.CancellationError{Path: j.path}
		o.transitionLocked(j, StateCancelled)
		return nil

	default: // Running
		j.cancelRequested = true
		if j.cancel != nil {
			j.cancel()
		}
		return nil
	}
}

// Poll 获取任务当前快照
func (o *Orchestrator) Poll(id string) (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	j, ok := o.jobs[id]
	if !ok {
		return Snapshot{}, ErrUnknownJob
	}
	return j.snapshotLocked(), nil
}

// Subscribe 订阅任务事件
// 返回的通道保证交付恰好一次终态快照后关闭；进度事件尽力交付
// 任务已终态时立即补发终态快照并关闭
func (o *Orchestrator) Subscribe(id string) (<-chan Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	j, ok := o.jobs[id]
	if !ok {
		return nil, ErrUnknownJob
	}

	ch := make(chan Snapshot, o.opts.EventBuffer)
	if j.state.Terminal() {
		ch <- j.snapshotLocked()
		close(ch)
		return ch, nil
	}

	j.subscribers = append(j.subscribers, ch)
	return ch, nil
}

// Close 停止接收新任务，等待在途任务全部进入终态
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	o.wg.Wait()
	logger.Info("Orchestrator stopped")
}

// ==========================================
// Worker
// ==========================================

func (o *Orchestrator) worker() {
	defer o.wg.Done()

	for j := range o.queue {
		o.run(j)
	}
}

func (o *Orchestrator) run(j *job) {
	o.mu.Lock()
	if j.state != StateQueued {
		// 排队期间已被取消，终态通知早已发出
		o.mu.Unlock()
		return
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if o.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), o.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	j.cancel = cancel
	o.transitionLocked(j, StateRunning)
	o.mu.Unlock()
	defer cancel()

	metrics.Default().JobsInFlight.Inc()
	doc, err := o.obtainDocument(ctx, j.path)

	// 取消裁决看标志而不是只看错误: 提取可能在取消生效前就完成了
	// (最后一个检查点之后才收到取消，或者在 singleflight 里等别人的结果)，
	// 这种情况也必须以 Cancelled 收场并丢弃全部输出
	o.mu.Lock()
	cancelRequested := j.cancelRequested
	o.mu.Unlock()

	var result *analyzer.Result
	var terminal JobState
	switch {
	case cancelRequested:
		// 取消的任务丢弃全部半成品输出
		err = &extractor.CancellationError{Path: j.path, Err: ctx.Err()}
		terminal = StateCancelled

	case err == nil:
		r := analyzer.Analyze(doc, j.analyzeOpts)
		result = &r
		terminal = StateSucceeded

	default:
		// 没有取消请求时出现的 ctx 超时属于提取失败
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("提取超时 (上限 %v): %w", o.opts.Timeout, err)
		}
		terminal = StateFailed
	}

	// 缓存只在成功之后写入
	if terminal == StateSucceeded && o.cache != nil {
		if cacheErr := o.cache.Put(j.path, doc); cacheErr != nil {
			logger.Warn("Cache put failed", "path", j.path, "error", cacheErr)
		}
	}

	o.mu.Lock()
	j.result = result
	if terminal != StateSucceeded {
		j.err = err
	}
	o.transitionLocked(j, terminal)
	o.mu.Unlock()

	metrics.Default().JobsInFlight.Dec()
}

// obtainDocument 取得文档：先查缓存，miss 时经 singleflight 提取
// 同一路径的并发任务至多触发一次实际提取
func (o *Orchestrator) obtainDocument(ctx context.Context, path string) (*model.Document, error) {
	if o.cache != nil {
		doc, hit, err := o.cache.Get(path)
		if err != nil {
			// 缓存不一致只影响这一条，按 miss 继续走提取
			logger.Warn("Cache inconsistency detected", "path", path, "error", err)
		}
		if hit {
			logger.Debug("Cache hit", "path", path)
			return doc, nil
		}
	}

	v, err, shared := o.group.Do(path, func() (interface{}, error) {
		return o.registry.ExtractFile(ctx, path)
	})

	// 共享结果被发起方的取消波及，而自己并没有被取消：自己重新提取一次
	if err != nil && extractor.IsCancellation(err) && ctx.Err() == nil && shared {
		return o.registry.ExtractFile(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	doc, ok := v.(*model.Document)
	if !ok {
		return nil, fmt.Errorf("提取结果类型异常: %T", v)
	}
	return doc, nil
}

// ==========================================
// 状态迁移与事件分发
// ==========================================

// transitionLocked 执行状态迁移并分发事件，调用方持锁
// 进度事件尽力交付 (永远给终态保留一个缓冲槽)；
// 终态事件保证交付，随后关闭所有订阅通道
func (o *Orchestrator) transitionLocked(j *job, to JobState) {
	if !canTransition(j.state, to) {
		logger.Error("Illegal state transition rejected", "job_id", j.id, "from", j.state.String(), "to", to.String())
		return
	}

	j.state = to
	now := time.Now()
	switch to {
	case StateRunning:
		j.startedAt = now
	default:
		j.finishedAt = now
	}

	snap := j.snapshotLocked()

	if !to.Terminal() {
		for _, ch := range j.subscribers {
			if len(ch) < cap(ch)-1 {
				ch <- snap
			}
		}
		return
	}

	metrics.Default().RecordJobFinished(to.String())
	logger.Info("Job finished", "job_id", j.id, "path", j.path, "state", to.String())

	for _, ch := range j.subscribers {
		// 保留槽保证这次发送不会阻塞
		select {
		case ch <- snap:
		default:
		}
		close(ch)
	}
	j.subscribers = nil
}
