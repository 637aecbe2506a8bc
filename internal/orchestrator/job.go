package orchestrator

import (
	"context"
	"time"

	"docAnalyzer/internal/analyzer"
)

// ==========================================
// 任务状态机
// ==========================================

// JobState 任务状态
// 状态迁移是单向的: Queued → Running → {Succeeded, Failed, Cancelled}
// 终态之间不存在任何迁移
type JobState int

const (
	StateQueued JobState = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

// String 返回状态名称
func (s JobState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal 是否终态
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// canTransition 校验状态迁移是否合法
func canTransition(from, to JobState) bool {
	switch from {
	case StateQueued:
		return to == StateRunning || to == StateCancelled
	case StateRunning:
		return to.Terminal()
	default:
		// 终态不可离开
		return false
	}
}

// ==========================================
// 任务与快照
// ==========================================

// Snapshot 任务的只读快照，Poll 和 Subscribe 都用它对外交付
type Snapshot struct {
	ID         string
	Path       string
	State      JobState
	Result     *analyzer.Result // 仅 Succeeded 时非空
	Err        error            // 仅 Failed / Cancelled 时非空
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// job 任务内部状态，所有字段由 Orchestrator 的锁保护
type job struct {
	id          string
	path        string
	analyzeOpts analyzer.Options

	state  JobState
	result *analyzer.Result
	err    error

	queuedAt   time.Time
	startedAt  time.Time
	finishedAt time.Time

	// cancel 运行期的 context 取消钩子，Running 之前为 nil
	cancel context.CancelFunc

	// cancelRequested 运行期收到过取消请求
	// 提取可能在取消生效前就跑完了，终态裁决必须看这个标志而不是只看错误:
	// 被取消的任务永远不允许以 Succeeded 结束
	cancelRequested bool

	// subscribers 每个订阅者一个通道；终态通知发送后统一关闭
	subscribers []chan Snapshot
}

// snapshotLocked 生成快照，调用方持锁
func (j *job) snapshotLocked() Snapshot {
	return Snapshot{
		ID:         j.id,
		Path:       j.path,
		State:      j.state,
		Result:     j.result,
		Err:        j.err,
		QueuedAt:   j.queuedAt,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
}
