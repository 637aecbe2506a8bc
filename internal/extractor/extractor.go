// Package extractor 提供各文档格式的文本提取器
// 所有提取器遵守同一契约：成功返回完整的 Document，失败返回 ExtractionError，
// 不会出现两者皆空或两者皆有的情况；打开的文件句柄在返回前全部释放
package extractor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docAnalyzer/internal/config"
	"docAnalyzer/internal/detector"
	"docAnalyzer/internal/logger"
	"docAnalyzer/internal/metrics"
	"docAnalyzer/internal/model"
)

// Extractor 提取器接口
type Extractor interface {
	// Name 返回提取器名称
	Name() string
	// Format 返回该提取器负责的文档格式
	Format() model.FormatKind
	// Extract 提取文档内容
	// ctx 取消会在页与页之间的检查点生效，返回 CancellationError
	Extract(ctx context.Context, path string) (*model.Document, error)
}

// ============================================================
// 提取器注册表
// ============================================================

// Registry 提取器注册表，按格式索引
type Registry struct {
	byFormat map[model.FormatKind]Extractor
	mu       sync.RWMutex
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		byFormat: make(map[model.FormatKind]Extractor),
	}
}

// Register 注册提取器，同格式后注册者覆盖先注册者
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byFormat[e.Format()] = e
}

// Get 按格式获取提取器
func (r *Registry) Get(kind model.FormatKind) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byFormat[kind]
	return e, ok
}

// Formats 返回已注册的全部格式
func (r *Registry) Formats() []model.FormatKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]model.FormatKind, 0, len(r.byFormat))
	for k := range r.byFormat {
		kinds = append(kinds, k)
	}
	return kinds
}

// DefaultRegistry 返回带全部内置提取器的注册表
// 提取策略 (文件大小上限等) 取自全局配置
func DefaultRegistry() *Registry {
	cfg := config.Get()

	r := NewRegistry()
	r.Register(NewTextExtractorWithLimit(cfg.Extractor.MaxFileSize))
	r.Register(NewPDFExtractor())
	r.Register(NewDOCXExtractor())
	r.Register(NewHWPExtractor())
	return r
}

// ============================================================
// 门面：探测 + 提取
// ============================================================

// ExtractFile 对单个文件执行完整的探测加提取流程
// 第三方解析库在损坏文件上可能 panic，这里统一 recover 并转成 corrupt-structure
func (r *Registry) ExtractFile(ctx context.Context, path string) (doc *model.Document, err error) {
	kind, err := detector.Detect(path)
	if err != nil {
		return nil, err
	}

	e, ok := r.Get(kind)
	if !ok {
		return nil, fmt.Errorf("格式 %s 没有对应的提取器", kind)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Extractor panic recovered", "extractor", e.Name(), "path", path, "panic", rec)
			doc = nil
			err = NewExtractionError(e.Name(), path, KindCorruptStructure, "解析",
				fmt.Errorf("parser panic: %v", rec))
		}
	}()

	start := time.Now()
	doc, err = e.Extract(ctx, path)
	status := "success"
	if err != nil {
		if IsCancellation(err) {
			status = "cancelled"
		} else {
			status = "error"
		}
	}
	metrics.Default().RecordExtraction(kind.String(), status, time.Since(start))

	if err != nil {
		return nil, err
	}
	return doc, nil
}

// checkpoint 页间取消检查点
func checkpoint(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return newCancellation(path, ctx.Err())
	default:
		return nil
	}
}
