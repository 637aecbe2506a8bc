package extractor

import (
	"errors"
	"fmt"
)

// ============================================================
// 提取错误定义
// ============================================================

// ErrorKind 提取失败的细分种类
type ErrorKind string

const (
	// KindCorruptStructure 文件结构损坏，无法按格式解析
	KindCorruptStructure ErrorKind = "corrupt-structure"
	// KindPasswordProtected 文件加密，没有口令打不开
	KindPasswordProtected ErrorKind = "password-protected"
	// KindEncodingUncertain 编码无法完全确认 (软信号，通常不作为失败返回，
	// 而是在 Document 元数据里打标记；只有完全解不出来时才升级成错误)
	KindEncodingUncertain ErrorKind = "encoding-uncertain"
	// KindPartialContent 只提取出部分内容，其余部分解析失败
	KindPartialContent ErrorKind = "partial-content"
)

// ExtractionError 提取失败
// 统一的错误载体：哪个提取器、哪个文件、哪一步、什么种类
type ExtractionError struct {
	Extractor string    // 提取器名称
	Path      string    // 文件路径
	Kind      ErrorKind // 失败种类
	Stage     string    // 出错的处理阶段
	Err       error     // 底层错误
}

// Error 实现 error 接口
func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s (%s) - %v", e.Extractor, e.Path, e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s (%s)", e.Extractor, e.Path, e.Stage, e.Kind)
}

// Unwrap 返回原始错误
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError 创建提取错误
func NewExtractionError(extractor, path string, kind ErrorKind, stage string, err error) *ExtractionError {
	return &ExtractionError{
		Extractor: extractor,
		Path:      path,
		Kind:      kind,
		Stage:     stage,
		Err:       err,
	}
}

// ErrorKindOf 取出任意错误里的提取失败种类，没有则返回空串
func ErrorKindOf(err error) ErrorKind {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

// ============================================================
// 取消错误定义
// ============================================================

// CancellationError 任务被取消
// 与普通失败严格区分：取消不是错误状态机里的 Failed，而是 Cancelled
type CancellationError struct {
	Path string // 被取消时正在处理的文件，可以为空
	Err  error  // 底层的 context 错误
}

// Error 实现 error 接口
func (e *CancellationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("提取已取消: %s", e.Path)
	}
	return "任务已取消"
}

// Unwrap 返回原始错误
func (e *CancellationError) Unwrap() error {
	return e.Err
}

// IsCancellation 判断任意错误是否是取消
func IsCancellation(err error) bool {
	var ce *CancellationError
	return errors.As(err, &ce)
}

// newCancellation 把 context 错误包装成取消错误
func newCancellation(path string, err error) *CancellationError {
	return &CancellationError{Path: path, Err: err}
}
