package detector

import (
	"errors"
	"fmt"
)

// Reason 不支持格式的细分原因
type Reason string

const (
	// ReasonUnreadable 文件打不开或读不了 (权限、不存在、IO 故障)
	ReasonUnreadable Reason = "unreadable"
	// ReasonUnknownSignature 文件能读，但内容不属于任何受支持的格式
	ReasonUnknownSignature Reason = "unknown-signature"
)

// UnsupportedFormatError 格式探测失败
// 两种情况都会返回该错误：文件读不了，或者读出来的签名不认识
type UnsupportedFormatError struct {
	Path   string // 出错的文件路径
	Reason Reason // 细分原因
	Err    error  // 底层错误 (仅 unreadable 时非空)
}

// Error 实现 error 接口
func (e *UnsupportedFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("检测失败 [%s] 文件 %s: %v", e.Reason, e.Path, e.Err)
	}
	return fmt.Sprintf("检测失败 [%s] 文件 %s", e.Reason, e.Path)
}

// Unwrap 支持 errors.Is / errors.As 链式判断
func (e *UnsupportedFormatError) Unwrap() error {
	return e.Err
}

// IsUnsupportedFormat 判断任意错误是否是格式不支持错误
func IsUnsupportedFormat(err error) bool {
	var ufe *UnsupportedFormatError
	return errors.As(err, &ufe)
}

// newUnreadable 构造 unreadable 错误
func newUnreadable(path string, err error) *UnsupportedFormatError {
	return &UnsupportedFormatError{Path: path, Reason: ReasonUnreadable, Err: err}
}

// newUnknownSignature 构造 unknown-signature 错误
func newUnknownSignature(path string) *UnsupportedFormatError {
	return &UnsupportedFormatError{Path: path, Reason: ReasonUnknownSignature}
}
