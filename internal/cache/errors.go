package cache

import (
	"errors"
	"fmt"
)

// CacheInconsistencyError 缓存内部不变量被破坏
// 只影响当前这一次操作和涉事条目，其它条目不受污染
type CacheInconsistencyError struct {
	Path   string // 涉事条目的键路径
	Detail string // 具体哪条不变量被破坏
}

// Error 实现 error 接口
func (e *CacheInconsistencyError) Error() string {
	return fmt.Sprintf("缓存不一致 [%s]: %s", e.Path, e.Detail)
}

// IsInconsistency 判断任意错误是否是缓存不一致
func IsInconsistency(err error) bool {
	var ce *CacheInconsistencyError
	return errors.As(err, &ce)
}
