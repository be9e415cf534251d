package models

import (
	"errors"
)

// 核心错误类型：同步返回给调用方的错误用哨兵值区分，
// 便于上层用 errors.Is 判断；尽力而为的副作用失败（通知、落库）只记日志不返回
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)
