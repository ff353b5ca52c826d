package repository

import "errors"

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// ErrDuplicateAlarm 同一安防事件已存在报警
// 报警创建与事件入库在同一处理流程内同步完成，出现该错误说明管道存在缺陷，
// 必须显式上报而不是静默忽略
var ErrDuplicateAlarm = errors.New("alarm already exists for event")
