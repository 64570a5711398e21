package queue

import (
	"encoding/json"

	"github.com/deptrack/deptrack/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskReattributeConversion 未归因转化重试任务
	TaskReattributeConversion = constants.TaskReattributeConversion
)

// ReattributePayload 重归因任务载荷；Key 为未归因转化的存储键
type ReattributePayload struct {
	Key string `json:"key"`
}

// NewReattributeTask 构造重归因任务
func NewReattributeTask(payload ReattributePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReattributeConversion, data), nil
}
