package constants

// 事件类型常量
const (
	EventTypeTrack      = "track"
	EventTypeConversion = "conversion"
)

// 归因方式常量
const (
	AttributionMethodDirect      = "direct"
	AttributionMethodFingerprint = "fingerprint"
)

// 转化记录状态常量
const (
	ConversionStatusPending   = "pending"
	ConversionStatusConfirmed = "confirmed"
	ConversionStatusRejected  = "rejected"
)

// 归因结果常量（对外在响应 body 中透出）
const (
	AttributionOutcomeAttributed    = "attributed"
	AttributionOutcomeDuplicate     = "duplicate"
	AttributionOutcomeClickNotFound = "click_not_found"
	AttributionOutcomeOutsideWindow = "outside_window"
	AttributionOutcomeUnattributed  = "unattributed"
	AttributionOutcomeError         = "error"
)

// 队列名称常量
const (
	QueueDefault = "default"
)

// 队列任务类型常量
const (
	TaskReattributeConversion = "attribution:reattribute"
)
