package domain

import "time"

// Caller 调用方上下文（显式传递，替代全局安全上下文）
type Caller struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	OrgID    string `json:"org_id,omitempty"`
}

// SystemCaller 内部任务使用的调用方
var SystemCaller = Caller{UserID: "system", UserName: "system"}

// DimensionScores 分维度得分，均在 [0,100]
type DimensionScores struct {
	Geographic  float64 `json:"geographic"`
	Capacity    float64 `json:"capacity"`
	Experience  float64 `json:"experience"`
	Performance float64 `json:"performance"`
}

// AssignmentCandidate 单次打分产生的候选机构
type AssignmentCandidate struct {
	OrgID      string          `json:"org_id"`
	OrgName    string          `json:"org_name"`
	Score      float64         `json:"score"`
	Dimensions DimensionScores `json:"dimensions"`
	Rank       int             `json:"rank"`
	Reason     string          `json:"reason"`
	Strengths  []string        `json:"strengths"`
	Weaknesses []string        `json:"weaknesses"`
}

// AssignmentResult 单个案件包的分配结果
type AssignmentResult struct {
	PackageID string     `json:"package_id"`
	Success   bool       `json:"success"`
	OrgID     string     `json:"org_id,omitempty"`
	OrgName   string     `json:"org_name,omitempty"`
	Score     float64    `json:"score,omitempty"`
	Strategy  string     `json:"strategy,omitempty"`
	ErrorCode ErrorKind  `json:"error_code,omitempty"`
	Message   string     `json:"message"`
	At        *time.Time `json:"assigned_at,omitempty"`
}

// BatchAssignmentResult 批量分配结果
type BatchAssignmentResult struct {
	Total        int                `json:"total"`
	SuccessCount int                `json:"success_count"`
	FailedCount  int                `json:"failed_count"`
	Results      []AssignmentResult `json:"results"`
	Summary      string             `json:"summary"`
}

// FlowEventType 案件流转事件类型
type FlowEventType string

const (
	FlowEventStatusChanged FlowEventType = "PACKAGE_STATUS_CHANGED"
	FlowEventAutoAssigned  FlowEventType = "PACKAGE_AUTO_ASSIGNED"
	FlowEventBatchAssigned FlowEventType = "PACKAGE_BATCH_ASSIGNED"
)

// CaseFlowEvent 案件流转事件（写给外部日志/通知，核心不回读）
type CaseFlowEvent struct {
	EventID      string            `json:"event_id"`
	PackageID    string            `json:"package_id"`
	EventType    FlowEventType     `json:"event_type"`
	FromStatus   PackageStatus     `json:"from_status,omitempty"`
	ToStatus     PackageStatus     `json:"to_status,omitempty"`
	Description  string            `json:"description"`
	OperatorID   string            `json:"operator_id"`
	OperatorName string            `json:"operator_name,omitempty"`
	Amount       *float64          `json:"amount,omitempty"`
	Notify       bool              `json:"notify,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}
