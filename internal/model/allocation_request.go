package model

import (
	"github.com/shopspring/decimal"
)

// PriorityLevel 请求优先级
type PriorityLevel string

const (
	PriorityLow       PriorityLevel = "low"
	PriorityMedium    PriorityLevel = "medium"
	PriorityHigh      PriorityLevel = "high"
	PriorityUrgent    PriorityLevel = "urgent"
	PriorityEmergency PriorityLevel = "emergency"
)

// IsValid 检查优先级取值
func (p PriorityLevel) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent, PriorityEmergency:
		return true
	default:
		return false
	}
}

// 公益类目
const (
	CategoryHealthcare    = "healthcare"
	CategoryEducation     = "education"
	CategoryEnvironment   = "environment"
	CategoryHumanitarian  = "humanitarian"
	CategoryAnimalWelfare = "animal_welfare"
	CategoryCommunity     = "community"
)

// 项目类型
const (
	ProjectTypeStandard        = "standard"
	ProjectTypeEmergencyRelief = "emergency_relief"
	ProjectTypeMedical         = "medical"
	ProjectTypeInfrastructure  = "infrastructure"
	ProjectTypeResearch        = "research"
)

// RequestStatus 分配请求状态机
// submitted → scored → (approved | rejected | deferred) → executing →
// (completed | partially_completed | failed)
// rejected / completed / partially_completed / failed 为终态，
// deferred 可在后续周期重新评分
type RequestStatus string

const (
	RequestStatusSubmitted          RequestStatus = "submitted"
	RequestStatusScored             RequestStatus = "scored"
	RequestStatusApproved           RequestStatus = "approved"
	RequestStatusRejected           RequestStatus = "rejected"
	RequestStatusDeferred           RequestStatus = "deferred"
	RequestStatusExecuting          RequestStatus = "executing"
	RequestStatusCompleted          RequestStatus = "completed"
	RequestStatusPartiallyCompleted RequestStatus = "partially_completed"
	RequestStatusFailed             RequestStatus = "failed"
)

// IsValid 检查状态取值
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusSubmitted, RequestStatusScored, RequestStatusApproved,
		RequestStatusRejected, RequestStatusDeferred, RequestStatusExecuting,
		RequestStatusCompleted, RequestStatusPartiallyCompleted, RequestStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal 检查是否终态
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusRejected, RequestStatusCompleted, RequestStatusPartiallyCompleted, RequestStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo 校验状态迁移是否合法
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	switch s {
	case RequestStatusSubmitted:
		return next == RequestStatusScored
	case RequestStatusScored:
		return next == RequestStatusApproved || next == RequestStatusRejected || next == RequestStatusDeferred
	case RequestStatusDeferred:
		// 延期请求可在下个周期重新评分
		return next == RequestStatusScored
	case RequestStatusApproved:
		return next == RequestStatusExecuting
	case RequestStatusExecuting:
		return next == RequestStatusCompleted || next == RequestStatusPartiallyCompleted || next == RequestStatusFailed
	default:
		return false
	}
}

// AllocationRequest 机构资金申请
// 由外部 ONLUS 模块创建，核心只读申请内容，仅推进 Status
type AllocationRequest struct {
	ID                    int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID             string          `gorm:"column:request_id;type:varchar(64);uniqueIndex;not null" json:"request_id"`
	OrgID                 string          `gorm:"column:org_id;type:varchar(64);index;not null" json:"org_id"`
	RequestedAmount       decimal.Decimal `gorm:"column:requested_amount;type:decimal(36,18);not null" json:"requested_amount"`
	Category              string          `gorm:"column:category;type:varchar(64);index;not null" json:"category"`
	ProjectType           string          `gorm:"column:project_type;type:varchar(64)" json:"project_type"`
	PriorityLevel         PriorityLevel   `gorm:"column:priority_level;type:varchar(20);index;not null" json:"priority_level"`
	Deadline              int64           `gorm:"column:deadline;type:bigint" json:"deadline"` // 毫秒时间戳，0 表示无截止
	ExpectedBeneficiaries int             `gorm:"column:expected_beneficiaries;type:int;not null" json:"expected_beneficiaries"`
	DurationMonths        int             `gorm:"column:duration_months;type:int;not null" json:"duration_months"`
	Location              string          `gorm:"column:location;type:varchar(128)" json:"location"`
	Status                RequestStatus   `gorm:"column:status;type:varchar(30);index;not null;default:'submitted'" json:"status"`
	SubmittedAt           int64           `gorm:"column:submitted_at;type:bigint;not null;index" json:"submitted_at"`
	CreatedAt             int64           `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt             int64           `gorm:"column:updated_at;type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (AllocationRequest) TableName() string {
	return "allocation_requests"
}

// HasDeadline 是否有截止时间
func (r *AllocationRequest) HasDeadline() bool {
	return r.Deadline > 0
}

// IsUrgentPriority 是否具备紧急通道的优先级
func (r *AllocationRequest) IsUrgentPriority() bool {
	return r.PriorityLevel == PriorityUrgent || r.PriorityLevel == PriorityEmergency
}

// StructurallyValid 校验必填字段 (结构性校验，区别于业务规则)
func (r *AllocationRequest) StructurallyValid() bool {
	return r.OrgID != "" &&
		r.RequestedAmount.IsPositive() &&
		r.Category != "" &&
		r.PriorityLevel.IsValid() &&
		r.ExpectedBeneficiaries >= 1 &&
		r.DurationMonths >= 1
}
