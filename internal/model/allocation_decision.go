package model

import (
	"github.com/shopspring/decimal"
)

// DecisionOutcome 决策结论
type DecisionOutcome string

const (
	DecisionApproved DecisionOutcome = "approved"
	DecisionRejected DecisionOutcome = "rejected"
	DecisionDeferred DecisionOutcome = "deferred"
)

// ProcessingMode 处理模式
type ProcessingMode string

const (
	ModeStandard  ProcessingMode = "standard"  // 周期批量，门槛 70
	ModeEmergency ProcessingMode = "emergency" // 紧急即时，门槛 50 + 优先级与截止窗口约束
)

// IsValid 检查处理模式取值
func (m ProcessingMode) IsValid() bool {
	return m == ModeStandard || m == ModeEmergency
}

// AllocationDecision 分配决策记录
type AllocationDecision struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DecisionID      string          `gorm:"column:decision_id;type:varchar(64);uniqueIndex;not null" json:"decision_id"`
	RequestID       string          `gorm:"column:request_id;type:varchar(64);index;not null" json:"request_id"`
	OrgID           string          `gorm:"column:org_id;type:varchar(64);index;not null" json:"org_id"`
	CompositeScore  decimal.Decimal `gorm:"column:composite_score;type:decimal(10,2);not null" json:"composite_score"`
	FactorBreakdown string          `gorm:"column:factor_breakdown;type:jsonb;not null" json:"factor_breakdown"` // 有序 FactorScore 列表 JSON
	Decision        DecisionOutcome `gorm:"column:decision;type:varchar(20);index;not null" json:"decision"`
	Mode            ProcessingMode  `gorm:"column:mode;type:varchar(20);not null" json:"mode"`
	Threshold       decimal.Decimal `gorm:"column:threshold;type:decimal(10,2);not null" json:"threshold"` // 决策时采用的分数线
	Rank            int             `gorm:"column:rank;type:int;not null;default:0" json:"rank"`           // 批次内名次，单笔为 0
	Reviewer        string          `gorm:"column:reviewer;type:varchar(64);not null" json:"reviewer"`     // system 或人工审核人
	ReasonCode      string          `gorm:"column:reason_code;type:varchar(64)" json:"reason_code"`        // 拒绝/延期原因码
	DecidedAt       int64           `gorm:"column:decided_at;type:bigint;not null" json:"decided_at"`
	CreatedAt       int64           `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
}

// TableName 返回表名
func (AllocationDecision) TableName() string {
	return "allocation_decisions"
}

// IsApproved 检查是否批准
func (d *AllocationDecision) IsApproved() bool {
	return d.Decision == DecisionApproved
}

// IsDeferred 检查是否延期
func (d *AllocationDecision) IsDeferred() bool {
	return d.Decision == DecisionDeferred
}
