package model

import (
	"github.com/shopspring/decimal"
)

// ExecutionStatus 执行状态
type ExecutionStatus string

const (
	ExecutionStatusPending            ExecutionStatus = "pending"
	ExecutionStatusInProgress         ExecutionStatus = "in_progress"
	ExecutionStatusCompleted          ExecutionStatus = "completed"           // 全部捐赠人划拨成功
	ExecutionStatusPartiallyCompleted ExecutionStatus = "partially_completed" // 部分成功，终态
	ExecutionStatusFailed             ExecutionStatus = "failed"              // 零成功，终态
)

// IsTerminal 检查是否终态，终态后不再变更
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusPartiallyCompleted, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// AllocationResult 执行结果，与决策一一对应
type AllocationResult struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ResultID        string          `gorm:"column:result_id;type:varchar(64);uniqueIndex;not null" json:"result_id"`
	DecisionID      string          `gorm:"column:decision_id;type:varchar(64);uniqueIndex;not null" json:"decision_id"`
	RequestID       string          `gorm:"column:request_id;type:varchar(64);index;not null" json:"request_id"`
	OrgID           string          `gorm:"column:org_id;type:varchar(64);index;not null" json:"org_id"`
	AllocatedAmount decimal.Decimal `gorm:"column:allocated_amount;type:decimal(36,18);not null;default:0" json:"allocated_amount"` // 实际划拨总额
	ExecutionStatus ExecutionStatus `gorm:"column:execution_status;type:varchar(30);index;not null;default:'pending'" json:"execution_status"`
	FailureReason   string          `gorm:"column:failure_reason;type:varchar(64)" json:"failure_reason"` // 失败/部分失败原因码
	StartedAt       int64           `gorm:"column:started_at;type:bigint" json:"started_at"`
	ExecutedAt      int64           `gorm:"column:executed_at;type:bigint" json:"executed_at"` // 终态时间
	CreatedAt       int64           `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt       int64           `gorm:"column:updated_at;type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (AllocationResult) TableName() string {
	return "allocation_results"
}

// IsTerminal 检查结果是否终态
func (r *AllocationResult) IsTerminal() bool {
	return r.ExecutionStatus.IsTerminal()
}

// TransactionStatus 单笔捐赠划拨状态
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// DonationTransaction 单个捐赠人的划拨明细，按 PlanOrder 构成 donor_breakdown
type DonationTransaction struct {
	ID            int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	ResultID      string            `gorm:"column:result_id;type:varchar(64);index;not null" json:"result_id"`
	DonorID       string            `gorm:"column:donor_id;type:varchar(64);index;not null" json:"donor_id"`
	OrgID         string            `gorm:"column:org_id;type:varchar(64);index;not null" json:"org_id"`
	Amount        decimal.Decimal   `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"`
	Status        TransactionStatus `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	TransactionID string            `gorm:"column:transaction_id;type:varchar(64)" json:"transaction_id"` // 划拨凭证号
	FailureCode   string            `gorm:"column:failure_code;type:varchar(64)" json:"failure_code"`
	PlanOrder     int               `gorm:"column:plan_order;type:int;not null" json:"plan_order"` // 计划内顺序，从 0 起
	CreatedAt     int64             `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt     int64             `gorm:"column:updated_at;type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (DonationTransaction) TableName() string {
	return "donation_transactions"
}

// IsSucceeded 检查划拨是否成功
func (t *DonationTransaction) IsSucceeded() bool {
	return t.Status == TransactionStatusSucceeded
}
