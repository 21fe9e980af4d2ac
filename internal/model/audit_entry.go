package model

// AuditActionType 审计动作类型
type AuditActionType string

const (
	AuditActionRequestScored      AuditActionType = "REQUEST_SCORED"      // 请求完成评分
	AuditActionDecisionMade       AuditActionType = "DECISION_MADE"       // 决策落库
	AuditActionExecutionStarted   AuditActionType = "EXECUTION_STARTED"   // 执行开始
	AuditActionDonationExecuted   AuditActionType = "DONATION_EXECUTED"   // 单笔划拨成功
	AuditActionDonationFailed     AuditActionType = "DONATION_FAILED"     // 单笔划拨失败
	AuditActionExecutionFinished  AuditActionType = "EXECUTION_FINISHED"  // 执行终态
	AuditActionComplianceAssessed AuditActionType = "COMPLIANCE_ASSESSED" // 合规评估完成
	AuditActionAlertRaised        AuditActionType = "ALERT_RAISED"        // 合规告警产生
	AuditActionBatchCompleted     AuditActionType = "BATCH_COMPLETED"     // 批量分配周期结束
)

// 审计实体类型
const (
	AuditEntityRequest    = "allocation_request"
	AuditEntityDecision   = "allocation_decision"
	AuditEntityResult     = "allocation_result"
	AuditEntityOrg        = "organization"
	AuditEntityAssessment = "compliance_assessment"
	AuditEntityAlert      = "compliance_alert"
	AuditEntityBatch      = "allocation_batch"
)

// AuditEntry 哈希链审计账本条目，只追加不修改
// IntegrityHash 为除两个哈希字段外全部字段规范序列化后的 SHA-256，
// PreviousEntryHash 指向前一条的 IntegrityHash，首条为空串
type AuditEntry struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryID           string          `gorm:"column:entry_id;type:varchar(64);uniqueIndex;not null" json:"entry_id"`
	SequenceNumber    int64           `gorm:"column:sequence_number;type:bigint;uniqueIndex;not null" json:"sequence_number"`
	ActionType        AuditActionType `gorm:"column:action_type;type:varchar(50);index;not null" json:"action_type"`
	EntityType        string          `gorm:"column:entity_type;type:varchar(50);index;not null" json:"entity_type"`
	EntityID          string          `gorm:"column:entity_id;type:varchar(64);index;not null" json:"entity_id"`
	ActorID           string          `gorm:"column:actor_id;type:varchar(64);not null" json:"actor_id"`
	ActionData        string          `gorm:"column:action_data;type:jsonb;not null" json:"action_data"` // 动作负载 JSON
	Timestamp         int64           `gorm:"column:timestamp;type:bigint;not null" json:"timestamp"`    // 毫秒
	IntegrityHash     string          `gorm:"column:integrity_hash;type:varchar(64);not null" json:"integrity_hash"`
	PreviousEntryHash string          `gorm:"column:previous_entry_hash;type:varchar(64);not null;default:''" json:"previous_entry_hash"`
	CreatedAt         int64           `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
}

// TableName 返回表名
func (AuditEntry) TableName() string {
	return "almoner_allocation_audit_entries"
}

// IsGenesis 检查是否链首条目
func (e *AuditEntry) IsGenesis() bool {
	return e.SequenceNumber == 1
}
