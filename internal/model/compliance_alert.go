package model

// AlertType 合规告警类型
type AlertType string

const (
	AlertTypeReviewDue         AlertType = "review_due"         // 复审到期
	AlertTypeThresholdBreach   AlertType = "threshold_breach"   // 类目分数跌破阈值
	AlertTypeFinancialAnomaly  AlertType = "financial_anomaly"  // 财务异常
	AlertTypeSuspiciousPattern AlertType = "suspicious_pattern" // 可疑申请模式
)

// AlertStatus 告警处理状态
type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// ComplianceAlert 合规告警，进入人工审查队列
type ComplianceAlert struct {
	ID             int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	AlertID        string      `gorm:"column:alert_id;type:varchar(64);uniqueIndex;not null" json:"alert_id"`
	OrgID          string      `gorm:"column:org_id;type:varchar(64);index;not null" json:"org_id"`
	Type           AlertType   `gorm:"column:type;type:varchar(30);index;not null" json:"type"`
	RiskLevel      RiskLevel   `gorm:"column:risk_level;type:varchar(20);index;not null" json:"risk_level"`
	Message        string      `gorm:"column:message;type:varchar(512);not null" json:"message"`
	Details        string      `gorm:"column:details;type:jsonb" json:"details"` // 触发上下文 JSON
	Status         AlertStatus `gorm:"column:status;type:varchar(20);index;not null;default:'open'" json:"status"`
	AcknowledgedBy string      `gorm:"column:acknowledged_by;type:varchar(64)" json:"acknowledged_by"`
	AcknowledgedAt int64       `gorm:"column:acknowledged_at;type:bigint" json:"acknowledged_at"`
	ResolvedBy     string      `gorm:"column:resolved_by;type:varchar(64)" json:"resolved_by"`
	ResolvedAt     int64       `gorm:"column:resolved_at;type:bigint" json:"resolved_at"`
	CreatedAt      int64       `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli;index" json:"created_at"`
}

// TableName 返回表名
func (ComplianceAlert) TableName() string {
	return "compliance_alerts"
}

// IsOpen 检查告警是否待处理
func (a *ComplianceAlert) IsOpen() bool {
	return a.Status == AlertStatusOpen
}

// IsResolved 检查告警是否已关闭
func (a *ComplianceAlert) IsResolved() bool {
	return a.Status == AlertStatusResolved
}
