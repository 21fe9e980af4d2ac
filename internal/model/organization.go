package model

import (
	"github.com/shopspring/decimal"
)

// OrganizationStatus 机构状态
type OrganizationStatus string

const (
	OrganizationStatusActive    OrganizationStatus = "active"    // 正常
	OrganizationStatusInactive  OrganizationStatus = "inactive"  // 停用
	OrganizationStatusSuspended OrganizationStatus = "suspended" // 已暂停
)

// OrgComplianceStatus 机构合规状态 (由合规监控维护)
type OrgComplianceStatus string

const (
	OrgComplianceStatusCompliant   OrgComplianceStatus = "compliant"    // 合规
	OrgComplianceStatusUnderReview OrgComplianceStatus = "under_review" // 审查中
	OrgComplianceStatusSuspended   OrgComplianceStatus = "suspended"    // 合规暂停
)

// Organization 受助机构 (ONLUS) 登记信息与财务快照
type Organization struct {
	ID               int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	OrgID            string              `gorm:"column:org_id;type:varchar(64);uniqueIndex;not null" json:"org_id"`
	Name             string              `gorm:"column:name;type:varchar(256);not null" json:"name"`
	Category         string              `gorm:"column:category;type:varchar(64);index" json:"category"`              // 主营公益类目
	Location         string              `gorm:"column:location;type:varchar(128)" json:"location"`                   // 所在地区
	Status           OrganizationStatus  `gorm:"column:status;type:varchar(20);index;not null;default:'active'" json:"status"`
	ComplianceStatus OrgComplianceStatus `gorm:"column:compliance_status;type:varchar(20);index;not null;default:'compliant'" json:"compliance_status"`
	BankVerified     bool                `gorm:"column:bank_verified;not null;default:false" json:"bank_verified"`    // 收款渠道已验证
	AvailableFunds   decimal.Decimal     `gorm:"column:available_funds;type:decimal(36,18);not null;default:0" json:"available_funds"`
	MonthlyExpenses  decimal.Decimal     `gorm:"column:monthly_expenses;type:decimal(36,18);not null;default:0" json:"monthly_expenses"`
	PendingIncome    decimal.Decimal     `gorm:"column:pending_income;type:decimal(36,18);not null;default:0" json:"pending_income"`
	CreatedAt        int64               `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt        int64               `gorm:"column:updated_at;type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (Organization) TableName() string {
	return "organizations"
}

// IsActive 检查机构是否正常
func (o *Organization) IsActive() bool {
	return o.Status == OrganizationStatusActive
}

// IsComplianceSuspended 检查合规状态是否被暂停
func (o *Organization) IsComplianceSuspended() bool {
	return o.ComplianceStatus == OrgComplianceStatusSuspended
}

// FinancialSnapshot 资金快照 (评分输入，只读)
type FinancialSnapshot struct {
	AvailableFunds  decimal.Decimal `json:"available_funds"`
	MonthlyExpenses decimal.Decimal `json:"monthly_expenses"`
	PendingIncome   decimal.Decimal `json:"pending_income"`
}

// Snapshot 提取资金快照
func (o *Organization) Snapshot() *FinancialSnapshot {
	return &FinancialSnapshot{
		AvailableFunds:  o.AvailableFunds,
		MonthlyExpenses: o.MonthlyExpenses,
		PendingIncome:   o.PendingIncome,
	}
}
