package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// DonorStatus 捐赠人状态
type DonorStatus string

const (
	DonorStatusActive   DonorStatus = "active"
	DonorStatusInactive DonorStatus = "inactive"
)

// Donor 捐赠人账户与偏好
// AvailableBalance 为数据库侧余额镜像，执行路径以 Redis 余额为准
type Donor struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DonorID          string          `gorm:"column:donor_id;type:varchar(64);uniqueIndex;not null" json:"donor_id"`
	DisplayName      string          `gorm:"column:display_name;type:varchar(128)" json:"display_name"`
	Status           DonorStatus     `gorm:"column:status;type:varchar(20);index;not null;default:'active'" json:"status"`
	AvailableBalance decimal.Decimal `gorm:"column:available_balance;type:decimal(36,18);not null;default:0" json:"available_balance"`
	Preferences      string          `gorm:"column:preferences;type:jsonb" json:"preferences"` // DonorPreferences JSON
	CreatedAt        int64           `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
	UpdatedAt        int64           `gorm:"column:updated_at;type:bigint;not null;autoUpdateTime:milli" json:"updated_at"`
}

// TableName 返回表名
func (Donor) TableName() string {
	return "donors"
}

// IsActive 检查捐赠人是否可参与分配
func (d *Donor) IsActive() bool {
	return d.Status == DonorStatusActive
}

// DonorPreferences 捐赠偏好
// 空列表/零值表示未声明该维度偏好
type DonorPreferences struct {
	Categories []string        `json:"categories,omitempty"`
	Locations  []string        `json:"locations,omitempty"`
	MinAmount  decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount  decimal.Decimal `json:"max_amount,omitempty"`
}

// HasCategoryPreference 是否声明了类目偏好
func (p *DonorPreferences) HasCategoryPreference() bool {
	return len(p.Categories) > 0
}

// HasLocationPreference 是否声明了地区偏好
func (p *DonorPreferences) HasLocationPreference() bool {
	return len(p.Locations) > 0
}

// HasAmountPreference 是否声明了金额区间偏好
func (p *DonorPreferences) HasAmountPreference() bool {
	return p.MinAmount.IsPositive() || p.MaxAmount.IsPositive()
}

// GetPreferences 解析偏好 JSON，空串返回零值偏好
func (d *Donor) GetPreferences() (*DonorPreferences, error) {
	prefs := &DonorPreferences{}
	if d.Preferences == "" {
		return prefs, nil
	}
	if err := json.Unmarshal([]byte(d.Preferences), prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// SetPreferences 序列化偏好写回 JSON 列
func (d *Donor) SetPreferences(prefs *DonorPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	d.Preferences = string(data)
	return nil
}
