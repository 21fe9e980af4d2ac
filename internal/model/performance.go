package model

import "github.com/shopspring/decimal"

// PerformanceSnapshot 机构近 12 个月绩效快照 (评分输入，只读)
// CompletionRate 取值 [0,1]，AvgDonorRating 取值 [0,5]，
// TransparencyRating 取值 [0,100]，ImpactPerEuro 为每欧元影响力单位
type PerformanceSnapshot struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrgID              string          `gorm:"column:org_id;type:varchar(64);index;not null" json:"org_id"`
	WindowMonths       int             `gorm:"column:window_months;type:int;not null;default:12" json:"window_months"`
	CompletionRate     decimal.Decimal `gorm:"column:completion_rate;type:decimal(10,4);not null;default:0" json:"completion_rate"`
	ImpactPerEuro      decimal.Decimal `gorm:"column:impact_per_euro;type:decimal(10,4);not null;default:0" json:"impact_per_euro"`
	AvgDonorRating     decimal.Decimal `gorm:"column:avg_donor_rating;type:decimal(10,4);not null;default:0" json:"avg_donor_rating"`
	TransparencyRating decimal.Decimal `gorm:"column:transparency_rating;type:decimal(10,4);not null;default:0" json:"transparency_rating"`
	RecordedAt         int64           `gorm:"column:recorded_at;type:bigint;not null;index" json:"recorded_at"`
	CreatedAt          int64           `gorm:"column:created_at;type:bigint;not null;autoCreateTime:milli" json:"created_at"`
}

// TableName 返回表名
func (PerformanceSnapshot) TableName() string {
	return "performance_snapshots"
}
