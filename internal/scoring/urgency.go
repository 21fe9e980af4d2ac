package scoring

import (
	"github.com/almoner-platform/almoner-allocation/internal/model"
)

const dayMillis = int64(24 * 60 * 60 * 1000)

// 优先级基础分
var priorityBaseScores = map[model.PriorityLevel]float64{
	model.PriorityLow:       20,
	model.PriorityMedium:    40,
	model.PriorityHigh:      60,
	model.PriorityUrgent:    80,
	model.PriorityEmergency: 100,
}

// 项目类型紧迫系数，取值 1.0–1.2
var projectTypeMultipliers = map[string]float64{
	model.ProjectTypeEmergencyRelief: 1.2,
	model.ProjectTypeMedical:         1.15,
	model.ProjectTypeInfrastructure:  1.05,
}

// UrgencyScore 紧迫度因子
// 优先级基础分 + 截止日加成，乘以项目类型系数后收敛到 [0,100]
// 已过期的截止日按最近档加成处理
func UrgencyScore(req *model.AllocationRequest, nowMillis int64) float64 {
	base, ok := priorityBaseScores[req.PriorityLevel]
	if !ok {
		base = priorityBaseScores[model.PriorityLow]
	}

	if req.HasDeadline() {
		daysUntil := (req.Deadline - nowMillis) / dayMillis
		switch {
		case daysUntil <= 7:
			base += 20
		case daysUntil <= 30:
			base += 10
		case daysUntil <= 90:
			base += 5
		}
	}

	multiplier := 1.0
	if m, ok := projectTypeMultipliers[req.ProjectType]; ok {
		multiplier = m
	}

	return clamp(base * multiplier)
}
