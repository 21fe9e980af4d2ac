package scoring

import (
	"time"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// seasonalBonuses 类目×月份加成表，档位 10–25
// 教育开学季、医疗流感季、环境春夏项目季、人道与社区冬季、
// 动物保护暑期弃养季
var seasonalBonuses = map[string]map[time.Month]float64{
	model.CategoryEducation: {
		time.January:   10,
		time.August:    20,
		time.September: 25,
	},
	model.CategoryHealthcare: {
		time.January:  15,
		time.February: 10,
		time.November: 10,
		time.December: 10,
	},
	model.CategoryEnvironment: {
		time.March: 10,
		time.April: 20,
		time.May:   10,
		time.June:  10,
	},
	model.CategoryHumanitarian: {
		time.November: 10,
		time.December: 10,
	},
	model.CategoryAnimalWelfare: {
		time.June:   10,
		time.July:   15,
		time.August: 10,
	},
	model.CategoryCommunity: {
		time.November: 15,
		time.December: 10,
	},
}

// 年末捐赠季加成，所有类目适用
const decemberBonus = 15.0

// SeasonalityScore 季节性因子
// 基准 50 + 类目月份加成 + 十二月年末加成；
// 命中活跃应急事件时整体乘以其紧迫系数，最后收敛到 [0,100]
func SeasonalityScore(req *model.AllocationRequest, nowMillis int64, emergency *EmergencyContext) float64 {
	month := time.UnixMilli(nowMillis).UTC().Month()

	score := neutralScore
	if bonuses, ok := seasonalBonuses[req.Category]; ok {
		score += bonuses[month]
	}
	if month == time.December {
		score += decemberBonus
	}

	if emergency != nil && emergency.Active && emergency.Multiplier > 1 {
		if len(emergency.Categories) == 0 || containsString(emergency.Categories, req.Category) {
			score *= emergency.Multiplier
		}
	}

	return clamp(score)
}
