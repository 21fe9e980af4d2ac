package compliance

// Monitor 合规巡检器，对单个机构运行全部检查项
type Monitor struct {
	checks []AlertCheck
}

// NewMonitor 创建巡检器，检查项固定顺序
func NewMonitor() *Monitor {
	return &Monitor{
		checks: []AlertCheck{
			&ReviewDueCheck{},
			&ThresholdBreachCheck{},
			&FinancialAnomalyCheck{},
			&SuspiciousPatternCheck{},
		},
	}
}

// InspectOrganization 运行全部检查并汇总预警草稿
// 各检查独立，不因某项触发而跳过其余
func (m *Monitor) InspectOrganization(input *SweepInput) []*AlertDraft {
	if input == nil || input.Org == nil {
		return nil
	}

	drafts := make([]*AlertDraft, 0)
	for _, check := range m.checks {
		drafts = append(drafts, check.Inspect(input)...)
	}
	return drafts
}

// CheckNames 返回检查项名称 (按执行顺序)
func (m *Monitor) CheckNames() []string {
	names := make([]string, 0, len(m.checks))
	for _, check := range m.checks {
		names = append(names, check.Name())
	}
	return names
}

// MonitoringReport 一次巡检的汇总结果
type MonitoringReport struct {
	SweptOrganizations int            `json:"swept_organizations"`
	AlertsRaised       int            `json:"alerts_raised"`
	AlertsByType       map[string]int `json:"alerts_by_type"`
	Truncated          bool           `json:"truncated"` // 达到单次预警上限提前停止
	StartedAt          int64          `json:"started_at"`
	FinishedAt         int64          `json:"finished_at"`
}
