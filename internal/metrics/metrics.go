// Package metrics 提供分配引擎服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "almoner_allocation"

// 评分指标
var (
	// ScoresComputedTotal 综合评分计算总数
	ScoresComputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_computed_total",
			Help:      "综合评分计算总数",
		},
		[]string{"category"},
	)

	// ScoringDuration 单请求评分耗时
	ScoringDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "单请求评分耗时(秒)",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	// CompositeScoreHistogram 综合评分分布
	CompositeScoreHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "composite_score_distribution",
			Help:      "综合评分分布",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// FactorScoreHistogram 单因子评分分布
	FactorScoreHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "factor_score_distribution",
			Help:      "单因子评分分布",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"factor"},
	)
)

// 门控指标
var (
	// EligibilityChecksTotal 准入门控评估总数
	EligibilityChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eligibility_checks_total",
			Help:      "准入门控评估总数",
		},
		[]string{"result", "check"}, // result: eligible/rejected, check: 失败检查名或 none
	)
)

// 决策指标
var (
	// DecisionsTotal 分配决策总数
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "分配决策总数",
		},
		[]string{"decision", "mode"}, // decision: approved/rejected/deferred, mode: standard/emergency
	)

	// BatchRunsTotal 批量分配执行总数
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "批量分配执行总数",
		},
		[]string{"result"}, // completed/failed
	)

	// BatchDuration 批量分配耗时
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "批量分配单轮耗时(秒)",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// BatchRequestsHistogram 单轮批量处理请求数分布
	BatchRequestsHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_requests_per_run",
			Help:      "单轮批量处理请求数分布",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 500},
		},
	)
)

// 执行指标
var (
	// ExecutionsTotal 分配执行总数
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "分配执行总数",
		},
		[]string{"status"}, // completed/partially_completed/failed
	)

	// ExecutionDuration 分配执行耗时
	ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "分配执行耗时(秒)",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// DonationTransactionsTotal 单笔捐赠划拨总数
	DonationTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "donation_transactions_total",
			Help:      "单笔捐赠划拨总数",
		},
		[]string{"status"}, // succeeded/failed
	)

	// DonorPlanSizeHistogram 执行计划涉及捐赠人数量分布
	DonorPlanSizeHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "donor_plan_size",
			Help:      "执行计划涉及捐赠人数量分布",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		},
	)
)

// 合规指标
var (
	// AssessmentsTotal 合规评估总数
	AssessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compliance_assessments_total",
			Help:      "合规评估总数",
		},
		[]string{"risk_level"},
	)

	// SweepAlertsTotal 合规巡检预警总数
	SweepAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_alerts_total",
			Help:      "合规巡检预警总数",
		},
		[]string{"type", "risk_level"},
	)

	// SweepDuration 合规巡检耗时
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "合规巡检单轮耗时(秒)",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// SweptOrganizationsGauge 最近一轮巡检覆盖机构数
	SweptOrganizationsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "swept_organizations",
			Help:      "最近一轮巡检覆盖机构数",
		},
	)
)

// 审计指标
var (
	// AuditEntriesTotal 审计条目写入总数
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_total",
			Help:      "审计条目写入总数",
		},
		[]string{"action_type"},
	)

	// ChainVerificationsTotal 审计链校验总数
	ChainVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_verifications_total",
			Help:      "审计链校验总数",
		},
		[]string{"status"}, // VERIFIED/WARNING/COMPROMISED
	)

	// ChainIntegrityGauge 最近一次链校验结论 (1 完好 / 0 存在问题)
	ChainIntegrityGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_integrity",
			Help:      "最近一次审计链校验结论 (1 完好 / 0 存在问题)",
		},
	)

	// ChainTailSequenceGauge 审计链当前尾序号
	ChainTailSequenceGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_tail_sequence",
			Help:      "审计链当前尾序号",
		},
	)
)

// Kafka 指标
var (
	// KafkaMessagesProduced Kafka 生产消息数
	KafkaMessagesProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_produced_total",
			Help:      "Kafka 生产消息总数",
		},
		[]string{"topic"},
	)

	// KafkaMessagesConsumed Kafka 消费消息数
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_consumed_total",
			Help:      "Kafka 消费消息总数",
		},
		[]string{"topic"},
	)
)

// 定时任务指标
var (
	// JobRunsTotal 任务执行总数
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "定时任务执行总数",
		},
		[]string{"job", "status"},
	)

	// JobDuration 任务执行耗时
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "定时任务执行耗时(秒)",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"job"},
	)
)

// HTTP 指标
var (
	// HTTPRequestsTotal HTTP 请求总数
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration HTTP 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP 请求耗时(秒)",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

// Helper functions

// RecordScore 记录一次综合评分
func RecordScore(category string, total float64, durationSeconds float64) {
	ScoresComputedTotal.WithLabelValues(category).Inc()
	CompositeScoreHistogram.Observe(total)
	ScoringDuration.Observe(durationSeconds)
}

// RecordFactorScore 记录单因子评分
func RecordFactorScore(factor string, value float64) {
	FactorScoreHistogram.WithLabelValues(factor).Observe(value)
}

// RecordEligibilityCheck 记录门控评估
func RecordEligibilityCheck(eligible bool, failedCheck string) {
	if eligible {
		EligibilityChecksTotal.WithLabelValues("eligible", "none").Inc()
		return
	}
	EligibilityChecksTotal.WithLabelValues("rejected", failedCheck).Inc()
}

// RecordDecision 记录分配决策
func RecordDecision(decision, mode string) {
	DecisionsTotal.WithLabelValues(decision, mode).Inc()
}

// RecordBatchRun 记录批量分配
func RecordBatchRun(result string, requests int, durationSeconds float64) {
	BatchRunsTotal.WithLabelValues(result).Inc()
	BatchRequestsHistogram.Observe(float64(requests))
	BatchDuration.Observe(durationSeconds)
}

// RecordExecution 记录分配执行终态
func RecordExecution(status string, planSize int, durationSeconds float64) {
	ExecutionsTotal.WithLabelValues(status).Inc()
	DonorPlanSizeHistogram.Observe(float64(planSize))
	ExecutionDuration.Observe(durationSeconds)
}

// RecordDonation 记录单笔捐赠划拨
func RecordDonation(succeeded bool) {
	status := "succeeded"
	if !succeeded {
		status = "failed"
	}
	DonationTransactionsTotal.WithLabelValues(status).Inc()
}

// RecordAssessment 记录合规评估
func RecordAssessment(riskLevel string) {
	AssessmentsTotal.WithLabelValues(riskLevel).Inc()
}

// RecordSweepAlert 记录巡检预警
func RecordSweepAlert(alertType, riskLevel string) {
	SweepAlertsTotal.WithLabelValues(alertType, riskLevel).Inc()
}

// RecordSweep 记录一轮巡检
func RecordSweep(sweptOrganizations int, durationSeconds float64) {
	SweptOrganizationsGauge.Set(float64(sweptOrganizations))
	SweepDuration.Observe(durationSeconds)
}

// RecordAuditEntry 记录审计写入
func RecordAuditEntry(actionType string, tailSequence int64) {
	AuditEntriesTotal.WithLabelValues(actionType).Inc()
	ChainTailSequenceGauge.Set(float64(tailSequence))
}

// RecordChainVerification 记录链校验
func RecordChainVerification(status string, intact bool) {
	ChainVerificationsTotal.WithLabelValues(status).Inc()
	if intact {
		ChainIntegrityGauge.Set(1)
	} else {
		ChainIntegrityGauge.Set(0)
	}
}

// RecordKafkaMessage 记录 Kafka 消息
func RecordKafkaMessage(topic string, produced bool) {
	if produced {
		KafkaMessagesProduced.WithLabelValues(topic).Inc()
	} else {
		KafkaMessagesConsumed.WithLabelValues(topic).Inc()
	}
}

// RecordJobRun 记录一次定时任务执行
func RecordJobRun(job, status string, durationSeconds float64) {
	JobRunsTotal.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(durationSeconds)
}

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}
