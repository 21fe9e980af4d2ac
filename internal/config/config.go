// Package config 分配引擎服务配置
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/almoner-platform/almoner-allocation/pkg/alert"
	pkgconfig "github.com/almoner-platform/almoner-allocation/pkg/config"
)

// Config 服务配置
type Config struct {
	Service    ServiceConfig            `yaml:"service" json:"service"`
	Postgres   pkgconfig.PostgresConfig `yaml:"postgres" json:"postgres"`
	Redis      pkgconfig.RedisConfig    `yaml:"redis" json:"redis"`
	Kafka      KafkaConfig              `yaml:"kafka" json:"kafka"`
	Allocation AllocationConfig         `yaml:"allocation" json:"allocation"`
	Compliance ComplianceConfig         `yaml:"compliance" json:"compliance"`
	Jobs       JobsConfig               `yaml:"jobs" json:"jobs"`
	Scheduler  SchedulerConfig          `yaml:"scheduler" json:"scheduler"`
	Alert      alert.Config             `yaml:"alert" json:"alert"`
	Log        pkgconfig.LogConfig      `yaml:"log" json:"log"`
}

// ServiceConfig 服务基础配置
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	HTTPPort int    `yaml:"http_port" json:"http_port"` // 业务 API 端口
	OpsPort  int    `yaml:"ops_port" json:"ops_port"`   // 运维端口 (metrics + health)
	Env      string `yaml:"env" json:"env"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled  bool              `yaml:"enabled" json:"enabled"`
	Brokers  []string          `yaml:"brokers" json:"brokers"`
	GroupID  string            `yaml:"group_id" json:"group_id"`
	ClientID string            `yaml:"client_id" json:"client_id"`
	Topics   KafkaTopicsConfig `yaml:"topics" json:"topics"`
}

// KafkaTopicsConfig 主题配置
type KafkaTopicsConfig struct {
	AllocationEvents    string `yaml:"allocation_events" json:"allocation_events"`       // 分配生命周期事件
	ComplianceAlerts    string `yaml:"compliance_alerts" json:"compliance_alerts"`       // 合规告警
	DonationSettlements string `yaml:"donation_settlements" json:"donation_settlements"` // 捐赠入账(消费)
}

// AllocationConfig 分配评分与审批配置
type AllocationConfig struct {
	Weights               AllocationWeights `yaml:"weights" json:"weights"`
	ApprovalThreshold     string            `yaml:"approval_threshold" json:"approval_threshold"`           // 标准审批分数线
	EmergencyThreshold    string            `yaml:"emergency_threshold" json:"emergency_threshold"`         // 紧急通道分数线
	DonorWeightCap        string            `yaml:"donor_weight_cap" json:"donor_weight_cap"`               // 偏好加权的单人余额上限
	EmergencyWindowDays   int               `yaml:"emergency_window_days" json:"emergency_window_days"`     // 紧急通道截止窗口(天)
	BatchSize             int               `yaml:"batch_size" json:"batch_size"`                           // 单轮批量处理上限
	ExecutionTimeoutSec   int               `yaml:"execution_timeout_sec" json:"execution_timeout_sec"`     // 单笔拨付超时(秒)
	StaleExecutionMinutes int               `yaml:"stale_execution_minutes" json:"stale_execution_minutes"` // 执行中状态滞留判定(分钟)
}

// AllocationWeights 六因子权重 (字符串小数，和必须为 1)
type AllocationWeights struct {
	FundingGap     string `yaml:"funding_gap" json:"funding_gap"`
	Urgency        string `yaml:"urgency" json:"urgency"`
	Performance    string `yaml:"performance" json:"performance"`
	DonorAlignment string `yaml:"donor_alignment" json:"donor_alignment"`
	CostEfficiency string `yaml:"cost_efficiency" json:"cost_efficiency"`
	Seasonality    string `yaml:"seasonality" json:"seasonality"`
}

// ComplianceConfig 合规评估配置
type ComplianceConfig struct {
	Weights           ComplianceWeights     `yaml:"weights" json:"weights"`
	ReviewIntervals   ReviewIntervalsConfig `yaml:"review_intervals" json:"review_intervals"`
	EligibilityFloor  string                `yaml:"eligibility_floor" json:"eligibility_floor"`       // 准入合规分下限
	MaxAlertsPerSweep int                   `yaml:"max_alerts_per_sweep" json:"max_alerts_per_sweep"` // 单轮巡检告警上限
}

// ComplianceWeights 六类合规权重 (字符串小数，和必须为 1)
type ComplianceWeights struct {
	FinancialTransparency string `yaml:"financial_transparency" json:"financial_transparency"`
	RegulatoryCompliance  string `yaml:"regulatory_compliance" json:"regulatory_compliance"`
	OperationalStandards  string `yaml:"operational_standards" json:"operational_standards"`
	Governance            string `yaml:"governance" json:"governance"`
	ImpactReporting       string `yaml:"impact_reporting" json:"impact_reporting"`
	StakeholderFeedback   string `yaml:"stakeholder_feedback" json:"stakeholder_feedback"`
}

// ReviewIntervalsConfig 按风险等级的复审间隔(天)
type ReviewIntervalsConfig struct {
	Low      int `yaml:"low" json:"low"`
	Medium   int `yaml:"medium" json:"medium"`
	High     int `yaml:"high" json:"high"`
	Critical int `yaml:"critical" json:"critical"`
}

// JobsConfig 定时任务配置
type JobsConfig struct {
	BatchAllocation   JobConfig `yaml:"batch_allocation" json:"batch_allocation"`
	ComplianceSweep   JobConfig `yaml:"compliance_sweep" json:"compliance_sweep"`
	AssessmentRefresh JobConfig `yaml:"assessment_refresh" json:"assessment_refresh"`
	AuditVerify       JobConfig `yaml:"audit_verify" json:"audit_verify"`
	StaleExecution    JobConfig `yaml:"stale_execution" json:"stale_execution"`
}

// JobConfig 单个任务配置
type JobConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Cron    string `yaml:"cron" json:"cron"`
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	MaxConcurrentJobs int  `yaml:"max_concurrent_jobs" json:"max_concurrent_jobs"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// 环境变量替换 ${VAR:default}
	content := pkgconfig.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "almoner-allocation"
	}
	if cfg.Service.HTTPPort == 0 {
		cfg.Service.HTTPPort = 8080
	}
	if cfg.Service.OpsPort == 0 {
		cfg.Service.OpsPort = 9090
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}

	// Postgres
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.User == "" {
		cfg.Postgres.User = "postgres"
	}
	if cfg.Postgres.Database == "" {
		cfg.Postgres.Database = "almoner_allocation"
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 50
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 10
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = 1800
	}

	// Redis
	if len(cfg.Redis.Addresses) == 0 {
		cfg.Redis.Addresses = []string{"localhost:6379"}
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 100
	}

	// Kafka
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "almoner-allocation"
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "almoner-allocation"
	}
	if cfg.Kafka.Topics.AllocationEvents == "" {
		cfg.Kafka.Topics.AllocationEvents = "allocation-events"
	}
	if cfg.Kafka.Topics.ComplianceAlerts == "" {
		cfg.Kafka.Topics.ComplianceAlerts = "compliance-alerts"
	}
	if cfg.Kafka.Topics.DonationSettlements == "" {
		cfg.Kafka.Topics.DonationSettlements = "donation-settlements"
	}

	// Allocation
	if cfg.Allocation.Weights.FundingGap == "" {
		cfg.Allocation.Weights.FundingGap = "0.25"
	}
	if cfg.Allocation.Weights.Urgency == "" {
		cfg.Allocation.Weights.Urgency = "0.20"
	}
	if cfg.Allocation.Weights.Performance == "" {
		cfg.Allocation.Weights.Performance = "0.20"
	}
	if cfg.Allocation.Weights.DonorAlignment == "" {
		cfg.Allocation.Weights.DonorAlignment = "0.15"
	}
	if cfg.Allocation.Weights.CostEfficiency == "" {
		cfg.Allocation.Weights.CostEfficiency = "0.10"
	}
	if cfg.Allocation.Weights.Seasonality == "" {
		cfg.Allocation.Weights.Seasonality = "0.10"
	}
	if cfg.Allocation.ApprovalThreshold == "" {
		cfg.Allocation.ApprovalThreshold = "70"
	}
	if cfg.Allocation.EmergencyThreshold == "" {
		cfg.Allocation.EmergencyThreshold = "50"
	}
	if cfg.Allocation.DonorWeightCap == "" {
		cfg.Allocation.DonorWeightCap = "1000"
	}
	if cfg.Allocation.EmergencyWindowDays == 0 {
		cfg.Allocation.EmergencyWindowDays = 7
	}
	if cfg.Allocation.BatchSize == 0 {
		cfg.Allocation.BatchSize = 200
	}
	if cfg.Allocation.ExecutionTimeoutSec == 0 {
		cfg.Allocation.ExecutionTimeoutSec = 30
	}
	if cfg.Allocation.StaleExecutionMinutes == 0 {
		cfg.Allocation.StaleExecutionMinutes = 30
	}

	// Compliance
	if cfg.Compliance.Weights.FinancialTransparency == "" {
		cfg.Compliance.Weights.FinancialTransparency = "0.20"
	}
	if cfg.Compliance.Weights.RegulatoryCompliance == "" {
		cfg.Compliance.Weights.RegulatoryCompliance = "0.20"
	}
	if cfg.Compliance.Weights.OperationalStandards == "" {
		cfg.Compliance.Weights.OperationalStandards = "0.15"
	}
	if cfg.Compliance.Weights.Governance == "" {
		cfg.Compliance.Weights.Governance = "0.15"
	}
	if cfg.Compliance.Weights.ImpactReporting == "" {
		cfg.Compliance.Weights.ImpactReporting = "0.15"
	}
	if cfg.Compliance.Weights.StakeholderFeedback == "" {
		cfg.Compliance.Weights.StakeholderFeedback = "0.15"
	}
	if cfg.Compliance.ReviewIntervals.Low == 0 {
		cfg.Compliance.ReviewIntervals.Low = 180
	}
	if cfg.Compliance.ReviewIntervals.Medium == 0 {
		cfg.Compliance.ReviewIntervals.Medium = 90
	}
	if cfg.Compliance.ReviewIntervals.High == 0 {
		cfg.Compliance.ReviewIntervals.High = 30
	}
	if cfg.Compliance.ReviewIntervals.Critical == 0 {
		cfg.Compliance.ReviewIntervals.Critical = 7
	}
	if cfg.Compliance.EligibilityFloor == "" {
		cfg.Compliance.EligibilityFloor = "60"
	}
	if cfg.Compliance.MaxAlertsPerSweep == 0 {
		cfg.Compliance.MaxAlertsPerSweep = 100
	}

	// Jobs
	if cfg.Jobs.BatchAllocation.Cron == "" {
		cfg.Jobs.BatchAllocation.Cron = "0 0 2 * * *"
	}
	if cfg.Jobs.ComplianceSweep.Cron == "" {
		cfg.Jobs.ComplianceSweep.Cron = "0 0 3 * * *"
	}
	if cfg.Jobs.AssessmentRefresh.Cron == "" {
		cfg.Jobs.AssessmentRefresh.Cron = "0 0 4 * * 1"
	}
	if cfg.Jobs.AuditVerify.Cron == "" {
		cfg.Jobs.AuditVerify.Cron = "0 30 1 * * *"
	}
	if cfg.Jobs.StaleExecution.Cron == "" {
		cfg.Jobs.StaleExecution.Cron = "0 */10 * * * *"
	}

	// Scheduler
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 5
	}

	// Alert
	if cfg.Alert.ServiceName == "" {
		cfg.Alert.ServiceName = cfg.Service.Name
	}
	if cfg.Alert.Environment == "" {
		cfg.Alert.Environment = cfg.Service.Env
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate 校验配置，启动时失败即退出
func (c *Config) Validate() error {
	if c.Service.HTTPPort <= 0 || c.Service.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Service.HTTPPort)
	}
	if c.Service.OpsPort <= 0 || c.Service.OpsPort > 65535 {
		return fmt.Errorf("invalid ops_port: %d", c.Service.OpsPort)
	}

	allocSum := decimal.Zero
	for name, w := range map[string]string{
		"funding_gap":     c.Allocation.Weights.FundingGap,
		"urgency":         c.Allocation.Weights.Urgency,
		"performance":     c.Allocation.Weights.Performance,
		"donor_alignment": c.Allocation.Weights.DonorAlignment,
		"cost_efficiency": c.Allocation.Weights.CostEfficiency,
		"seasonality":     c.Allocation.Weights.Seasonality,
	} {
		d, err := decimal.NewFromString(w)
		if err != nil {
			return fmt.Errorf("invalid allocation weight %s: %q", name, w)
		}
		if d.IsNegative() {
			return fmt.Errorf("allocation weight %s must not be negative", name)
		}
		allocSum = allocSum.Add(d)
	}
	if !allocSum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("allocation weights must sum to 1, got %s", allocSum)
	}

	compSum := decimal.Zero
	for name, w := range map[string]string{
		"financial_transparency": c.Compliance.Weights.FinancialTransparency,
		"regulatory_compliance":  c.Compliance.Weights.RegulatoryCompliance,
		"operational_standards":  c.Compliance.Weights.OperationalStandards,
		"governance":             c.Compliance.Weights.Governance,
		"impact_reporting":       c.Compliance.Weights.ImpactReporting,
		"stakeholder_feedback":   c.Compliance.Weights.StakeholderFeedback,
	} {
		d, err := decimal.NewFromString(w)
		if err != nil {
			return fmt.Errorf("invalid compliance weight %s: %q", name, w)
		}
		if d.IsNegative() {
			return fmt.Errorf("compliance weight %s must not be negative", name)
		}
		compSum = compSum.Add(d)
	}
	if !compSum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("compliance weights must sum to 1, got %s", compSum)
	}

	hundred := decimal.NewFromInt(100)
	for name, t := range map[string]string{
		"approval_threshold":  c.Allocation.ApprovalThreshold,
		"emergency_threshold": c.Allocation.EmergencyThreshold,
		"eligibility_floor":   c.Compliance.EligibilityFloor,
	} {
		d, err := decimal.NewFromString(t)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", name, t)
		}
		if d.IsNegative() || d.GreaterThan(hundred) {
			return fmt.Errorf("%s must be within [0,100], got %s", name, d)
		}
	}

	if cap, err := decimal.NewFromString(c.Allocation.DonorWeightCap); err != nil || !cap.IsPositive() {
		return fmt.Errorf("donor_weight_cap must be a positive decimal, got %q", c.Allocation.DonorWeightCap)
	}

	if c.Allocation.EmergencyWindowDays <= 0 {
		return fmt.Errorf("emergency_window_days must be positive")
	}
	for name, days := range map[string]int{
		"low":      c.Compliance.ReviewIntervals.Low,
		"medium":   c.Compliance.ReviewIntervals.Medium,
		"high":     c.Compliance.ReviewIntervals.High,
		"critical": c.Compliance.ReviewIntervals.Critical,
	} {
		if days <= 0 {
			return fmt.Errorf("review interval %s must be positive", name)
		}
	}

	return nil
}

// GetFundingGapWeight 资金缺口因子权重
func (w *AllocationWeights) GetFundingGapWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.FundingGap)
	if err != nil {
		return decimal.NewFromFloat(0.25)
	}
	return d
}

// GetUrgencyWeight 紧迫度因子权重
func (w *AllocationWeights) GetUrgencyWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.Urgency)
	if err != nil {
		return decimal.NewFromFloat(0.20)
	}
	return d
}

// GetPerformanceWeight 历史绩效因子权重
func (w *AllocationWeights) GetPerformanceWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.Performance)
	if err != nil {
		return decimal.NewFromFloat(0.20)
	}
	return d
}

// GetDonorAlignmentWeight 捐赠人偏好因子权重
func (w *AllocationWeights) GetDonorAlignmentWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.DonorAlignment)
	if err != nil {
		return decimal.NewFromFloat(0.15)
	}
	return d
}

// GetCostEfficiencyWeight 成本效率因子权重
func (w *AllocationWeights) GetCostEfficiencyWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.CostEfficiency)
	if err != nil {
		return decimal.NewFromFloat(0.10)
	}
	return d
}

// GetSeasonalityWeight 季节性因子权重
func (w *AllocationWeights) GetSeasonalityWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.Seasonality)
	if err != nil {
		return decimal.NewFromFloat(0.10)
	}
	return d
}

// GetApprovalThreshold 标准审批分数线
func (c *AllocationConfig) GetApprovalThreshold() decimal.Decimal {
	d, err := decimal.NewFromString(c.ApprovalThreshold)
	if err != nil {
		return decimal.NewFromInt(70)
	}
	return d
}

// GetEmergencyThreshold 紧急通道分数线
func (c *AllocationConfig) GetEmergencyThreshold() decimal.Decimal {
	d, err := decimal.NewFromString(c.EmergencyThreshold)
	if err != nil {
		return decimal.NewFromInt(50)
	}
	return d
}

// GetDonorWeightCap 偏好加权的单人余额上限
func (c *AllocationConfig) GetDonorWeightCap() decimal.Decimal {
	d, err := decimal.NewFromString(c.DonorWeightCap)
	if err != nil {
		return decimal.NewFromInt(1000)
	}
	return d
}

// GetEligibilityFloor 准入合规分下限
func (c *ComplianceConfig) GetEligibilityFloor() decimal.Decimal {
	d, err := decimal.NewFromString(c.EligibilityFloor)
	if err != nil {
		return decimal.NewFromInt(60)
	}
	return d
}

// GetFinancialTransparencyWeight 财务透明度权重
func (w *ComplianceWeights) GetFinancialTransparencyWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.FinancialTransparency)
	if err != nil {
		return decimal.NewFromFloat(0.20)
	}
	return d
}

// GetRegulatoryComplianceWeight 监管合规权重
func (w *ComplianceWeights) GetRegulatoryComplianceWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.RegulatoryCompliance)
	if err != nil {
		return decimal.NewFromFloat(0.20)
	}
	return d
}

// GetOperationalStandardsWeight 运营标准权重
func (w *ComplianceWeights) GetOperationalStandardsWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.OperationalStandards)
	if err != nil {
		return decimal.NewFromFloat(0.15)
	}
	return d
}

// GetGovernanceWeight 治理结构权重
func (w *ComplianceWeights) GetGovernanceWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.Governance)
	if err != nil {
		return decimal.NewFromFloat(0.15)
	}
	return d
}

// GetImpactReportingWeight 影响力报告权重
func (w *ComplianceWeights) GetImpactReportingWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.ImpactReporting)
	if err != nil {
		return decimal.NewFromFloat(0.15)
	}
	return d
}

// GetStakeholderFeedbackWeight 利益相关方反馈权重
func (w *ComplianceWeights) GetStakeholderFeedbackWeight() decimal.Decimal {
	d, err := decimal.NewFromString(w.StakeholderFeedback)
	if err != nil {
		return decimal.NewFromFloat(0.15)
	}
	return d
}
