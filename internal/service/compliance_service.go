package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/almoner-platform/almoner-allocation/internal/compliance"
	"github.com/almoner-platform/almoner-allocation/internal/config"
	"github.com/almoner-platform/almoner-allocation/internal/metrics"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
	"github.com/almoner-platform/almoner-allocation/pkg/errors"
	"github.com/almoner-platform/almoner-allocation/pkg/id"
	"github.com/almoner-platform/almoner-allocation/pkg/logger"
)

// 可疑申请模式巡检的回溯窗口
const sweepRequestWindowMillis = int64(24 * 60 * 60 * 1000)

// ComplianceAlertMessage 合规告警消息 (Kafka compliance-alerts)
type ComplianceAlertMessage struct {
	AlertID   string                 `json:"alert_id"`
	OrgID     string                 `json:"org_id"`
	AlertType string                 `json:"alert_type"`
	RiskLevel string                 `json:"risk_level"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt int64                  `json:"created_at"`
}

// ComplianceService 合规监控服务
// 负责机构合规状态的持续检测：
// - 指标快照采集与评估生成 (六类目加权)
// - 定时巡检 (复审到期 / 类目跌线 / 财务异常 / 可疑申请模式)
// - 告警去重落库并进入人工审查队列
type ComplianceService struct {
	cfg *config.ComplianceConfig

	orgRepo        *repository.OrganizationRepository
	requestRepo    *repository.AllocationRequestRepository
	assessmentRepo *repository.ComplianceAssessmentRepository
	snapshotRepo   *repository.ComplianceSnapshotRepository
	alertRepo      *repository.ComplianceAlertRepository
	audit          *AuditService

	assessor *compliance.Assessor
	monitor  *compliance.Monitor

	// 上轮巡检的财务基线 (org_id -> snapshot)，用于检测余额骤降
	// 进程重启后首轮巡检无基线，该检查自动跳过
	prevFinance   map[string]*model.FinancialSnapshot
	prevFinanceMu sync.RWMutex

	// Kafka 告警回调
	onAlert func(ctx context.Context, alert *ComplianceAlertMessage) error
}

// NewComplianceService 创建合规监控服务
func NewComplianceService(
	cfg *config.ComplianceConfig,
	orgRepo *repository.OrganizationRepository,
	requestRepo *repository.AllocationRequestRepository,
	assessmentRepo *repository.ComplianceAssessmentRepository,
	snapshotRepo *repository.ComplianceSnapshotRepository,
	alertRepo *repository.ComplianceAlertRepository,
	audit *AuditService,
) *ComplianceService {
	return &ComplianceService{
		cfg:            cfg,
		orgRepo:        orgRepo,
		requestRepo:    requestRepo,
		assessmentRepo: assessmentRepo,
		snapshotRepo:   snapshotRepo,
		alertRepo:      alertRepo,
		audit:          audit,
		assessor:       compliance.NewAssessor(cfg),
		monitor:        compliance.NewMonitor(),
		prevFinance:    make(map[string]*model.FinancialSnapshot),
	}
}

// SetOnAlert 设置告警回调 (用于 Kafka 推送)
func (s *ComplianceService) SetOnAlert(fn func(ctx context.Context, alert *ComplianceAlertMessage) error) {
	s.onAlert = fn
}

// RecordSnapshot 采集机构合规指标快照，覆盖上一份
func (s *ComplianceService) RecordSnapshot(ctx context.Context, orgID string, values map[string]float64) (*model.ComplianceSnapshot, error) {
	if len(values) == 0 {
		return nil, errors.ErrInvalidRequest.WithMessage("metrics payload is empty")
	}

	org, err := s.orgRepo.FindByOrgID(ctx, orgID)
	if err != nil {
		return nil, errors.WrapWithCause(errors.ErrInternal, err, "load organization %s", orgID)
	}
	if org == nil {
		return nil, repository.ErrOrganizationNotFound
	}

	snapshot := &model.ComplianceSnapshot{
		OrgID:       orgID,
		CollectedAt: time.Now().UnixMilli(),
	}
	if err := snapshot.SetMetrics(values); err != nil {
		return nil, errors.WrapWithCause(errors.ErrInternal, err, "serialize compliance metrics")
	}
	if err := s.snapshotRepo.Upsert(ctx, snapshot); err != nil {
		return nil, err
	}

	logger.Info("compliance snapshot recorded", "org_id", orgID, "metrics", len(values))
	return snapshot, nil
}

// AssessCompliance 基于最新指标快照生成一条新评估
// 历史评估只追加；无快照的机构全部指标取中性分
func (s *ComplianceService) AssessCompliance(ctx context.Context, orgID, actorID string) (*model.ComplianceAssessment, error) {
	org, err := s.orgRepo.FindByOrgID(ctx, orgID)
	if err != nil {
		return nil, errors.WrapWithCause(errors.ErrInternal, err, "load organization %s", orgID)
	}
	if org == nil {
		return nil, repository.ErrOrganizationNotFound
	}

	var values map[string]float64
	snapshot, err := s.snapshotRepo.FindByOrgID(ctx, orgID)
	if err != nil {
		return nil, errors.WrapWithCause(errors.ErrInternal, err, "load compliance snapshot %s", orgID)
	}
	if snapshot != nil {
		values, err = snapshot.GetMetrics()
		if err != nil {
			return nil, errors.WrapWithCause(errors.ErrInternal, err, "parse compliance snapshot %s", orgID)
		}
	}

	assessment, err := s.assessor.Assess(orgID, values, 0)
	if err != nil {
		return nil, err
	}
	if err := s.assessmentRepo.Create(ctx, assessment); err != nil {
		return nil, err
	}

	if err := s.audit.LogComplianceAssessed(ctx, assessment, actorID); err != nil {
		logger.Error("audit compliance assessment failed", "assessment_id", assessment.AssessmentID, "error", err)
	}
	metrics.RecordAssessment(string(assessment.RiskLevel))

	logger.Info("compliance assessed",
		"org_id", orgID,
		"assessment_id", assessment.AssessmentID,
		"overall", assessment.OverallScore,
		"risk_level", assessment.RiskLevel)
	return assessment, nil
}

// RefreshDueAssessments 重评复审到期的机构，按到期时间先后处理
func (s *ComplianceService) RefreshDueAssessments(ctx context.Context, limit int) (int, error) {
	due, err := s.assessmentRepo.ListDueForReview(ctx, time.Now().UnixMilli(), limit)
	if err != nil {
		return 0, errors.WrapWithCause(errors.ErrInternal, err, "list assessments due for review")
	}

	refreshed := 0
	for _, stale := range due {
		if _, err := s.AssessCompliance(ctx, stale.OrgID, ActorSystem); err != nil {
			logger.Error("refresh assessment failed", "org_id", stale.OrgID, "error", err)
			continue
		}
		refreshed++
	}

	if len(due) > 0 {
		logger.Info("due assessments refreshed", "due", len(due), "refreshed", refreshed)
	}
	return refreshed, nil
}

// MonitorSweep 对全部 active 机构跑一轮巡检
// maxAlerts <= 0 时取配置上限；达到上限即停，剩余机构留待下轮
func (s *ComplianceService) MonitorSweep(ctx context.Context, maxAlerts int) (*compliance.MonitoringReport, error) {
	if maxAlerts <= 0 {
		maxAlerts = s.cfg.MaxAlertsPerSweep
	}

	start := time.Now()
	orgs, err := s.orgRepo.ListActive(ctx, 0)
	if err != nil {
		return nil, errors.WrapWithCause(errors.ErrInternal, err, "load active organizations")
	}

	report := &compliance.MonitoringReport{
		AlertsByType: make(map[string]int),
		StartedAt:    start.UnixMilli(),
	}
	now := start.UnixMilli()
	since := now - sweepRequestWindowMillis

	for _, org := range orgs {
		if report.AlertsRaised >= maxAlerts {
			report.Truncated = true
			break
		}

		input, err := s.buildSweepInput(ctx, org, now, since)
		if err != nil {
			logger.Error("build sweep input failed", "org_id", org.OrgID, "error", err)
			continue
		}
		report.SweptOrganizations++

		for _, draft := range s.monitor.InspectOrganization(input) {
			if report.AlertsRaised >= maxAlerts {
				report.Truncated = true
				break
			}
			raised, err := s.raiseAlert(ctx, org.OrgID, draft)
			if err != nil {
				logger.Error("raise compliance alert failed", "org_id", org.OrgID, "type", draft.Type, "error", err)
				continue
			}
			if raised {
				report.AlertsRaised++
				report.AlertsByType[string(draft.Type)]++
			}
		}

		s.rememberFinancial(org)
	}

	report.FinishedAt = time.Now().UnixMilli()
	metrics.RecordSweep(report.SweptOrganizations, time.Since(start).Seconds())

	logger.Info("compliance sweep finished",
		"swept", report.SweptOrganizations,
		"alerts", report.AlertsRaised,
		"truncated", report.Truncated)
	return report, nil
}

// AcknowledgeAlert 告警认领
func (s *ComplianceService) AcknowledgeAlert(ctx context.Context, alertID, actorID string) error {
	if err := s.alertRepo.Acknowledge(ctx, alertID, actorID); err != nil {
		return err
	}
	logger.Info("compliance alert acknowledged", "alert_id", alertID, "by", actorID)
	return nil
}

// ResolveAlert 告警关闭
func (s *ComplianceService) ResolveAlert(ctx context.Context, alertID, actorID string) error {
	if err := s.alertRepo.Resolve(ctx, alertID, actorID); err != nil {
		return err
	}
	logger.Info("compliance alert resolved", "alert_id", alertID, "by", actorID)
	return nil
}

// GetLatestAssessment 查询机构最新评估
func (s *ComplianceService) GetLatestAssessment(ctx context.Context, orgID string) (*model.ComplianceAssessment, error) {
	return s.assessmentRepo.GetLatestByOrgID(ctx, orgID)
}

// ListAssessments 分页查询机构评估历史
func (s *ComplianceService) ListAssessments(ctx context.Context, orgID string, page *repository.Pagination) ([]*model.ComplianceAssessment, int64, error) {
	return s.assessmentRepo.ListByOrg(ctx, orgID, page)
}

// GetAlert 查询单条告警
func (s *ComplianceService) GetAlert(ctx context.Context, alertID string) (*model.ComplianceAlert, error) {
	return s.alertRepo.GetByAlertID(ctx, alertID)
}

// ListOpenAlerts 分页查询待处理告警 (人工审查队列)
func (s *ComplianceService) ListOpenAlerts(ctx context.Context, page *repository.Pagination) ([]*model.ComplianceAlert, int64, error) {
	return s.alertRepo.ListOpen(ctx, page)
}

// ListAlertsByOrg 分页查询机构告警历史
func (s *ComplianceService) ListAlertsByOrg(ctx context.Context, orgID string, page *repository.Pagination) ([]*model.ComplianceAlert, int64, error) {
	return s.alertRepo.ListByOrg(ctx, orgID, page)
}

// AlertStats 统计各类型待处理告警数
func (s *ComplianceService) AlertStats(ctx context.Context) (map[model.AlertType]int64, error) {
	return s.alertRepo.CountOpenByType(ctx)
}

// buildSweepInput 组装单机构巡检输入
func (s *ComplianceService) buildSweepInput(ctx context.Context, org *model.Organization, now, since int64) (*compliance.SweepInput, error) {
	assessment, err := s.assessmentRepo.FindLatestByOrgID(ctx, org.OrgID)
	if err != nil {
		return nil, err
	}
	recent, err := s.requestRepo.CountRecentByOrg(ctx, org.OrgID, since)
	if err != nil {
		return nil, err
	}

	s.prevFinanceMu.RLock()
	prev := s.prevFinance[org.OrgID]
	s.prevFinanceMu.RUnlock()

	return &compliance.SweepInput{
		Org:                org,
		Assessment:         assessment,
		PreviousFinancial:  prev,
		RecentRequestCount: int(recent),
		NowMillis:          now,
	}, nil
}

// raiseAlert 落库一条告警草稿; 同机构同类型已有 open 告警时去重跳过
func (s *ComplianceService) raiseAlert(ctx context.Context, orgID string, draft *compliance.AlertDraft) (bool, error) {
	existing, err := s.alertRepo.FindOpenByType(ctx, orgID, draft.Type)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	details, err := json.Marshal(draft.Details)
	if err != nil {
		return false, errors.WrapWithCause(errors.ErrInternal, err, "serialize alert details")
	}

	alert := &model.ComplianceAlert{
		AlertID:   id.NextReference("CAL"),
		OrgID:     orgID,
		Type:      draft.Type,
		RiskLevel: draft.RiskLevel,
		Message:   draft.Message,
		Details:   string(details),
		Status:    model.AlertStatusOpen,
	}
	if err := s.alertRepo.Create(ctx, alert); err != nil {
		return false, err
	}

	if err := s.audit.LogAlertRaised(ctx, alert); err != nil {
		logger.Error("audit alert raised failed", "alert_id", alert.AlertID, "error", err)
	}

	s.sendAlert(ctx, &ComplianceAlertMessage{
		AlertID:   alert.AlertID,
		OrgID:     alert.OrgID,
		AlertType: string(alert.Type),
		RiskLevel: string(alert.RiskLevel),
		Message:   alert.Message,
		Details:   draft.Details,
		CreatedAt: time.Now().UnixMilli(),
	})
	metrics.RecordSweepAlert(string(alert.Type), string(alert.RiskLevel))
	return true, nil
}

// rememberFinancial 留存本轮财务状态作为下轮基线
func (s *ComplianceService) rememberFinancial(org *model.Organization) {
	s.prevFinanceMu.Lock()
	s.prevFinance[org.OrgID] = org.Snapshot()
	s.prevFinanceMu.Unlock()
}

// sendAlert 推送告警消息
func (s *ComplianceService) sendAlert(ctx context.Context, alert *ComplianceAlertMessage) {
	if s.onAlert == nil {
		return
	}
	if err := s.onAlert(ctx, alert); err != nil {
		logger.Error("send compliance alert failed", "alert_id", alert.AlertID, "error", err)
	}
}
