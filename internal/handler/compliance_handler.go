package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/almoner-platform/almoner-allocation/internal/compliance"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
)

// ComplianceService 合规服务接口
type ComplianceService interface {
	RecordSnapshot(ctx context.Context, orgID string, values map[string]float64) (*model.ComplianceSnapshot, error)
	AssessCompliance(ctx context.Context, orgID, actorID string) (*model.ComplianceAssessment, error)
	MonitorSweep(ctx context.Context, maxAlerts int) (*compliance.MonitoringReport, error)
	AcknowledgeAlert(ctx context.Context, alertID, actorID string) error
	ResolveAlert(ctx context.Context, alertID, actorID string) error
	GetLatestAssessment(ctx context.Context, orgID string) (*model.ComplianceAssessment, error)
	ListAssessments(ctx context.Context, orgID string, page *repository.Pagination) ([]*model.ComplianceAssessment, int64, error)
	GetAlert(ctx context.Context, alertID string) (*model.ComplianceAlert, error)
	ListOpenAlerts(ctx context.Context, page *repository.Pagination) ([]*model.ComplianceAlert, int64, error)
	ListAlertsByOrg(ctx context.Context, orgID string, page *repository.Pagination) ([]*model.ComplianceAlert, int64, error)
	AlertStats(ctx context.Context) (map[model.AlertType]int64, error)
}

// ComplianceHandler 合规处理器
type ComplianceHandler struct {
	svc ComplianceService
}

// NewComplianceHandler 创建合规处理器
func NewComplianceHandler(svc ComplianceService) *ComplianceHandler {
	return &ComplianceHandler{svc: svc}
}

// SnapshotPayload 合规指标快照请求体
type SnapshotPayload struct {
	Metrics map[string]float64 `json:"metrics"`
}

// RecordSnapshot 上报机构合规指标快照
// POST /admin/v1/organizations/:id/compliance/metrics
func (h *ComplianceHandler) RecordSnapshot(c *gin.Context) {
	orgID := c.Param("id")
	if orgID == "" {
		BadRequest(c, "organization id is required")
		return
	}

	var payload SnapshotPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		BadRequest(c, err.Error())
		return
	}

	snapshot, err := h.svc.RecordSnapshot(c.Request.Context(), orgID, payload.Metrics)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, snapshot)
}

// AssessPayload 发起合规评估的请求体
type AssessPayload struct {
	ActorID string `json:"actor_id"`
}

// Assess 对机构执行一次合规评估
// POST /admin/v1/organizations/:id/compliance/assess
func (h *ComplianceHandler) Assess(c *gin.Context) {
	orgID := c.Param("id")
	if orgID == "" {
		BadRequest(c, "organization id is required")
		return
	}

	var payload AssessPayload
	_ = c.ShouldBindJSON(&payload)
	if payload.ActorID == "" {
		payload.ActorID = defaultActor
	}

	assessment, err := h.svc.AssessCompliance(c.Request.Context(), orgID, payload.ActorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, assessment)
}

// GetLatestAssessment 获取机构最新合规评估
// GET /admin/v1/organizations/:id/compliance/assessment
func (h *ComplianceHandler) GetLatestAssessment(c *gin.Context) {
	orgID := c.Param("id")
	if orgID == "" {
		BadRequest(c, "organization id is required")
		return
	}

	assessment, err := h.svc.GetLatestAssessment(c.Request.Context(), orgID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, assessment)
}

// ListAssessments 查询机构合规评估历史
// GET /admin/v1/organizations/:id/compliance/assessments
func (h *ComplianceHandler) ListAssessments(c *gin.Context) {
	orgID := c.Param("id")
	if orgID == "" {
		BadRequest(c, "organization id is required")
		return
	}

	page := parsePagination(c)
	assessments, total, err := h.svc.ListAssessments(c.Request.Context(), orgID, page)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	SuccessPaged(c, assessments, page, total)
}

// SweepPayload 发起合规巡检的请求体
type SweepPayload struct {
	MaxAlerts int `json:"max_alerts"`
}

// Sweep 立即执行一轮合规巡检
// POST /admin/v1/compliance/sweep
func (h *ComplianceHandler) Sweep(c *gin.Context) {
	// 请求体可空，max_alerts 为 0 时由服务层按配置上限截断
	var payload SweepPayload
	_ = c.ShouldBindJSON(&payload)

	report, err := h.svc.MonitorSweep(c.Request.Context(), payload.MaxAlerts)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, report)
}

// GetAlert 获取预警详情
// GET /admin/v1/alerts/:id
func (h *ComplianceHandler) GetAlert(c *gin.Context) {
	alertID := c.Param("id")
	if alertID == "" {
		BadRequest(c, "alert id is required")
		return
	}

	alert, err := h.svc.GetAlert(c.Request.Context(), alertID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, alert)
}

// ListOpenAlerts 查询待处理预警
// GET /admin/v1/alerts
func (h *ComplianceHandler) ListOpenAlerts(c *gin.Context) {
	page := parsePagination(c)
	alerts, total, err := h.svc.ListOpenAlerts(c.Request.Context(), page)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	SuccessPaged(c, alerts, page, total)
}

// ListAlertsByOrg 查询机构的预警历史
// GET /admin/v1/organizations/:id/alerts
func (h *ComplianceHandler) ListAlertsByOrg(c *gin.Context) {
	orgID := c.Param("id")
	if orgID == "" {
		BadRequest(c, "organization id is required")
		return
	}

	page := parsePagination(c)
	alerts, total, err := h.svc.ListAlertsByOrg(c.Request.Context(), orgID, page)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	SuccessPaged(c, alerts, page, total)
}

// AlertActionPayload 预警处置请求体
type AlertActionPayload struct {
	ActorID string `json:"actor_id"`
}

// AcknowledgeAlert 认领预警
// POST /admin/v1/alerts/:id/acknowledge
func (h *ComplianceHandler) AcknowledgeAlert(c *gin.Context) {
	h.alertAction(c, h.svc.AcknowledgeAlert)
}

// ResolveAlert 关闭预警
// POST /admin/v1/alerts/:id/resolve
func (h *ComplianceHandler) ResolveAlert(c *gin.Context) {
	h.alertAction(c, h.svc.ResolveAlert)
}

func (h *ComplianceHandler) alertAction(c *gin.Context, action func(ctx context.Context, alertID, actorID string) error) {
	alertID := c.Param("id")
	if alertID == "" {
		BadRequest(c, "alert id is required")
		return
	}

	var payload AlertActionPayload
	_ = c.ShouldBindJSON(&payload)
	if payload.ActorID == "" {
		payload.ActorID = defaultActor
	}

	if err := action(c.Request.Context(), alertID, payload.ActorID); err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, nil)
}

// AlertStats 按类型统计预警
// GET /admin/v1/alerts/stats
func (h *ComplianceHandler) AlertStats(c *gin.Context) {
	stats, err := h.svc.AlertStats(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, stats)
}
