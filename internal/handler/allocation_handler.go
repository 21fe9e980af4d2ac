package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
	"github.com/almoner-platform/almoner-allocation/internal/rules"
	"github.com/almoner-platform/almoner-allocation/internal/scoring"
	"github.com/almoner-platform/almoner-allocation/internal/service"
	"github.com/almoner-platform/almoner-allocation/pkg/errors"
)

// defaultActor 未显式给出操作人时的默认标识
const defaultActor = "admin"

// AllocationService 分配服务接口
type AllocationService interface {
	SubmitRequest(ctx context.Context, req *model.AllocationRequest, mode model.ProcessingMode, actorID string) (*model.AllocationDecision, error)
	ScoreRequest(ctx context.Context, requestID string) (*scoring.CompositeScore, error)
	CheckEligibility(ctx context.Context, orgID string) (*rules.EligibilityResult, error)
	ExecuteAllocation(ctx context.Context, decisionID, actorID string) (*model.AllocationResult, error)
	RunBatchCycle(ctx context.Context) (*service.BatchReport, error)
	GetRequest(ctx context.Context, requestID string) (*model.AllocationRequest, error)
	GetDecision(ctx context.Context, decisionID string) (*model.AllocationDecision, error)
	GetResult(ctx context.Context, resultID string) (*model.AllocationResult, []*model.DonationTransaction, error)
	ListRequestsByStatus(ctx context.Context, status model.RequestStatus, page *repository.Pagination) ([]*model.AllocationRequest, int64, error)
	ListDecisionsByOrg(ctx context.Context, orgID string, page *repository.Pagination) ([]*model.AllocationDecision, int64, error)
}

// AllocationHandler 分配处理器
type AllocationHandler struct {
	svc AllocationService
}

// NewAllocationHandler 创建分配处理器
func NewAllocationHandler(svc AllocationService) *AllocationHandler {
	return &AllocationHandler{svc: svc}
}

// SubmitRequestPayload 提交拨款申请的请求体
type SubmitRequestPayload struct {
	RequestID             string `json:"request_id"`
	OrgID                 string `json:"org_id"`
	RequestedAmount       string `json:"requested_amount"`
	Category              string `json:"category"`
	ProjectType           string `json:"project_type"`
	PriorityLevel         string `json:"priority_level"`
	Deadline              int64  `json:"deadline"`
	ExpectedBeneficiaries int    `json:"expected_beneficiaries"`
	DurationMonths        int    `json:"duration_months"`
	Location              string `json:"location"`
	SubmittedAt           int64  `json:"submitted_at"`
	Mode                  string `json:"mode"`
	ActorID               string `json:"actor_id"`
}

// SubmitRequest 提交拨款申请并立即评分决策
// POST /admin/v1/requests
func (h *AllocationHandler) SubmitRequest(c *gin.Context) {
	var payload SubmitRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		BadRequest(c, err.Error())
		return
	}

	req, mode, bizErr := buildAllocationRequest(&payload)
	if bizErr != nil {
		Error(c, bizErr)
		return
	}

	actor := payload.ActorID
	if actor == "" {
		actor = defaultActor
	}

	decision, err := h.svc.SubmitRequest(c.Request.Context(), req, mode, actor)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, decision)
}

// GetRequest 获取拨款申请详情
// GET /admin/v1/requests/:id
func (h *AllocationHandler) GetRequest(c *gin.Context) {
	requestID := c.Param("id")
	if requestID == "" {
		BadRequest(c, "request id is required")
		return
	}

	req, err := h.svc.GetRequest(c.Request.Context(), requestID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, req)
}

// ListRequests 按状态查询拨款申请
// GET /admin/v1/requests?status=submitted
func (h *AllocationHandler) ListRequests(c *gin.Context) {
	status := model.RequestStatus(c.Query("status"))
	if !status.IsValid() {
		BadRequest(c, "unknown request status")
		return
	}

	page := parsePagination(c)
	requests, total, err := h.svc.ListRequestsByStatus(c.Request.Context(), status, page)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	SuccessPaged(c, requests, page, total)
}

// ScoreRequest 预览申请评分 (不落库，不推进状态)
// GET /admin/v1/requests/:id/score
func (h *AllocationHandler) ScoreRequest(c *gin.Context) {
	requestID := c.Param("id")
	if requestID == "" {
		BadRequest(c, "request id is required")
		return
	}

	score, err := h.svc.ScoreRequest(c.Request.Context(), requestID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, score)
}

// CheckEligibility 检查机构资格门控
// GET /admin/v1/organizations/:id/eligibility
func (h *AllocationHandler) CheckEligibility(c *gin.Context) {
	orgID := c.Param("id")
	if orgID == "" {
		BadRequest(c, "organization id is required")
		return
	}

	result, err := h.svc.CheckEligibility(c.Request.Context(), orgID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, result)
}

// GetDecision 获取分配决策详情
// GET /admin/v1/decisions/:id
func (h *AllocationHandler) GetDecision(c *gin.Context) {
	decisionID := c.Param("id")
	if decisionID == "" {
		BadRequest(c, "decision id is required")
		return
	}

	decision, err := h.svc.GetDecision(c.Request.Context(), decisionID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, decision)
}

// ListDecisionsByOrg 查询机构的决策历史
// GET /admin/v1/organizations/:id/decisions
func (h *AllocationHandler) ListDecisionsByOrg(c *gin.Context) {
	orgID := c.Param("id")
	if orgID == "" {
		BadRequest(c, "organization id is required")
		return
	}

	page := parsePagination(c)
	decisions, total, err := h.svc.ListDecisionsByOrg(c.Request.Context(), orgID, page)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	SuccessPaged(c, decisions, page, total)
}

// ExecutePayload 执行分配的请求体
type ExecutePayload struct {
	ActorID string `json:"actor_id"`
}

// ExecuteAllocation 执行已批准的分配决策
// POST /admin/v1/decisions/:id/execute
func (h *AllocationHandler) ExecuteAllocation(c *gin.Context) {
	decisionID := c.Param("id")
	if decisionID == "" {
		BadRequest(c, "decision id is required")
		return
	}

	// 请求体可空，空体按默认操作人执行
	var payload ExecutePayload
	_ = c.ShouldBindJSON(&payload)
	if payload.ActorID == "" {
		payload.ActorID = defaultActor
	}

	result, err := h.svc.ExecuteAllocation(c.Request.Context(), decisionID, payload.ActorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, result)
}

// ResultDetail 执行结果与逐笔划拨流水
type ResultDetail struct {
	Result       *model.AllocationResult      `json:"result"`
	Transactions []*model.DonationTransaction `json:"transactions"`
}

// GetResult 获取执行结果详情
// GET /admin/v1/results/:id
func (h *AllocationHandler) GetResult(c *gin.Context) {
	resultID := c.Param("id")
	if resultID == "" {
		BadRequest(c, "result id is required")
		return
	}

	result, txns, err := h.svc.GetResult(c.Request.Context(), resultID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, &ResultDetail{Result: result, Transactions: txns})
}

// RunBatch 立即执行一轮批量分配
// POST /admin/v1/batch/run
func (h *AllocationHandler) RunBatch(c *gin.Context) {
	report, err := h.svc.RunBatchCycle(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, report)
}

// buildAllocationRequest 把请求体转换为领域模型并做结构校验
func buildAllocationRequest(payload *SubmitRequestPayload) (*model.AllocationRequest, model.ProcessingMode, *errors.Error) {
	if payload.OrgID == "" {
		return nil, "", errors.ErrInvalidRequest.WithMessage("org_id is required")
	}
	if payload.RequestedAmount == "" {
		return nil, "", errors.ErrInvalidRequest.WithMessage("requested_amount is required")
	}
	amount, err := decimal.NewFromString(payload.RequestedAmount)
	if err != nil || !amount.IsPositive() {
		return nil, "", errors.ErrInvalidRequest.WithMessage("requested_amount must be a positive decimal")
	}
	if payload.Category == "" {
		return nil, "", errors.ErrInvalidRequest.WithMessage("category is required")
	}
	priority := model.PriorityLevel(payload.PriorityLevel)
	if !priority.IsValid() {
		return nil, "", errors.ErrInvalidRequest.WithMessage("unknown priority level")
	}
	if payload.ExpectedBeneficiaries < 1 {
		return nil, "", errors.ErrInvalidRequest.WithMessage("expected_beneficiaries must be at least 1")
	}
	if payload.DurationMonths < 1 {
		return nil, "", errors.ErrInvalidRequest.WithMessage("duration_months must be at least 1")
	}

	mode := model.ProcessingMode(payload.Mode)
	if payload.Mode == "" {
		mode = model.ModeStandard
	}
	if !mode.IsValid() {
		return nil, "", errors.ErrInvalidRequest.WithMessage("unknown processing mode")
	}

	submittedAt := payload.SubmittedAt
	if submittedAt == 0 {
		submittedAt = time.Now().UnixMilli()
	}

	return &model.AllocationRequest{
		RequestID:             payload.RequestID,
		OrgID:                 payload.OrgID,
		RequestedAmount:       amount,
		Category:              payload.Category,
		ProjectType:           payload.ProjectType,
		PriorityLevel:         priority,
		Deadline:              payload.Deadline,
		ExpectedBeneficiaries: payload.ExpectedBeneficiaries,
		DurationMonths:        payload.DurationMonths,
		Location:              payload.Location,
		SubmittedAt:           submittedAt,
	}, mode, nil
}
