package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/almoner-platform/almoner-allocation/internal/ledger"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
)

// AuditService 审计服务接口
type AuditService interface {
	VerifyChain(ctx context.Context, startSeq, endSeq int64) (*ledger.IntegrityReport, error)
	GetEntry(ctx context.Context, sequenceNumber int64) (*model.AuditEntry, error)
	ListByEntity(ctx context.Context, entityType, entityID string, page *repository.Pagination) ([]*model.AuditEntry, int64, error)
	ListByAction(ctx context.Context, actionType model.AuditActionType, page *repository.Pagination) ([]*model.AuditEntry, int64, error)
	GetStats(ctx context.Context) (map[model.AuditActionType]int64, error)
}

// AuditHandler 审计链处理器
type AuditHandler struct {
	svc AuditService
}

// NewAuditHandler 创建审计链处理器
func NewAuditHandler(svc AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// VerifyChainPayload 链校验请求体
type VerifyChainPayload struct {
	StartSequence int64 `json:"start_sequence"`
	EndSequence   int64 `json:"end_sequence"`
}

// VerifyChain 重放校验审计链完整性
// POST /admin/v1/audit/verify
func (h *AuditHandler) VerifyChain(c *gin.Context) {
	// 请求体可空，0 起点从链头开始、0 终点取到链尾
	var payload VerifyChainPayload
	_ = c.ShouldBindJSON(&payload)

	if payload.StartSequence < 0 || payload.EndSequence < 0 {
		BadRequest(c, "sequence numbers must not be negative")
		return
	}

	report, err := h.svc.VerifyChain(c.Request.Context(), payload.StartSequence, payload.EndSequence)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, report)
}

// GetEntry 按序号获取审计条目
// GET /admin/v1/audit/entries/:seq
func (h *AuditHandler) GetEntry(c *gin.Context) {
	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq < 1 {
		BadRequest(c, "invalid sequence number")
		return
	}

	entry, err := h.svc.GetEntry(c.Request.Context(), seq)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, entry)
}

// ListEntries 按实体或动作类型查询审计条目
// GET /admin/v1/audit/entries?entity_type=&entity_id= 或 ?action=
func (h *AuditHandler) ListEntries(c *gin.Context) {
	entityType := c.Query("entity_type")
	entityID := c.Query("entity_id")
	action := c.Query("action")
	page := parsePagination(c)

	var (
		entries []*model.AuditEntry
		total   int64
		err     error
	)
	switch {
	case entityType != "" && entityID != "":
		entries, total, err = h.svc.ListByEntity(c.Request.Context(), entityType, entityID, page)
	case action != "":
		entries, total, err = h.svc.ListByAction(c.Request.Context(), model.AuditActionType(action), page)
	default:
		BadRequest(c, "either entity_type+entity_id or action filter is required")
		return
	}
	if err != nil {
		handleServiceError(c, err)
		return
	}

	SuccessPaged(c, entries, page, total)
}

// GetStats 按动作类型统计审计条目
// GET /admin/v1/audit/stats
func (h *AuditHandler) GetStats(c *gin.Context) {
	stats, err := h.svc.GetStats(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, stats)
}
