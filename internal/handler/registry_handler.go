package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/almoner-platform/almoner-allocation/internal/cache"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
)

// RegistryHandler 机构与捐赠人登记查询处理器
// 登记数据由外部模块维护，这里只暴露只读视图
type RegistryHandler struct {
	orgRepo   *repository.OrganizationRepository
	donorRepo *repository.DonorRepository
	fundCache cache.DonorFundRedisRepository
}

// NewRegistryHandler 创建登记查询处理器
func NewRegistryHandler(
	orgRepo *repository.OrganizationRepository,
	donorRepo *repository.DonorRepository,
	fundCache cache.DonorFundRedisRepository,
) *RegistryHandler {
	return &RegistryHandler{
		orgRepo:   orgRepo,
		donorRepo: donorRepo,
		fundCache: fundCache,
	}
}

// ListOrganizations 查询机构列表
// GET /admin/v1/organizations
func (h *RegistryHandler) ListOrganizations(c *gin.Context) {
	page := parsePagination(c)
	orgs, total, err := h.orgRepo.List(c.Request.Context(), page)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	SuccessPaged(c, orgs, page, total)
}

// GetOrganization 获取机构详情
// GET /admin/v1/organizations/:id
func (h *RegistryHandler) GetOrganization(c *gin.Context) {
	orgID := c.Param("id")
	if orgID == "" {
		BadRequest(c, "organization id is required")
		return
	}

	org, err := h.orgRepo.GetByOrgID(c.Request.Context(), orgID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, org)
}

// OrganizationStats 按状态统计机构数
// GET /admin/v1/organizations/stats
func (h *RegistryHandler) OrganizationStats(c *gin.Context) {
	counts, err := h.orgRepo.CountByStatus(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, counts)
}

// ListDonors 查询捐赠人列表
// GET /admin/v1/donors
func (h *RegistryHandler) ListDonors(c *gin.Context) {
	page := parsePagination(c)
	donors, total, err := h.donorRepo.List(c.Request.Context(), page)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	SuccessPaged(c, donors, page, total)
}

// GetDonor 获取捐赠人详情
// GET /admin/v1/donors/:id
func (h *RegistryHandler) GetDonor(c *gin.Context) {
	donorID := c.Param("id")
	if donorID == "" {
		BadRequest(c, "donor id is required")
		return
	}

	donor, err := h.donorRepo.GetByDonorID(c.Request.Context(), donorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, donor)
}

// GetDonorFund 获取捐赠人资金池实时余额
// GET /admin/v1/donors/:id/fund
func (h *RegistryHandler) GetDonorFund(c *gin.Context) {
	donorID := c.Param("id")
	if donorID == "" {
		BadRequest(c, "donor id is required")
		return
	}

	fund, err := h.fundCache.GetFund(c.Request.Context(), donorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, fund)
}
