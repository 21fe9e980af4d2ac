// Package handler 提供分配引擎的管理 API 处理器
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/almoner-platform/almoner-allocation/internal/repository"
	"github.com/almoner-platform/almoner-allocation/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PagedResponse 分页响应
type PagedResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Meta    PageMeta    `json:"meta"`
}

// PageMeta 分页元数据
type PageMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

const codeOK = "OK"

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    codeOK,
		Message: "success",
		Data:    data,
	})
}

// SuccessPaged 分页成功响应
func SuccessPaged(c *gin.Context, data interface{}, page *repository.Pagination, total int64) {
	c.JSON(http.StatusOK, PagedResponse{
		Code:    codeOK,
		Message: "success",
		Data:    data,
		Meta: PageMeta{
			Page:     page.Page,
			PageSize: page.PageSize,
			Total:    total,
		},
	})
}

// Error 业务错误响应
func Error(c *gin.Context, err *errors.Error) {
	c.JSON(err.HTTPStatus, Response{
		Code:    err.Code,
		Message: err.Message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, errors.ErrInvalidRequest.WithMessage(message))
}

// handleServiceError 处理服务层错误
// 非业务错误按内部错误返回，不向外透出原始消息
func handleServiceError(c *gin.Context, err error) {
	Error(c, errors.FromError(err))
}

// parsePagination 解析分页查询参数
func parsePagination(c *gin.Context) *repository.Pagination {
	page := 1
	pageSize := 20

	if v := c.Query("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := c.Query("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}

	return repository.NewPagination(page, pageSize)
}
