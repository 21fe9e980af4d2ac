package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Error 业务错误
type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	Cause      error             `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
	Stack      string            `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 实现 errors.Is 接口
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails 添加详情
func (e *Error) WithDetails(details map[string]string) *Error {
	newErr := e.Copy()
	if newErr.Details == nil {
		newErr.Details = make(map[string]string)
	}
	for k, v := range details {
		newErr.Details[k] = v
	}
	return newErr
}

// WithDetail 添加单个详情
func (e *Error) WithDetail(key, value string) *Error {
	return e.WithDetails(map[string]string{key: value})
}

// WithMessage 替换错误消息
func (e *Error) WithMessage(message string) *Error {
	newErr := e.Copy()
	newErr.Message = message
	return newErr
}

// WithMessagef 格式化替换错误消息
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Copy 复制错误
func (e *Error) Copy() *Error {
	newErr := &Error{
		Code:       e.Code,
		Message:    e.Message,
		HTTPStatus: e.HTTPStatus,
		Cause:      e.Cause,
		Stack:      e.Stack,
	}
	if e.Details != nil {
		newErr.Details = make(map[string]string)
		for k, v := range e.Details {
			newErr.Details[k] = v
		}
	}
	return newErr
}

// JSON 返回 JSON 格式
func (e *Error) JSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// MarshalJSON 实现 json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error,omitempty"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

// New 创建新错误
func New(code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewWithStatus 创建带状态码的错误
func NewWithStatus(code, message string, httpStatus int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap 包装错误
func Wrap(err *Error, cause error) *Error {
	newErr := err.Copy()
	newErr.Cause = cause
	newErr.Stack = getStack()
	return newErr
}

// Wrapf 包装错误并添加信息
func Wrapf(err *Error, format string, args ...interface{}) *Error {
	newErr := err.Copy()
	newErr.Message = fmt.Sprintf("%s: %s", err.Message, fmt.Sprintf(format, args...))
	newErr.Stack = getStack()
	return newErr
}

// WrapWithCause 包装错误并添加原因和信息
func WrapWithCause(err *Error, cause error, format string, args ...interface{}) *Error {
	newErr := err.Copy()
	newErr.Message = fmt.Sprintf("%s: %s", err.Message, fmt.Sprintf(format, args...))
	newErr.Cause = cause
	newErr.Stack = getStack()
	return newErr
}

// getStack 获取调用栈
func getStack() string {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var builder strings.Builder
	for {
		frame, more := frames.Next()
		builder.WriteString(fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return builder.String()
}

// FromError 从标准错误转换
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	// 已经是 Error 类型
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr
	}

	// 包装为内部错误
	return Wrap(ErrInternal, err)
}

// 通用错误码
var (
	ErrInternal           = NewWithStatus("INTERNAL_ERROR", "内部错误", http.StatusInternalServerError)
	ErrInvalidRequest     = NewWithStatus("INVALID_REQUEST", "请求参数无效", http.StatusBadRequest)
	ErrUnauthorized       = NewWithStatus("UNAUTHORIZED", "未授权", http.StatusUnauthorized)
	ErrForbidden          = NewWithStatus("FORBIDDEN", "禁止访问", http.StatusForbidden)
	ErrNotFound           = NewWithStatus("NOT_FOUND", "资源不存在", http.StatusNotFound)
	ErrConflict           = NewWithStatus("CONFLICT", "资源冲突", http.StatusConflict)
	ErrRateLimited        = NewWithStatus("RATE_LIMITED", "请求过于频繁", http.StatusTooManyRequests)
	ErrServiceUnavailable = NewWithStatus("SERVICE_UNAVAILABLE", "服务不可用", http.StatusServiceUnavailable)
	ErrTimeout            = NewWithStatus("TIMEOUT", "请求超时", http.StatusGatewayTimeout)
	ErrCanceled           = NewWithStatus("CANCELED", "请求已取消", 499)
	ErrPreconditionFailed = NewWithStatus("PRECONDITION_FAILED", "前置条件失败", http.StatusPreconditionFailed)
)

// 业务错误码
var (
	// 组织相关
	ErrOrganizationNotFound = NewWithStatus("ORGANIZATION_NOT_FOUND", "机构不存在", http.StatusNotFound)
	ErrOrganizationInactive = NewWithStatus("ORGANIZATION_INACTIVE", "机构未激活", http.StatusForbidden)
	ErrComplianceSuspended  = NewWithStatus("COMPLIANCE_SUSPENDED", "机构合规暂停", http.StatusForbidden)

	// 拨款请求相关
	ErrRequestNotFound      = NewWithStatus("REQUEST_NOT_FOUND", "拨款请求不存在", http.StatusNotFound)
	ErrInvalidRequestStatus = NewWithStatus("INVALID_REQUEST_STATUS", "请求状态无效", http.StatusBadRequest)
	ErrRequestNotApproved   = NewWithStatus("REQUEST_NOT_APPROVED", "请求未批准", http.StatusPreconditionFailed)
	ErrDuplicateExecution   = NewWithStatus("DUPLICATE_EXECUTION", "请求已执行", http.StatusConflict)
	ErrEligibilityRejected  = NewWithStatus("ELIGIBILITY_REJECTED", "资格审核未通过", http.StatusForbidden)

	// 捐赠方相关
	ErrDonorNotFound       = NewWithStatus("DONOR_NOT_FOUND", "捐赠方不存在", http.StatusNotFound)
	ErrDonorInactive       = NewWithStatus("DONOR_INACTIVE", "捐赠方未激活", http.StatusForbidden)
	ErrInsufficientBalance = NewWithStatus("INSUFFICIENT_BALANCE", "可用余额不足", http.StatusPaymentRequired)
	ErrPoolExhausted       = NewWithStatus("POOL_EXHAUSTED", "资金池余额不足", http.StatusPaymentRequired)

	// 合规相关
	ErrAssessmentNotFound = NewWithStatus("ASSESSMENT_NOT_FOUND", "合规评估不存在", http.StatusNotFound)
	ErrAlertNotFound      = NewWithStatus("ALERT_NOT_FOUND", "预警不存在", http.StatusNotFound)

	// 审计相关
	ErrAuditAppend       = NewWithStatus("AUDIT_APPEND_FAILED", "审计日志写入失败", http.StatusInternalServerError)
	ErrSequenceConflict  = NewWithStatus("SEQUENCE_CONFLICT", "审计序号冲突", http.StatusConflict)
	ErrChainNotVerified  = NewWithStatus("CHAIN_NOT_VERIFIED", "审计链校验失败", http.StatusInternalServerError)

	// 数据库相关
	ErrDuplicateKey  = NewWithStatus("DUPLICATE_KEY", "数据已存在", http.StatusConflict)
	ErrDBConnection  = NewWithStatus("DB_CONNECTION_ERROR", "数据库连接失败", http.StatusInternalServerError)
	ErrDBTimeout     = NewWithStatus("DB_TIMEOUT", "数据库操作超时", http.StatusGatewayTimeout)
	ErrDBTransaction = NewWithStatus("DB_TRANSACTION_ERROR", "数据库事务失败", http.StatusInternalServerError)

	// 缓存相关
	ErrCacheMiss       = NewWithStatus("CACHE_MISS", "缓存未命中", http.StatusNotFound)
	ErrCacheConnection = NewWithStatus("CACHE_CONNECTION_ERROR", "缓存连接失败", http.StatusInternalServerError)

	// 消息队列相关
	ErrMQConnection = NewWithStatus("MQ_CONNECTION_ERROR", "消息队列连接失败", http.StatusInternalServerError)
	ErrMQPublish    = NewWithStatus("MQ_PUBLISH_ERROR", "消息发布失败", http.StatusInternalServerError)
	ErrMQConsume    = NewWithStatus("MQ_CONSUME_ERROR", "消息消费失败", http.StatusInternalServerError)
)

// ToHTTPStatus 获取 HTTP 状态码
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var bizErr *Error
	if errors.As(err, &bizErr) {
		if bizErr.HTTPStatus != 0 {
			return bizErr.HTTPStatus
		}
	}

	return http.StatusInternalServerError
}

// Is 判断错误类型
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.Is(err, target)
}

// As 提取错误类型
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode 获取错误码
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr.Code
	}
	return "UNKNOWN"
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr.Message
	}
	return err.Error()
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool {
	return Is(err, ErrNotFound) || Is(err, ErrOrganizationNotFound) || Is(err, ErrRequestNotFound) ||
		Is(err, ErrDonorNotFound) || Is(err, ErrAssessmentNotFound) || Is(err, ErrAlertNotFound)
}

// IsForbidden 判断是否为禁止访问错误
func IsForbidden(err error) bool {
	return Is(err, ErrForbidden) || Is(err, ErrComplianceSuspended) || Is(err, ErrEligibilityRejected) ||
		Is(err, ErrOrganizationInactive)
}

// IsConflict 判断是否为冲突错误
func IsConflict(err error) bool {
	return Is(err, ErrConflict) || Is(err, ErrDuplicateKey) || Is(err, ErrDuplicateExecution) ||
		Is(err, ErrSequenceConflict)
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		switch bizErr.Code {
		case ErrServiceUnavailable.Code, ErrRateLimited.Code, ErrTimeout.Code,
			ErrDBTimeout.Code, ErrCacheConnection.Code, ErrMQConnection.Code, ErrSequenceConflict.Code:
			return true
		}
	}
	return false
}
