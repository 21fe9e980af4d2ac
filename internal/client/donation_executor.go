// Package client 提供捐赠划拨执行器
package client

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/almoner-platform/almoner-allocation/internal/cache"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
	"github.com/almoner-platform/almoner-allocation/pkg/circuitbreaker"
	"github.com/almoner-platform/almoner-allocation/pkg/id"
	"github.com/almoner-platform/almoner-allocation/pkg/logger"
)

// 单笔划拨失败码，落在 donation_transactions.failure_code
const (
	FailureCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	FailureCodeFundNotFound      = "DONOR_FUND_NOT_FOUND"
	FailureCodePoolUnavailable   = "FUND_POOL_UNAVAILABLE"
	FailureCodeLedgerSyncFailed  = "LEDGER_SYNC_FAILED"
	FailureCodeTransferFailed    = "TRANSFER_FAILED"
)

// DonationRequest 单笔捐赠划拨请求
type DonationRequest struct {
	ExecutionID string          // 所属执行 ID (预留记录维度)
	DonorID     string          // 出资捐赠人
	OrgID       string          // 受益机构
	Amount      decimal.Decimal // 划拨金额
}

// DonationOutcome 单笔捐赠划拨结果
type DonationOutcome struct {
	TransactionID string                  // 划拨凭证号
	Status        model.TransactionStatus // succeeded / failed
	FailureCode   string                  // 失败码，成功时为空
	CompletedAt   int64
}

// Succeeded 检查划拨是否成功
func (o *DonationOutcome) Succeeded() bool {
	return o.Status == model.TransactionStatusSucceeded
}

// DonationExecutor 捐赠划拨执行器
// 移动顺序: Redis 原子预留 → 数据库余额镜像扣减 → 预留资金出池 → 机构入账
// 余额校验发生在预留脚本内，业务拒绝 (余额不足) 不计入熔断
type DonationExecutor struct {
	funds     cache.DonorFundRedisRepository
	donorRepo *repository.DonorRepository
	orgRepo   *repository.OrganizationRepository
	breaker   *circuitbreaker.CircuitBreaker
}

// NewDonationExecutor 创建捐赠划拨执行器
func NewDonationExecutor(
	funds cache.DonorFundRedisRepository,
	donorRepo *repository.DonorRepository,
	orgRepo *repository.OrganizationRepository,
	breakerCfg *circuitbreaker.Config,
) *DonationExecutor {
	return &DonationExecutor{
		funds:     funds,
		donorRepo: donorRepo,
		orgRepo:   orgRepo,
		breaker:   circuitbreaker.New(breakerCfg),
	}
}

// Execute 执行单笔捐赠划拨
// 返回的 Outcome 总是可用的，错误通过 FailureCode 表达，调用方逐笔落库
func (e *DonationExecutor) Execute(ctx context.Context, req *DonationRequest) *DonationOutcome {
	outcome := &DonationOutcome{
		TransactionID: id.NextReference("TXN"),
		Status:        model.TransactionStatusFailed,
	}

	// 资金池故障时快速失败，避免批量执行反复冲击 Redis
	if err := e.breaker.Allow(); err != nil {
		outcome.FailureCode = FailureCodePoolUnavailable
		outcome.CompletedAt = time.Now().UnixMilli()
		logger.Warn("donation skipped, fund pool circuit open",
			zap.String("donor_id", req.DonorID),
			zap.String("org_id", req.OrgID))
		return outcome
	}

	code, err := e.move(ctx, req)
	outcome.CompletedAt = time.Now().UnixMilli()
	if err != nil {
		outcome.FailureCode = code
		// 业务拒绝不是资金池故障
		if code == FailureCodeInsufficientFunds || code == FailureCodeFundNotFound {
			e.breaker.Success()
		} else {
			e.breaker.Failure()
		}
		logger.Warn("donation transfer failed",
			zap.String("transaction_id", outcome.TransactionID),
			zap.String("donor_id", req.DonorID),
			zap.String("org_id", req.OrgID),
			zap.String("amount", req.Amount.String()),
			zap.String("failure_code", code),
			zap.Error(err))
		return outcome
	}

	e.breaker.Success()
	outcome.Status = model.TransactionStatusSucceeded
	logger.Debug("donation transferred",
		zap.String("transaction_id", outcome.TransactionID),
		zap.String("donor_id", req.DonorID),
		zap.String("org_id", req.OrgID),
		zap.String("amount", req.Amount.String()))
	return outcome
}

// move 执行资金移动，返回失败码和原始错误
func (e *DonationExecutor) move(ctx context.Context, req *DonationRequest) (string, error) {
	// 1. 原子预留，脚本内复核可用余额
	err := e.funds.Reserve(ctx, &cache.ReserveFundsRequest{
		DonorID:     req.DonorID,
		Amount:      req.Amount,
		ExecutionID: req.ExecutionID,
	})
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrRedisInsufficientFunds):
			return FailureCodeInsufficientFunds, err
		case errors.Is(err, cache.ErrRedisFundNotFound):
			return FailureCodeFundNotFound, err
		default:
			return FailureCodeTransferFailed, err
		}
	}

	// 2. 先扣数据库镜像: 镜像只允许少记不允许多记，重启预热后捐赠人不会凭空回血
	if err := e.donorRepo.AdjustBalance(ctx, req.DonorID, req.Amount.Neg()); err != nil {
		if releaseErr := e.funds.ReleaseFunds(ctx, req.DonorID, req.Amount, req.ExecutionID); releaseErr != nil {
			logger.Error("release after mirror failure failed",
				zap.String("donor_id", req.DonorID),
				zap.String("execution_id", req.ExecutionID),
				zap.Error(releaseErr))
		}
		return FailureCodeLedgerSyncFailed, err
	}

	// 3. 预留资金出池
	if err := e.funds.CommitDebit(ctx, req.DonorID, req.Amount, req.ExecutionID); err != nil {
		// 回补镜像并退回预留
		if adjErr := e.donorRepo.AdjustBalance(ctx, req.DonorID, req.Amount); adjErr != nil {
			logger.Error("mirror compensation after commit failure failed",
				zap.String("donor_id", req.DonorID),
				zap.Error(adjErr))
		}
		if releaseErr := e.funds.ReleaseFunds(ctx, req.DonorID, req.Amount, req.ExecutionID); releaseErr != nil {
			logger.Error("release after commit failure failed",
				zap.String("donor_id", req.DonorID),
				zap.String("execution_id", req.ExecutionID),
				zap.Error(releaseErr))
		}
		return FailureCodeTransferFailed, err
	}

	// 4. 机构入账镜像。资金已出池，这里失败只影响报表口径，不回滚划拨
	if err := e.orgRepo.CreditFunds(ctx, req.OrgID, req.Amount); err != nil {
		logger.Error("credit organization funds failed",
			zap.String("org_id", req.OrgID),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
	}

	return "", nil
}

// BreakerState 返回资金池熔断器状态 (健康检查用)
func (e *DonationExecutor) BreakerState() circuitbreaker.State {
	return e.breaker.State()
}
