package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// Redis key patterns
const (
	// 捐赠人资金池 key: almoner:allocation:fund:{donor_id}
	donorFundKeyPattern = "almoner:allocation:fund:%s"
	// 执行预留记录 key: almoner:allocation:reserve:{execution_id}
	reservationKeyPattern = "almoner:allocation:reserve:%s"
	// 结算入账幂等 key: almoner:allocation:settlement:{settlement_id}
	settlementKeyPattern = "almoner:allocation:settlement:%s"
	// 执行幂等 key: almoner:allocation:execution:{decision_id}
	executionKeyPattern = "almoner:allocation:execution:%s"
)

// Donor fund Redis field names
const (
	fieldAvailable = "available"
	fieldReserved  = "reserved"
	fieldVersion   = "version"
	fieldUpdatedAt = "updated_at"
)

// 幂等标记默认保留时长
const (
	DefaultSettlementTTL = 24 * time.Hour
	DefaultExecutionTTL  = 72 * time.Hour
)

var (
	ErrRedisFundNotFound        = errors.New("redis donor fund not found")
	ErrRedisInsufficientFunds   = errors.New("redis insufficient donor funds")
	ErrRedisSettlementProcessed = errors.New("redis settlement already processed")
	ErrRedisReservationNotFound = errors.New("redis reservation not found")
)

// DonorFundRedisRepository Redis 捐赠人资金池仓储接口
type DonorFundRedisRepository interface {
	// GetFund 获取资金池余额
	GetFund(ctx context.Context, donorID string) (*RedisDonorFund, error)

	// GetFundsBatch 批量获取资金池余额 (使用 Pipeline 减少 RTT)
	GetFundsBatch(ctx context.Context, donorIDs []string) ([]*RedisDonorFund, error)

	// SyncFundFromDB 从数据库同步余额到 Redis (启动预热时使用，覆盖 reserved)
	SyncFundFromDB(ctx context.Context, donor *model.Donor) error

	// Credit 增加可用余额 (结算入账之外的人工调账)
	Credit(ctx context.Context, donorID string, amount decimal.Decimal) error

	// CreditFromSettlement 捐赠结算入账 (幂等，同一结算只入账一次)
	CreditFromSettlement(ctx context.Context, req *CreditSettlementRequest) error

	// Reserve 原子预留资金 (转账前锁定额度，脚本内复核可用余额)
	Reserve(ctx context.Context, req *ReserveFundsRequest) error

	// CommitDebit 扣减已预留资金 (单笔转账成功后)
	CommitDebit(ctx context.Context, donorID string, amount decimal.Decimal, executionID string) error

	// ReleaseFunds 释放已预留资金回可用余额 (单笔转账失败后)
	ReleaseFunds(ctx context.Context, donorID string, amount decimal.Decimal, executionID string) error

	// GetReservation 获取执行预留记录
	GetReservation(ctx context.Context, executionID string) (*ReservationRecord, error)

	// ReleaseExecution 释放执行下全部剩余预留 (执行中断恢复时使用)
	ReleaseExecution(ctx context.Context, executionID string) error

	// CheckExecutionProcessed 检查决策是否已执行 (幂等检查)
	CheckExecutionProcessed(ctx context.Context, decisionID string) (bool, error)

	// MarkExecutionProcessed 标记决策已执行
	MarkExecutionProcessed(ctx context.Context, decisionID string, ttl time.Duration) error
}

// RedisDonorFund Redis 中的捐赠人资金池结构
type RedisDonorFund struct {
	DonorID   string          `json:"donor_id"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Version   int64           `json:"version"`
	UpdatedAt int64           `json:"updated_at"`
}

// Total 返回资金池总额 (可用 + 已预留)
func (f *RedisDonorFund) Total() decimal.Decimal {
	return f.Available.Add(f.Reserved)
}

// ReservationRecord 执行预留记录
// Entries 按捐赠人聚合剩余预留金额，转账逐笔 commit/release 后递减
type ReservationRecord struct {
	ExecutionID string
	Entries     map[string]decimal.Decimal
}

// TotalReserved 返回剩余预留总额
func (r *ReservationRecord) TotalReserved() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range r.Entries {
		total = total.Add(amount)
	}
	return total
}

// ReserveFundsRequest 预留资金请求
type ReserveFundsRequest struct {
	DonorID     string          // 捐赠人 ID
	Amount      decimal.Decimal // 预留金额
	ExecutionID string          // 执行 ID (预留记录按执行维度聚合)
}

// CreditSettlementRequest 捐赠结算入账请求
type CreditSettlementRequest struct {
	SettlementID string          // 结算 ID (幂等键)
	DonorID      string          // 捐赠人 ID
	Amount       decimal.Decimal // 入账金额
	TTL          time.Duration   // 幂等标记保留时长 (0 使用默认值)
}

// donorFundRedisRepository Redis 捐赠人资金池仓储实现
type donorFundRedisRepository struct {
	rdb *redis.Client
}

// NewDonorFundRedisRepository 创建 Redis 捐赠人资金池仓储
func NewDonorFundRedisRepository(rdb *redis.Client) DonorFundRedisRepository {
	return &donorFundRedisRepository{rdb: rdb}
}

// donorFundKey 生成资金池 key
func donorFundKey(donorID string) string {
	return fmt.Sprintf(donorFundKeyPattern, donorID)
}

// reservationKey 生成执行预留记录 key
func reservationKey(executionID string) string {
	return fmt.Sprintf(reservationKeyPattern, executionID)
}

// settlementKey 生成结算入账幂等 key
func settlementKey(settlementID string) string {
	return fmt.Sprintf(settlementKeyPattern, settlementID)
}

// executionKey 生成执行幂等 key
func executionKey(decisionID string) string {
	return fmt.Sprintf(executionKeyPattern, decisionID)
}

// GetFund 获取资金池余额
func (r *donorFundRedisRepository) GetFund(ctx context.Context, donorID string) (*RedisDonorFund, error) {
	key := donorFundKey(donorID)
	result, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrRedisFundNotFound
	}

	return parseRedisDonorFund(donorID, result)
}

// GetFundsBatch 批量获取资金池余额 (使用 Pipeline 减少 RTT)
// 返回所有查询到的资金池，跳过不存在的 key
func (r *donorFundRedisRepository) GetFundsBatch(ctx context.Context, donorIDs []string) ([]*RedisDonorFund, error) {
	if len(donorIDs) == 0 {
		return nil, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(donorIDs))

	for i, donorID := range donorIDs {
		cmds[i] = pipe.HGetAll(ctx, donorFundKey(donorID))
	}

	// 执行 Pipeline (单次 RTT)
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis pipeline exec failed: %w", err)
	}

	funds := make([]*RedisDonorFund, 0, len(donorIDs))
	for i, cmd := range cmds {
		result, err := cmd.Result()
		if err != nil {
			continue // 跳过错误的 key
		}
		if len(result) == 0 {
			continue // 跳过不存在的 key
		}

		fund, err := parseRedisDonorFund(donorIDs[i], result)
		if err != nil {
			continue // 跳过解析失败的 key
		}
		funds = append(funds, fund)
	}

	return funds, nil
}

// SyncFundFromDB 从数据库同步余额到 Redis
// 只应在启动预热期调用: reserved 会被清零，执行期调用会丢失在途预留
func (r *donorFundRedisRepository) SyncFundFromDB(ctx context.Context, donor *model.Donor) error {
	key := donorFundKey(donor.DonorID)
	now := time.Now().UnixMilli()

	err := r.rdb.HSet(ctx, key,
		fieldAvailable, donor.AvailableBalance.String(),
		fieldReserved, "0",
		fieldVersion, 1,
		fieldUpdatedAt, now,
	).Err()
	if err != nil {
		return fmt.Errorf("sync donor fund failed: %w", err)
	}

	return nil
}

// Credit 增加可用余额
func (r *donorFundRedisRepository) Credit(ctx context.Context, donorID string, amount decimal.Decimal) error {
	key := donorFundKey(donorID)
	now := time.Now().UnixMilli()

	script := redis.NewScript(`
		local fund_key = KEYS[1]
		local amount = ARGV[1]
		local now = ARGV[2]

		-- 确保资金池记录存在
		if redis.call('EXISTS', fund_key) == 0 then
			redis.call('HSET', fund_key,
				'available', '0',
				'reserved', '0',
				'version', '0',
				'updated_at', now
			)
		end

		redis.call('HINCRBYFLOAT', fund_key, 'available', amount)
		redis.call('HINCRBY', fund_key, 'version', 1)
		redis.call('HSET', fund_key, 'updated_at', now)

		return {'ok', 'success'}
	`)

	_, err := script.Run(ctx, r.rdb, []string{key}, amount.String(), now).Result()
	if err != nil {
		return fmt.Errorf("credit donor fund failed: %w", err)
	}

	return nil
}

// CreditFromSettlement 捐赠结算入账 (幂等)
func (r *donorFundRedisRepository) CreditFromSettlement(ctx context.Context, req *CreditSettlementRequest) error {
	fundKeyStr := donorFundKey(req.DonorID)
	settlementKeyStr := settlementKey(req.SettlementID)
	now := time.Now().UnixMilli()

	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultSettlementTTL
	}

	// Lua 脚本: 幂等检查 + 入账 + 标记结算已处理
	script := redis.NewScript(`
		local fund_key = KEYS[1]
		local settlement_key = KEYS[2]

		local amount = ARGV[1]
		local ttl = tonumber(ARGV[2])
		local now = ARGV[3]

		-- 1. 幂等检查
		if redis.call('EXISTS', settlement_key) == 1 then
			return {'err', 'settlement_processed'}
		end

		-- 2. 确保资金池记录存在
		if redis.call('EXISTS', fund_key) == 0 then
			redis.call('HSET', fund_key,
				'available', '0',
				'reserved', '0',
				'version', '0',
				'updated_at', now
			)
		end

		-- 3. 入账
		redis.call('HINCRBYFLOAT', fund_key, 'available', amount)
		redis.call('HINCRBY', fund_key, 'version', 1)
		redis.call('HSET', fund_key, 'updated_at', now)

		-- 4. 标记结算已入账
		redis.call('SETEX', settlement_key, ttl, '1')

		return {'ok', 'success'}
	`)

	result, err := script.Run(ctx, r.rdb,
		[]string{fundKeyStr, settlementKeyStr},
		req.Amount.String(), int64(ttl.Seconds()), now,
	).Result()
	if err != nil {
		return fmt.Errorf("credit settlement failed: %w", err)
	}

	if resultSlice, ok := result.([]interface{}); ok && len(resultSlice) >= 2 {
		if resultSlice[0] == "err" {
			errStr := resultSlice[1].(string)
			if errStr == "settlement_processed" {
				return ErrRedisSettlementProcessed
			}
			return errors.New(errStr)
		}
	}

	return nil
}

// Reserve 原子预留资金
// 脚本内复核可用余额，不足则整笔拒绝，预留金额同时记入执行预留记录
func (r *donorFundRedisRepository) Reserve(ctx context.Context, req *ReserveFundsRequest) error {
	fundKeyStr := donorFundKey(req.DonorID)
	reservationKeyStr := reservationKey(req.ExecutionID)
	now := time.Now().UnixMilli()

	script := redis.NewScript(`
		local fund_key = KEYS[1]
		local reserve_key = KEYS[2]

		local donor_id = ARGV[1]
		local amount = tonumber(ARGV[2])
		local now = ARGV[3]

		-- 1. 检查资金池
		if redis.call('EXISTS', fund_key) == 0 then
			return {'err', 'fund_not_found'}
		end

		local available = tonumber(redis.call('HGET', fund_key, 'available') or '0')
		if available < amount then
			return {'err', 'insufficient_funds'}
		end

		-- 2. 执行预留
		redis.call('HINCRBYFLOAT', fund_key, 'available', -amount)
		redis.call('HINCRBYFLOAT', fund_key, 'reserved', amount)
		redis.call('HINCRBY', fund_key, 'version', 1)
		redis.call('HSET', fund_key, 'updated_at', now)

		-- 3. 记入执行预留记录
		redis.call('HINCRBYFLOAT', reserve_key, donor_id, amount)

		return {'ok', 'success'}
	`)

	result, err := script.Run(ctx, r.rdb,
		[]string{fundKeyStr, reservationKeyStr},
		req.DonorID, req.Amount.String(), now,
	).Result()
	if err != nil {
		return fmt.Errorf("reserve donor funds failed: %w", err)
	}

	if resultSlice, ok := result.([]interface{}); ok && len(resultSlice) >= 2 {
		if resultSlice[0] == "err" {
			errStr := resultSlice[1].(string)
			switch errStr {
			case "fund_not_found":
				return ErrRedisFundNotFound
			case "insufficient_funds":
				return ErrRedisInsufficientFunds
			default:
				return errors.New(errStr)
			}
		}
	}

	return nil
}

// CommitDebit 扣减已预留资金 (转账成功，资金离开资金池)
func (r *donorFundRedisRepository) CommitDebit(ctx context.Context, donorID string, amount decimal.Decimal, executionID string) error {
	fundKeyStr := donorFundKey(donorID)
	reservationKeyStr := reservationKey(executionID)
	now := time.Now().UnixMilli()

	script := redis.NewScript(`
		local fund_key = KEYS[1]
		local reserve_key = KEYS[2]

		local donor_id = ARGV[1]
		local amount = tonumber(ARGV[2])
		local now = ARGV[3]

		local reserved = tonumber(redis.call('HGET', fund_key, 'reserved') or '0')
		if reserved < amount then
			return {'err', 'insufficient_reserved'}
		end

		redis.call('HINCRBYFLOAT', fund_key, 'reserved', -amount)
		redis.call('HINCRBY', fund_key, 'version', 1)
		redis.call('HSET', fund_key, 'updated_at', now)

		-- 递减执行预留记录，浮点残差视为已清零
		local remaining = tonumber(redis.call('HINCRBYFLOAT', reserve_key, donor_id, -amount))
		if remaining < 0.000001 then
			redis.call('HDEL', reserve_key, donor_id)
		end

		return {'ok', 'success'}
	`)

	result, err := script.Run(ctx, r.rdb,
		[]string{fundKeyStr, reservationKeyStr},
		donorID, amount.String(), now,
	).Result()
	if err != nil {
		return fmt.Errorf("commit debit failed: %w", err)
	}

	if resultSlice, ok := result.([]interface{}); ok && len(resultSlice) >= 2 {
		if resultSlice[0] == "err" {
			errStr := resultSlice[1].(string)
			if errStr == "insufficient_reserved" {
				return ErrRedisInsufficientFunds
			}
			return errors.New(errStr)
		}
	}

	return nil
}

// ReleaseFunds 释放已预留资金回可用余额 (转账失败或执行中断)
// 释放量按实际剩余预留截断，容忍预热重建后预留记录与资金池字段不一致
func (r *donorFundRedisRepository) ReleaseFunds(ctx context.Context, donorID string, amount decimal.Decimal, executionID string) error {
	fundKeyStr := donorFundKey(donorID)
	reservationKeyStr := reservationKey(executionID)
	now := time.Now().UnixMilli()

	script := redis.NewScript(`
		local fund_key = KEYS[1]
		local reserve_key = KEYS[2]

		local donor_id = ARGV[1]
		local amount = tonumber(ARGV[2])
		local now = ARGV[3]

		local reserved = tonumber(redis.call('HGET', fund_key, 'reserved') or '0')
		local release = amount
		if reserved < release then
			release = reserved
		end

		if release > 0 then
			redis.call('HINCRBYFLOAT', fund_key, 'reserved', -release)
			redis.call('HINCRBYFLOAT', fund_key, 'available', release)
		end
		redis.call('HINCRBY', fund_key, 'version', 1)
		redis.call('HSET', fund_key, 'updated_at', now)

		-- 递减执行预留记录，浮点残差视为已清零
		local remaining = tonumber(redis.call('HINCRBYFLOAT', reserve_key, donor_id, -amount))
		if remaining < 0.000001 then
			redis.call('HDEL', reserve_key, donor_id)
		end

		return {'ok', 'success'}
	`)

	_, err := script.Run(ctx, r.rdb,
		[]string{fundKeyStr, reservationKeyStr},
		donorID, amount.String(), now,
	).Result()
	if err != nil {
		return fmt.Errorf("release donor funds failed: %w", err)
	}

	return nil
}

// GetReservation 获取执行预留记录
func (r *donorFundRedisRepository) GetReservation(ctx context.Context, executionID string) (*ReservationRecord, error) {
	key := reservationKey(executionID)
	result, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrRedisReservationNotFound
	}

	record := &ReservationRecord{
		ExecutionID: executionID,
		Entries:     make(map[string]decimal.Decimal, len(result)),
	}
	for donorID, raw := range result {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			continue // 跳过解析失败的字段
		}
		record.Entries[donorID] = amount
	}

	return record, nil
}

// ReleaseExecution 释放执行下全部剩余预留
// 逐捐赠人释放，可重入: 中途失败后重试会从剩余记录继续
func (r *donorFundRedisRepository) ReleaseExecution(ctx context.Context, executionID string) error {
	record, err := r.GetReservation(ctx, executionID)
	if err != nil {
		if errors.Is(err, ErrRedisReservationNotFound) {
			return nil // 无剩余预留
		}
		return err
	}

	for donorID, amount := range record.Entries {
		if err := r.ReleaseFunds(ctx, donorID, amount, executionID); err != nil {
			return fmt.Errorf("release reservation for donor %s failed: %w", donorID, err)
		}
	}

	return nil
}

// CheckExecutionProcessed 检查决策是否已执行 (幂等检查)
func (r *donorFundRedisRepository) CheckExecutionProcessed(ctx context.Context, decisionID string) (bool, error) {
	key := executionKey(decisionID)
	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check execution processed failed: %w", err)
	}
	return exists == 1, nil
}

// MarkExecutionProcessed 标记决策已执行
func (r *donorFundRedisRepository) MarkExecutionProcessed(ctx context.Context, decisionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultExecutionTTL
	}
	key := executionKey(decisionID)
	if err := r.rdb.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("mark execution processed failed: %w", err)
	}
	return nil
}

// parseRedisDonorFund 解析 Redis Hash 为资金池结构
func parseRedisDonorFund(donorID string, data map[string]string) (*RedisDonorFund, error) {
	available, err := decimal.NewFromString(data[fieldAvailable])
	if err != nil {
		available = decimal.Zero
	}

	reserved, err := decimal.NewFromString(data[fieldReserved])
	if err != nil {
		reserved = decimal.Zero
	}

	var version int64 = 1
	if v, ok := data[fieldVersion]; ok {
		fmt.Sscanf(v, "%d", &version)
	}

	var updatedAt int64
	if v, ok := data[fieldUpdatedAt]; ok {
		fmt.Sscanf(v, "%d", &updatedAt)
	}

	return &RedisDonorFund{
		DonorID:   donorID,
		Available: available,
		Reserved:  reserved,
		Version:   version,
		UpdatedAt: updatedAt,
	}, nil
}
