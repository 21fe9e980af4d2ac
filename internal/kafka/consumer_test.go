package kafka

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/almoner-platform/almoner-allocation/internal/cache"
	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
)

func newSettlementConsumer(t *testing.T) (*Consumer, cache.DonorFundRedisRepository, *repository.DonorRepository) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Donor{}))

	funds := cache.NewDonorFundRedisRepository(rdb)
	donors := repository.NewDonorRepository(db)
	consumer := &Consumer{
		funds:     funds,
		donorRepo: donors,
		topic:     "donation-settlements",
	}
	return consumer, funds, donors
}

func TestConsumer_HandleSettlementCredits(t *testing.T) {
	consumer, funds, donors := newSettlementConsumer(t)
	ctx := context.Background()

	donor := &model.Donor{
		DonorID:          "DNR-001",
		Status:           model.DonorStatusActive,
		AvailableBalance: decimal.NewFromInt(100),
	}
	require.NoError(t, donors.Create(ctx, donor))
	require.NoError(t, funds.SyncFundFromDB(ctx, donor))

	payload := []byte(`{"settlement_id":"SET-001","donor_id":"DNR-001","amount":"250.50","source":"bank_transfer","settled_at":1755000000000}`)
	require.NoError(t, consumer.handleSettlement(ctx, payload))

	fund, err := funds.GetFund(ctx, "DNR-001")
	require.NoError(t, err)
	assert.Equal(t, "350.5", fund.Available.String())

	stored, err := donors.GetByDonorID(ctx, "DNR-001")
	require.NoError(t, err)
	assert.Equal(t, "350.5", stored.AvailableBalance.String())

	// 同一结算重复投递不重复入账
	require.NoError(t, consumer.handleSettlement(ctx, payload))
	fund, err = funds.GetFund(ctx, "DNR-001")
	require.NoError(t, err)
	assert.Equal(t, "350.5", fund.Available.String())
	stored, err = donors.GetByDonorID(ctx, "DNR-001")
	require.NoError(t, err)
	assert.Equal(t, "350.5", stored.AvailableBalance.String())
}

func TestConsumer_HandleSettlementCreatesFund(t *testing.T) {
	consumer, funds, _ := newSettlementConsumer(t)
	ctx := context.Background()

	// 资金池无记录的新捐赠人自动建档; 数据库镜像缺失仅告警
	payload := []byte(`{"settlement_id":"SET-010","donor_id":"DNR-NEW","amount":"40","source":"card"}`)
	require.NoError(t, consumer.handleSettlement(ctx, payload))

	fund, err := funds.GetFund(ctx, "DNR-NEW")
	require.NoError(t, err)
	assert.Equal(t, "40", fund.Available.String())
}

func TestConsumer_HandleSettlementRejectsBadPayload(t *testing.T) {
	consumer, funds, _ := newSettlementConsumer(t)
	ctx := context.Background()

	require.Error(t, consumer.handleSettlement(ctx, []byte("{not json")))

	// 缺标识或金额非法的消息直接丢弃，不算处理失败
	require.NoError(t, consumer.handleSettlement(ctx, []byte(`{"settlement_id":"","donor_id":"DNR-001","amount":"10"}`)))
	require.NoError(t, consumer.handleSettlement(ctx, []byte(`{"settlement_id":"SET-020","donor_id":"DNR-001","amount":"-5"}`)))
	require.NoError(t, consumer.handleSettlement(ctx, []byte(`{"settlement_id":"SET-021","donor_id":"DNR-001","amount":"abc"}`)))

	_, err := funds.GetFund(ctx, "DNR-001")
	assert.Error(t, err)
}
