package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Redis 故障路径走 redismock，miniredis 模拟不了命令级错误

func TestDonorFundRedis_GetFundRedisDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewDonorFundRedisRepository(db)
	ctx := context.Background()

	mock.ExpectHGetAll("almoner:allocation:fund:DNR-900").SetErr(errors.New("connection refused"))

	fund, err := repo.GetFund(ctx, "DNR-900")
	require.Error(t, err)
	assert.Nil(t, fund)
	assert.Contains(t, err.Error(), "redis hgetall failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorFundRedis_GetFundParsesHash(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewDonorFundRedisRepository(db)
	ctx := context.Background()

	mock.ExpectHGetAll("almoner:allocation:fund:DNR-901").SetVal(map[string]string{
		"available":  "1500.50",
		"reserved":   "200",
		"version":    "7",
		"updated_at": "1700000000000",
	})

	fund, err := repo.GetFund(ctx, "DNR-901")
	require.NoError(t, err)
	assert.Equal(t, "DNR-901", fund.DonorID)
	assert.Equal(t, "1500.5", fund.Available.String())
	assert.Equal(t, "200", fund.Reserved.String())
	assert.Equal(t, int64(7), fund.Version)
	assert.Equal(t, "1700.5", fund.Total().String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorFundRedis_CheckExecutionProcessedRedisDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewDonorFundRedisRepository(db)
	ctx := context.Background()

	mock.ExpectExists("almoner:allocation:execution:AD-900").SetErr(errors.New("connection refused"))

	processed, err := repo.CheckExecutionProcessed(ctx, "AD-900")
	require.Error(t, err)
	assert.False(t, processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
