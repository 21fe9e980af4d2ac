package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// newTestDB 每个测试一套独立的内存库
// 连接数限制为 1，内存库的不同连接互相看不到对方的表
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.Organization{},
		&model.Donor{},
		&model.PerformanceSnapshot{},
		&model.AllocationRequest{},
		&model.AllocationDecision{},
		&model.AllocationResult{},
		&model.DonationTransaction{},
		&model.ComplianceSnapshot{},
		&model.ComplianceAssessment{},
		&model.ComplianceAlert{},
		&model.AuditEntry{},
		&model.JobExecution{},
	)
	require.NoError(t, err)
	return db
}

func TestPagination_Defaults(t *testing.T) {
	page := NewPagination(0, 0)

	assert.Equal(t, 0, page.Offset())
	assert.Equal(t, 20, page.Limit())
}

func TestPagination_CapsPageSize(t *testing.T) {
	page := NewPagination(2, 500)

	assert.Equal(t, 100, page.Limit())
	assert.Equal(t, 100, page.Offset())
}

func TestPagination_Offset(t *testing.T) {
	page := NewPagination(3, 10)

	assert.Equal(t, 20, page.Offset())
	assert.Equal(t, 10, page.Limit())
}

func TestRepository_TransactionCommit(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	err := repo.Transaction(ctx, func(txCtx context.Context) error {
		return repo.Create(txCtx, &model.Organization{
			OrgID: "ORG-TX-COMMIT",
			Name:  "Casa di Accoglienza",
		})
	})
	require.NoError(t, err)

	org, err := repo.FindByOrgID(ctx, "ORG-TX-COMMIT")
	require.NoError(t, err)
	require.NotNil(t, org)
	assert.Equal(t, "Casa di Accoglienza", org.Name)
}

func TestRepository_TransactionRollback(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db)
	ctx := context.Background()

	err := repo.Transaction(ctx, func(txCtx context.Context) error {
		if err := repo.Create(txCtx, &model.Organization{
			OrgID: "ORG-TX-ROLLBACK",
			Name:  "Mensa Popolare",
		}); err != nil {
			return err
		}
		return errors.New("forced rollback")
	})
	require.Error(t, err)

	org, err := repo.FindByOrgID(ctx, "ORG-TX-ROLLBACK")
	require.NoError(t, err)
	assert.Nil(t, org, "回滚后不应看到事务内写入")
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.False(t, isDuplicateKeyError(nil))
	assert.False(t, isDuplicateKeyError(errors.New("connection refused")))
	assert.True(t, isDuplicateKeyError(errors.New(`duplicate key value violates unique constraint "idx_donors_donor_id"`)))
	assert.True(t, isDuplicateKeyError(errors.New("ERROR: duplicate key (SQLSTATE 23505)")))
	assert.True(t, isDuplicateKeyError(errors.New("UNIQUE constraint failed: donors.donor_id")))
}
