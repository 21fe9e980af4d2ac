package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// newTestDB 每个测试一套独立的内存库
// 连接数限制为 1，内存库的不同连接互相看不到对方的表
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
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
