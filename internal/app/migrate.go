package app

import (
	"gorm.io/gorm"

	"github.com/almoner-platform/almoner-allocation/migrations"
	"github.com/almoner-platform/almoner-allocation/pkg/logger"
	"github.com/almoner-platform/almoner-allocation/pkg/migrate"
)

// AutoMigrate 自动执行数据库迁移
func AutoMigrate(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	migrator := migrate.NewMigrator(sqlDB, "almoner-allocation", logger.L())
	if err := migrator.AutoMigrate(migrations.FS, "."); err != nil {
		logger.Error("auto migration failed", "error", err)
		return err
	}

	return nil
}
