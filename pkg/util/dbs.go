package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDatabase 按驱动打开数据库并迁移给定模型
func InitDatabase(driver, dsn string, models ...any) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}
	db, err := createDatabaseInstance(cfg, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName(driver), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driverName(driver) == "sqlite" {
		// sqlite 单写者
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return db, nil
}

func createDatabaseInstance(cfg *gorm.Config, driver, dsn string) (*gorm.DB, error) {
	switch driverName(driver) {
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "pg":
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	if dsn == "" {
		dsn = "file::memory:"
	} else if !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

func driverName(driver string) string {
	switch strings.ToLower(driver) {
	case "mysql":
		return "mysql"
	case "pg", "postgres", "postgresql":
		return "pg"
	default:
		return "sqlite"
	}
}
