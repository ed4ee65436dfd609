package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/config"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/model"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// DB 全局数据库实例
	DB *gorm.DB
)

// Init 初始化数据库连接
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := openDialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, newGormConfig(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 获取底层sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// 测试连接
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connected successfully",
		zap.String("driver", cfg.Driver),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
	)

	// 设置全局DB
	DB = db

	return db, nil
}

// openDialector 根据驱动名称选择方言
func openDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// newGormConfig 创建GORM配置
func newGormConfig(level string) *gorm.Config {
	var logLevel logger.LogLevel
	switch level {
	case "silent":
		logLevel = logger.Silent
	case "error":
		logLevel = logger.Error
	case "info":
		logLevel = logger.Info
	default:
		logLevel = logger.Warn
	}

	return &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// 唯一索引冲突统一转换为 gorm.ErrDuplicatedKey
		TranslateError: true,
		// 禁用外键约束，由应用层保证数据一致性
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

// OpenSQLite 打开SQLite数据库，用于测试与单机部署
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), newGormConfig("silent"))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return db, nil
}

// AutoMigrate 自动迁移数据库表结构，并准备包序号序列与最后修改时间
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	models := []interface{}{
		&model.Package{},
		&model.PackageVersion{},
		&model.Dependency{},
		&model.UpdateTime{},
		&model.PackageIDSequence{},
		&model.AuditLog{},
	}

	// 逐个迁移每个模型，这样一个模型的错误不会影响其他模型
	for _, m := range models {
		if err := migrateModel(db, m, log); err != nil {
			return err
		}
	}

	if err := ensureSequence(db); err != nil {
		return fmt.Errorf("failed to create package id sequence: %w", err)
	}

	return seedLastModified(db)
}

// migrateModel 迁移单个模型
// MySQL 下 GORM 偶尔会尝试删除不存在的约束，这类错误可以忽略
func migrateModel(db *gorm.DB, m interface{}, log *zap.Logger) error {
	err := db.AutoMigrate(m)
	if err == nil {
		return nil
	}

	if db.Dialector.Name() == "mysql" && isMissingConstraintError(err) {
		if log != nil {
			log.Warn("ignoring drop of non-existent constraint during migration",
				zap.String("model", fmt.Sprintf("%T", m)),
				zap.Error(err))
		}
		return nil
	}

	return fmt.Errorf("failed to migrate %T: %w", m, err)
}

// isMissingConstraintError 判断是否为 "Can't DROP ...; check that column/key exists"
func isMissingConstraintError(err error) bool {
	msg := err.Error()
	if !strings.Contains(msg, "Can't DROP") {
		return false
	}
	return strings.Contains(msg, "check that column/key exists") ||
		strings.Contains(msg, "Unknown key")
}

// ensureSequence PostgreSQL 下创建原生序列，其它数据库使用序列表
func ensureSequence(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return db.Exec(fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s START 1", model.PackageIDSequenceName)).Error
}

// seedLastModified 确保最后修改时间行存在
func seedLastModified(db *gorm.DB) error {
	var marker model.UpdateTime
	err := db.First(&marker, model.UpdateTimeID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load last modified marker: %w", err)
	}

	marker = model.UpdateTime{
		ID:                  model.UpdateTimeID,
		PackageLastModified: time.Now().UTC(),
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker).Error
}

// Close 关闭数据库连接
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
