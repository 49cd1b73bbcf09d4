package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"k8s.io/klog/v2"
)

// InitDB 打开运行历史数据库并迁移表结构
// 默认使用 sqlite，dbType 为 mysql 时使用 mysql 驱动
func InitDB(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch dbType {
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&model.RunRecord{}, &model.StepRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	klog.V(6).Infof("[database.InitDB] 数据库就绪: type=%s", dbType)
	return db, nil
}

// ensureSQLiteDir 文件型 DSN 需要先创建所在目录
func ensureSQLiteDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	path := dsn
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	return nil
}
