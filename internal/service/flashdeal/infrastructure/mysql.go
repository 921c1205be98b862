// internal/service/flashdeal/infrastructure/mysql.go
package infrastructure

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenMySQL 建立 MySQL 连接并迁移表结构。
// TranslateError 必须开启，台账的幂等写入依赖 gorm.ErrDuplicatedKey。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	if err := db.AutoMigrate(&ProductModel{}, &OrderModel{}, &OrderItemModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return db, nil
}
