package models

import (
	"fmt"

	"github.com/freelancehub/backend/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig, logLevel string) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormLevel := logger.Warn
	if logLevel == "debug" {
		gormLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

// AllModels lists every persisted record, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Project{},
		&Milestone{},
		&MilestoneRevision{},
		&ProjectComment{},
		&Task{},
		&TimeSession{},
		&Contract{},
		&Invoice{},
		&InvoiceLineItem{},
		&InvoiceSequence{},
		&Invitation{},
		&PaymentReminderSettings{},
		&PaymentReminderRecord{},
		&Transaction{},
		&AuditLog{},
		&Notification{},
		&StoredFile{},
		&SchedulerLock{},
		&RefreshToken{},
	}
}

func AutoMigrate() error {
	return Migrate(DB)
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

func GetDB() *gorm.DB {
	return DB
}
