package db

import (
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/hqkang/chatvault/internal/chat"
)

// Connect opens the database and runs the idempotent schema bootstrap.
// "sqlite" (default) keeps everything in a single file with WAL journaling;
// "mysql" is for deployments that already run one.
func Connect(driver, dsn string) *gorm.DB {
	var dial gorm.Dialector
	switch driver {
	case "", "sqlite":
		dial = sqlite.Open(dsn + "?_pragma=journal_mode(WAL)")
	case "mysql":
		dial = mysql.Open(dsn)
	default:
		log.Fatalf("unsupported DB_DRIVER=%q", driver)
	}

	gdb, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}

	if err := gdb.AutoMigrate(&chat.Session{}, &chat.Message{}, &chat.ExportJob{}); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}
