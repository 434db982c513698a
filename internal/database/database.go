package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"gigchat/internal/config"
	"gigchat/internal/logger"
)

// DSN builds the MySQL connection string for cfg
func DSN(cfg config.Config) string {
	c := mysql.NewConfig()
	c.User = cfg.DBUser
	c.Passwd = cfg.DBPassword
	c.Net = "tcp"
	c.Addr = cfg.DBHost + ":" + cfg.DBPort
	c.DBName = cfg.DBName
	c.ParseTime = true
	c.Loc = time.UTC
	return c.FormatDSN()
}

// Init initializes database connection
func Init(ctx context.Context, cfg config.Config, log *zap.Logger) (*sql.DB, error) {
	log = logger.OrNop(log)

	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 接続テスト
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("✅ Database connection established",
		zap.String("host", cfg.DBHost),
		zap.String("database", cfg.DBName))
	return db, nil
}
