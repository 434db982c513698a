package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"gigchat/internal/config"
	"gigchat/internal/database"
	"gigchat/internal/handler"
	"gigchat/internal/logger"
	"gigchat/internal/store"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  .env file not found, using default values: %v", err)
	}

	// 環境変数を読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("❌ Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	ctx := context.Background()

	// メッセージストアを初期化（DB_NAME 未設定ならメモリ）
	var messages store.MessageStore = store.NewMemory()
	if cfg.UsesDatabase() {
		db, err := database.Init(ctx, cfg, zl)
		if err != nil {
			zl.Fatal("❌ Failed to initialize database", zap.Error(err))
		}
		mysqlStore := store.NewMySQL(db, zl)
		if err := mysqlStore.Migrate(ctx); err != nil {
			zl.Fatal("❌ Failed to migrate database", zap.Error(err))
		}
		messages = mysqlStore
	}
	defer messages.Close()

	seed := store.Seed{}
	if cfg.SeedFile != "" {
		if seed, err = store.LoadSeed(cfg.SeedFile); err != nil {
			zl.Fatal("❌ Failed to load seed file", zap.Error(err))
		}
	}

	// ハンドラー初期化
	h := handler.New(messages, store.NewDirectory(seed), cfg, zl)

	// WebSocket ブロードキャスターを開始
	go h.HandleBroadcast()

	router := h.SetupRouter()

	// CORS対応
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS", "PUT"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	httpHandler := c.Handler(router)

	fmt.Println("========================================")
	fmt.Println("  Gigchat Dev Server")
	fmt.Println("========================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Server: http://localhost:%s\n", cfg.ServerPort)
	fmt.Printf("  WebSocket: ws://localhost:%s/ws\n", cfg.ServerPort)
	fmt.Printf("  Metrics: http://localhost:%s/metrics\n", cfg.ServerPort)
	if cfg.UsesDatabase() {
		fmt.Printf("  Database: %s@%s:%s/%s\n", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	} else {
		fmt.Println("  Database: in-memory")
	}
	fmt.Printf("  Seed: %d buyers, %d gigs\n", len(seed.Buyers), len(seed.Gigs))
	fmt.Printf("  Allowed Origins: %v\n", cfg.AllowedOrigins)
	fmt.Println("========================================")
	zl.Info("🚀 Server started successfully", zap.String("port", cfg.ServerPort))
	if err := http.ListenAndServe(":"+cfg.ServerPort, httpHandler); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}
