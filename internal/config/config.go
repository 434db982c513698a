package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultMaxFileSize is the attachment limit used when MAX_FILE_SIZE is unset
const DefaultMaxFileSize = 5 * 1024 * 1024

// Config holds application configuration
type Config struct {
	// MariaDB接続設定
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// サーバー設定
	ServerPort string
	Env        string
	SeedFile   string
	LogLevel   string

	// CORS設定
	AllowedOrigins []string

	// チャットクライアント設定
	APIURL      string
	SocketURL   string
	Username    string
	Picture     string
	SellerID    string
	MaxFileSize int64
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	cfg := Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		Env:        getEnv("ENV", "development"),
		SeedFile:   os.Getenv("SEED_FILE"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Username:   os.Getenv("CHAT_USERNAME"),
		Picture:    os.Getenv("CHAT_PICTURE"),
		SellerID:   os.Getenv("CHAT_SELLER_ID"),
	}

	cfg.APIURL = strings.TrimRight(getEnv("API_URL", "http://localhost:"+cfg.ServerPort), "/")
	cfg.SocketURL = getEnv("SOCKET_URL", "ws://localhost:"+cfg.ServerPort+"/ws")

	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	cfg.AllowedOrigins = strings.Split(origins, ",")
	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}

	cfg.MaxFileSize = DefaultMaxFileSize
	if raw := os.Getenv("MAX_FILE_SIZE"); raw != "" {
		size, err := humanize.ParseBytes(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MAX_FILE_SIZE %q: %w", raw, err)
		}
		cfg.MaxFileSize = int64(size)
	}

	return cfg, nil
}

// UsesDatabase reports whether a MariaDB connection is configured
func (c Config) UsesDatabase() bool {
	return c.DBName != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
