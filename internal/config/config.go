package config

import (
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LedgerBaseURL string
	LedgerToken   string
	FeedURL       string
}

func Load() Config {
	return Config{
		Port:          getEnv("PORT", "8080"),
		RedisAddr:     getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		LedgerBaseURL: getEnv("LEDGER_URL", "http://localhost:9000"),
		LedgerToken:   getEnv("LEDGER_TOKEN", ""),
		FeedURL:       getEnv("FEED_URL", "wss://stream.binance.com:9443/ws/btcusdt@trade"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
