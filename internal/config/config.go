package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	ServerPort    string
	JWTSecret     string
	JWTExpiry     time.Duration
	LoginLinkTTL  time.Duration
	PublicURL     string
	RedisAddr     string
	RedisPassword string
	PurgeSchedule string
	MaxElements   int
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}

	return &Config{
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "whiteboard_user"),
		DBPassword:    getEnv("DB_PASSWORD", "whiteboard_pass"),
		DBName:        getEnv("DB_NAME", "whiteboard_db"),
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		JWTSecret:     getEnv("JWT_SECRET", "supersecretkey"),
		JWTExpiry:     time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 72)) * time.Hour,
		LoginLinkTTL:  time.Duration(getEnvInt("LOGIN_LINK_TTL_MINUTES", 15)) * time.Minute,
		PublicURL:     getEnv("PUBLIC_URL", "http://localhost:3000"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		PurgeSchedule: getEnv("PURGE_SCHEDULE", "@hourly"),
		MaxElements:   getEnvInt("MAX_ELEMENTS", 5000),
	}
}

// DSN собирает строку подключения к Postgres
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using %d\n", key, value, defaultVal)
		return defaultVal
	}
	return n
}
