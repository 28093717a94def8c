package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreBolt     = "bolt"

	BlobS3    = "s3"
	BlobLocal = "local"

	RealtimeLive = "live"
	RealtimeNull = "null"
)

type Config struct {
	AppPort string
	AppMode string
	LogMode string

	StoreDriver string
	BoltPath    string
	DBHost      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPort      string

	JWTSecret      string
	JWTExpiryHours int

	RedisEnabled     bool
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	MessageRateLimit int

	BlobDriver        string
	UploadsPath       string
	UploadsPublicBase string
	MaxBodyBytes      int64
	S3Region          string
	S3Bucket          string
	S3AccessKey       string
	S3SecretKey       string
	S3Endpoint        string
	S3PublicBase      string
	S3ACL             string

	RealtimeMode     string
	TypingTimeout    time.Duration
	WSTrustHandshake bool
	CORSOrigins      []string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort: getEnv("APP_PORT", "8080"),
		AppMode: getEnv("APP_MODE", "debug"),
		LogMode: getEnv("LOG_MODE", "development"),

		StoreDriver: getEnv("STORE_DRIVER", StorePostgres),
		BoltPath:    getEnv("BOLT_PATH", "duochat.db"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "duochat"),
		DBPort:      getEnv("DB_PORT", "5432"),

		JWTSecret:      getEnv("JWT_SECRET", "change-me"),
		JWTExpiryHours: getEnvAsInt("JWT_EXPIRY_HOURS", 24*7),

		RedisEnabled:     getEnvAsBool("REDIS_ENABLED", false),
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),
		MessageRateLimit: getEnvAsInt("MESSAGE_RATE_LIMIT", 60),

		BlobDriver:        getEnv("BLOB_DRIVER", BlobLocal),
		UploadsPath:       getEnv("UPLOADS_PATH", "uploads"),
		UploadsPublicBase: getEnv("UPLOADS_PUBLIC_BASE", "/uploads"),
		MaxBodyBytes:      int64(getEnvAsInt("MAX_BODY_BYTES", 4<<20)),
		S3Region:          getEnv("S3_REGION", ""),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3PublicBase:      getEnv("S3_PUBLIC_BASE", ""),
		S3ACL:             getEnv("S3_ACL", ""),

		RealtimeMode:     getEnv("REALTIME_MODE", RealtimeLive),
		TypingTimeout:    getEnvAsDuration("TYPING_TIMEOUT", 3*time.Second),
		WSTrustHandshake: getEnvAsBool("WS_TRUST_HANDSHAKE", false),
		CORSOrigins:      getEnvAsList("CORS_ORIGINS", []string{"*"}),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
