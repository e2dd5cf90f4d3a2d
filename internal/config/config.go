package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server Server
	Redis  Redis
	Client Client
	Log    Log
}

// Server 상태 엔드포인트 설정
type Server struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Redis 실시간 채널 설정
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Client 세션 클라이언트 동작 설정
type Client struct {
	Username      string
	SessionName   string
	JoinCode      string
	RetryInterval time.Duration
}

// Log 로깅 설정
type Log struct {
	Level  string
	Pretty bool
}

// Load 환경 변수에서 설정 로드
func Load() *Config {
	// .env 파일 로드 (없어도 에러 무시)
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	return &Config{
		Server: Server{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: Redis{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Client: Client{
			Username:      getEnv("VTT_USERNAME", ""),
			SessionName:   getEnv("VTT_SESSION_NAME", ""),
			JoinCode:      getEnv("VTT_JOIN_CODE", ""),
			RetryInterval: getDuration("VTT_RETRY_INTERVAL", time.Second),
		},
		Log: Log{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getBool("LOG_PRETTY", false),
		},
	}
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getInt 정수 환경 변수 조회
func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️ Invalid integer for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

// getBool 불리언 환경 변수 조회
func getBool(key string, fallback bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1" || v == "yes"
}

// getDuration 기간 환경 변수 조회
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️ Invalid duration for %s: %q, using default %v", key, v, fallback)
		return fallback
	}
	return d
}
