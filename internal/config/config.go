package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret      string
	AccessTokenTTL time.Duration

	// Gemini AI
	GeminiAPIKey         string
	GeminiAnalysisModel  string
	GeminiSpeechModel    string
	GeminiVoice          string
	GeminiConcurrentReqs int
	AnalyzeTimeout       time.Duration
	SpeechTimeout        time.Duration

	// Speech output format
	SpeechSampleRate int
	SpeechChannels   int

	// History
	HistoryBackend string // "redis" | "postgres" | "memory"

	// Workers
	WorkerCount int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		DatabaseURL:          mustGetEnv("DATABASE_URL"),
		RedisURL:             mustGetEnv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		AccessTokenTTL:       time.Duration(getEnvAsIntOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15)) * time.Minute,
		GeminiAPIKey:         mustGetEnv("GEMINI_API_KEY"),
		GeminiAnalysisModel:  getEnvOrDefault("GEMINI_ANALYSIS_MODEL", "gemini-3-flash-preview"),
		GeminiSpeechModel:    getEnvOrDefault("GEMINI_SPEECH_MODEL", "gemini-2.5-flash-preview-tts"),
		GeminiVoice:          getEnvOrDefault("GEMINI_VOICE", "Kore"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		AnalyzeTimeout:       time.Duration(getEnvAsIntOrDefault("ANALYZE_TIMEOUT_SECONDS", 60)) * time.Second,
		SpeechTimeout:        time.Duration(getEnvAsIntOrDefault("SPEECH_TIMEOUT_SECONDS", 60)) * time.Second,
		SpeechSampleRate:     getEnvAsIntOrDefault("SPEECH_SAMPLE_RATE", 24000),
		SpeechChannels:       getEnvAsIntOrDefault("SPEECH_CHANNELS", 1),
		HistoryBackend:       getEnvOrDefault("HISTORY_BACKEND", "redis"),
		WorkerCount:          getEnvAsIntOrDefault("WORKER_COUNT", 5),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}

	return cfg
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.HistoryBackend {
	case "redis", "postgres", "memory":
	default:
		return fmt.Errorf("HISTORY_BACKEND must be redis, postgres or memory, got %q", c.HistoryBackend)
	}
	if c.SpeechSampleRate <= 0 || c.SpeechChannels <= 0 {
		return fmt.Errorf("SPEECH_SAMPLE_RATE and SPEECH_CHANNELS must be positive")
	}
	if c.GeminiConcurrentReqs <= 0 {
		return fmt.Errorf("GEMINI_CONCURRENT_REQUESTS must be positive")
	}
	return nil
}

// WriteTimeout bounds a synchronous response: the slower of the two AI calls
// plus a margin for encoding and the history write.
func (c *Config) WriteTimeout() time.Duration {
	return max(c.AnalyzeTimeout, c.SpeechTimeout) + 15*time.Second
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
