// Package config loads bridge process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AuthorizationConfig is the Authorizer's decision-table input (spec §4.13).
type AuthorizationConfig struct {
	Mode            string // disabled|open|allowlist|tenant-only
	AllowFrom       []string
	AllowedTenants  []string
	AllowPSTN       bool
}

// StreamingConfig covers chunked-mode tuning (spec §3, §4.6-§4.8).
type StreamingConfig struct {
	STTModel            string
	SilenceDurationMs   int
	VADThreshold        float64
	SentenceMinChars    int
	SentenceMaxChars    int
	MaxParallelTTS      int
	JitterBufferFrames  int
}

// TTSConfig covers the TTS Adapter (spec §4.5).
type TTSConfig struct {
	Model        string
	Voice        string
	Speed        float64
	Instructions string
}

type Config struct {
	AppEnv  string
	AppPort string
	TZ      string

	// Control-plane auth (SPEC_FULL §11, §13) - distinct from bridge.secret.
	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	AccessTTLMin int

	// bridge.secret (spec §3, §4.1). Required, >= 32 chars.
	BridgeSecret string
	ServePort    string
	ServeBind    string
	ServePath    string

	InboundEnabled  bool
	InboundGreeting string

	OutboundEnabled     bool
	OutboundRingTimeoutMs int
	OutboundDefaultMode string // notify|conversation

	TTS        TTSConfig
	Streaming  StreamingConfig
	Authz      AuthorizationConfig

	MaxConcurrentCalls int
	MaxDurationSeconds int

	ResponseModel        string
	ResponseSystemPrompt string
	ResponseTimeoutMs    int

	RedisURL string

	MongoURI string
	DBName   string

	SpeechAPIKey string // the one cloud-speech credential named in spec §6 "Environment"

	StorageDriver string

	LogLevel string

	OTELEndpoint string
	OTELEnabled  bool

	CORSAllowedOrigins string
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		AppPort: getEnv("APP_PORT", "8080"),
		TZ:     getEnv("TZ", "UTC"),

		JWTSecret:    getEnv("CONTROL_JWT_SECRET", ""),
		JWTIssuer:    getEnv("CONTROL_JWT_ISSUER", "vocal-bridge"),
		JWTAudience:  getEnv("CONTROL_JWT_AUDIENCE", "vocal-bridge-admin"),
		AccessTTLMin: getEnvInt("CONTROL_ACCESS_TTL_MIN", 15),

		BridgeSecret: mustGetEnv("BRIDGE_SECRET"),
		ServePort:    getEnv("SERVE_PORT", "8080"),
		ServeBind:    getEnv("SERVE_BIND", "0.0.0.0"),
		ServePath:    getEnv("SERVE_PATH", "/bridge"),

		InboundEnabled:  getEnvBool("INBOUND_ENABLED", true),
		InboundGreeting: getEnv("INBOUND_GREETING", "Hello, how can I help you today?"),

		OutboundEnabled:       getEnvBool("OUTBOUND_ENABLED", false),
		OutboundRingTimeoutMs: getEnvInt("OUTBOUND_RING_TIMEOUT_MS", 30000),
		OutboundDefaultMode:   getEnv("OUTBOUND_DEFAULT_MODE", "conversation"),

		TTS: TTSConfig{
			Model:        getEnv("TTS_MODEL", "tts-1-hd"),
			Voice:        getEnv("TTS_VOICE", "shimmer"),
			Speed:        getEnvFloat("TTS_SPEED", 1.0),
			Instructions: getEnv("TTS_INSTRUCTIONS", ""),
		},

		Streaming: StreamingConfig{
			STTModel:           getEnv("STREAMING_STT_MODEL", "nova-2"),
			SilenceDurationMs:  clampInt(getEnvInt("STREAMING_SILENCE_DURATION_MS", 700), 100, 5000),
			VADThreshold:       clampFloat(getEnvFloat("STREAMING_VAD_THRESHOLD", 0.5), 0, 1),
			SentenceMinChars:   clampInt(getEnvInt("STREAMING_SENTENCE_MIN_CHARS", 20), 10, 200),
			SentenceMaxChars:   clampInt(getEnvInt("STREAMING_SENTENCE_MAX_CHARS", 200), 50, 500),
			MaxParallelTTS:     clampInt(getEnvInt("STREAMING_MAX_PARALLEL_TTS", 3), 1, 5),
			JitterBufferFrames: clampInt(getEnvInt("STREAMING_JITTER_BUFFER_FRAMES", 25), 10, 100),
		},

		Authz: AuthorizationConfig{
			Mode:           getEnv("AUTHORIZATION_MODE", "disabled"),
			AllowFrom:      splitCSV(getEnv("AUTHORIZATION_ALLOW_FROM", "")),
			AllowedTenants: splitCSV(getEnv("AUTHORIZATION_ALLOWED_TENANTS", "")),
			AllowPSTN:      getEnvBool("AUTHORIZATION_ALLOW_PSTN", false),
		},

		MaxConcurrentCalls: clampInt(getEnvInt("MAX_CONCURRENT_CALLS", 5), 1, 100),
		MaxDurationSeconds: clampInt(getEnvInt("MAX_DURATION_SECONDS", 3600), 60, 86400),

		ResponseModel:        getEnv("RESPONSE_MODEL", "gpt-4o-mini"),
		ResponseSystemPrompt: getEnv("RESPONSE_SYSTEM_PROMPT", "You are a helpful, concise voice assistant."),
		ResponseTimeoutMs:    getEnvInt("RESPONSE_TIMEOUT_MS", 8000),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "vocalbridge"),

		SpeechAPIKey: getEnv("SPEECH_API_KEY", ""),

		StorageDriver: getEnv("STORAGE_DRIVER", "none"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
	}

	if len(cfg.BridgeSecret) < 32 {
		return nil, fmt.Errorf("BRIDGE_SECRET must be at least 32 characters, got %d", len(cfg.BridgeSecret))
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", cfg.TZ, err)
	}
	time.Local = loc

	return cfg, nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}
