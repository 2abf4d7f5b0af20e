package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pharmasure/pkg/upload"
)

const (
	KVMemory   = "memory"
	KVRedis    = "redis"
	KVPostgres = "postgres"

	ProviderREST  = "rest"
	ProviderGenAI = "genai"
)

// FileConfig represents configuration loaded from YAML, then the environment.
type FileConfig struct {
	Port              string   `yaml:"port"`
	LogLevel          string   `yaml:"logLevel"`
	CORSOrigins       []string `yaml:"corsOrigins"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`

	TokenSecret string `yaml:"tokenSecret"`
	TokenTTL    string `yaml:"tokenTTL"`

	KVBackend      string `yaml:"kvBackend"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	RedisKeyPrefix string `yaml:"redisKeyPrefix"`
	DatabaseURL    string `yaml:"databaseURL"`

	GenerationProvider    string  `yaml:"generationProvider"`
	GeminiAPIKey          string  `yaml:"geminiApiKey"`
	GeminiBaseURL         string  `yaml:"geminiBaseURL"`
	GenerationModel       string  `yaml:"generationModel"`
	GenerationTemperature float32 `yaml:"generationTemperature"`
	GenerateRatePerMinute int     `yaml:"generateRateLimitPerMinute"`
	MaxUploadBytes        int64   `yaml:"maxUploadBytes"`
	SanitizeHTML          bool    `yaml:"sanitizeHTML"`

	MinioEndpoint   string `yaml:"minioEndpoint"`
	MinioAccessKey  string `yaml:"minioAccessKey"`
	MinioSecretKey  string `yaml:"minioSecretKey"`
	MinioBucket     string `yaml:"minioBucket"`
	MinioUseSSL     bool   `yaml:"minioUseSSL"`
	SourceURLExpiry string `yaml:"sourceURLExpiry"`

	LoginDelay  string `yaml:"loginDelay"`
	SignupDelay string `yaml:"signupDelay"`
	ResetDelay  string `yaml:"resetDelay"`
	ReplyDelay  string `yaml:"replyDelay"`
	OrderDelay  string `yaml:"orderDelay"`
}

// Durations are the parsed forms of the duration strings.
type Durations struct {
	TokenTTL        time.Duration
	SourceURLExpiry time.Duration
	Login           time.Duration
	Signup          time.Duration
	Reset           time.Duration
	Reply           time.Duration
	Order           time.Duration
}

func defaults() FileConfig {
	return FileConfig{
		Port:                  "8080",
		LogLevel:              "info",
		CORSOrigins:           []string{"*"},
		TokenTTL:              "12h",
		KVBackend:             KVMemory,
		RedisKeyPrefix:        "pharmasure",
		GenerationProvider:    ProviderGenAI,
		GenerationModel:       "gemini-2.5-flash",
		GenerationTemperature: 0.4,
		MaxUploadBytes:        upload.MaxSize,
		MinioBucket:           "pharmasure-uploads",
		SourceURLExpiry:       "15m",
		LoginDelay:            "800ms",
		SignupDelay:           "1s",
		ResetDelay:            "1500ms",
		ReplyDelay:            "1500ms",
		OrderDelay:            "2500ms",
	}
}

// LoadDotEnv loads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads path when given, applies environment overrides and validates.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString(&cfg.Port, "PHARMASURE_PORT")
	setString(&cfg.LogLevel, "PHARMASURE_LOG_LEVEL")
	if v := os.Getenv("PHARMASURE_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v := os.Getenv("PHARMASURE_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	setString(&cfg.TokenSecret, "PHARMASURE_TOKEN_SECRET")
	setString(&cfg.KVBackend, "PHARMASURE_KV_BACKEND")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.GenerationProvider, "PHARMASURE_GENERATION_PROVIDER")
	setString(&cfg.GenerationModel, "PHARMASURE_GENERATION_MODEL")
	setString(&cfg.GeminiBaseURL, "GEMINI_BASE_URL")
	if v := firstEnv("GEMINI_API_KEY", "API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("PHARMASURE_GENERATE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.GenerateRatePerMinute = n
		}
	}
	if v := os.Getenv("PHARMASURE_SANITIZE_HTML"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.SanitizeHTML = b
		}
	}
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required")
	}
	switch cfg.KVBackend {
	case KVMemory:
	case KVRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis kv backend")
		}
	case KVPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres kv backend")
		}
	default:
		return fmt.Errorf("config: unknown kvBackend %q", cfg.KVBackend)
	}
	switch cfg.GenerationProvider {
	case ProviderREST, ProviderGenAI:
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return errors.New("config: geminiApiKey is required (set GEMINI_API_KEY)")
	}
	if cfg.GenerateRatePerMinute < 0 {
		return errors.New("config: generateRateLimitPerMinute must be >= 0")
	}
	if cfg.GenerateRatePerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for generation rate limiting")
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("config: maxUploadBytes must be > 0")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "") {
		return errors.New("config: minioAccessKey and minioSecretKey are required with minioEndpoint")
	}
	if _, err := cfg.Durations(); err != nil {
		return err
	}
	return nil
}

// Durations parses every duration field.
func (cfg FileConfig) Durations() (Durations, error) {
	var d Durations
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"tokenTTL", cfg.TokenTTL, &d.TokenTTL},
		{"sourceURLExpiry", cfg.SourceURLExpiry, &d.SourceURLExpiry},
		{"loginDelay", cfg.LoginDelay, &d.Login},
		{"signupDelay", cfg.SignupDelay, &d.Signup},
		{"resetDelay", cfg.ResetDelay, &d.Reset},
		{"replyDelay", cfg.ReplyDelay, &d.Reply},
		{"orderDelay", cfg.OrderDelay, &d.Order},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := time.ParseDuration(f.raw)
		if err != nil || v < 0 {
			return Durations{}, fmt.Errorf("config: invalid %s %q", f.name, f.raw)
		}
		*f.dst = v
	}
	return d, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
