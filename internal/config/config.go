package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret       string
	ExtensionAPIKey string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	AITimeout     time.Duration

	ReaperInterval     time.Duration
	ReaperReadyTimeout time.Duration
	ReaperBatchSize    int

	ExtensionRateLimit float64
	ExtensionRateBurst int

	LogLevel string

	Queue QueuePolicy
}

// QueuePolicy holds the retry/lock tunables of the action queue. Defaults can be
// overridden by the YAML file named in QUEUE_POLICY_FILE.
type QueuePolicy struct {
	MaxAttempts        int           `yaml:"max_attempts"`
	StaleLockThreshold time.Duration `yaml:"stale_lock_threshold"`
	ClaimBatchSize     int           `yaml:"claim_batch_size"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	Retryable          []string      `yaml:"retryable"`
	NonRetryable       []string      `yaml:"non_retryable"`
	UnknownRetryable   bool          `yaml:"unknown_retryable"`
}

func DefaultQueuePolicy() QueuePolicy {
	return QueuePolicy{
		MaxAttempts:        5,
		StaleLockThreshold: 5 * time.Minute,
		ClaimBatchSize:     5,
		MaxBackoff:         60 * time.Minute,
		Retryable:          []string{"TEMP_DOM_FAIL", "NETWORK", "RATE_LIMIT"},
		NonRetryable:       []string{"AUTH_REQUIRED", "CHECKPOINT", "PERMISSION_DENIED"},
		UnknownRetryable:   true,
	}
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var missing []error
	required := func(key string) string {
		v, err := mustGetenv(key)
		if err != nil {
			missing = append(missing, err)
		}
		return v
	}

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          required("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",

		JWTSecret:       required("JWT_SECRET"),
		ExtensionAPIKey: required("EXTENSION_API_KEY"),

		OpenAIAPIKey:  getenv("OPENAI_API_KEY", ""),
		OpenAIModel:   getenv("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL: getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		LogLevel: strings.ToLower(getenv("LOG_LEVEL", "info")),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	var err error
	if cfg.AITimeout, err = durationEnv("AI_TIMEOUT", 30*time.Second); err != nil {
		missing = append(missing, err)
	}
	if cfg.ReaperInterval, err = durationEnv("REAPER_INTERVAL", 2*time.Minute); err != nil {
		missing = append(missing, err)
	}
	if cfg.ReaperReadyTimeout, err = durationEnv("REAPER_READY_TIMEOUT", 30*time.Second); err != nil {
		missing = append(missing, err)
	}
	if cfg.ReaperBatchSize, err = intEnv("REAPER_BATCH_SIZE", 100); err != nil {
		missing = append(missing, err)
	}
	if cfg.ExtensionRateBurst, err = intEnv("EXTENSION_RATE_BURST", 20); err != nil {
		missing = append(missing, err)
	}
	rps, err := strconv.ParseFloat(getenv("EXTENSION_RATE_LIMIT", "5"), 64)
	if err != nil {
		missing = append(missing, fmt.Errorf("invalid env EXTENSION_RATE_LIMIT: %w", err))
	}
	cfg.ExtensionRateLimit = rps

	cfg.Queue = DefaultQueuePolicy()
	if path := getenv("QUEUE_POLICY_FILE", ""); path != "" {
		if cfg.Queue, err = LoadQueuePolicy(path, cfg.Queue); err != nil {
			missing = append(missing, err)
		}
	}

	if len(missing) > 0 {
		return cfg, errors.Join(missing...)
	}
	return cfg, nil
}

// LoadQueuePolicy overlays the YAML file at path onto base. Keys absent from the
// file keep their base value.
func LoadQueuePolicy(path string, base QueuePolicy) (QueuePolicy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read queue policy: %w", err)
	}
	p := base
	if err := yaml.Unmarshal(b, &p); err != nil {
		return base, fmt.Errorf("parse queue policy %s: %w", path, err)
	}
	if p.MaxAttempts < 1 {
		return base, fmt.Errorf("queue policy: max_attempts must be >= 1")
	}
	if p.ClaimBatchSize < 1 {
		return base, fmt.Errorf("queue policy: claim_batch_size must be >= 1")
	}
	if p.StaleLockThreshold <= 0 || p.MaxBackoff <= 0 {
		return base, fmt.Errorf("queue policy: durations must be positive")
	}
	return p, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", errors.New("missing env: " + key)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def, fmt.Errorf("invalid env %s: %q", key, v)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def, fmt.Errorf("invalid env %s: %q", key, v)
	}
	return n, nil
}
