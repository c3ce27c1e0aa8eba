package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Model backends.
const (
	ModelLinear = "linear"
	ModelRemote = "remote"
)

// Config holds service configuration loaded from YAML, secrets and env.
type Config struct {
	ServerPort string

	Location   *time.Location
	TimeZone   string
	TargetFish string

	StorePath string

	ModelBackend    string
	RidgeLambda     float64
	MinTrainingRows int

	InferenceURL     string
	InferenceAPIKey  string
	InferenceTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	RequestTimeout time.Duration
	AllowedOrigins []string

	CacheBackend          string // "in_memory", "memcached" or "redis"
	AveragesTTL           time.Duration
	CoalesceTimeout       time.Duration
	WarmInterval          time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisTimeout          time.Duration

	IngestEnabled  bool
	IngestDir      string
	IngestPattern  string
	IngestSchedule string

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	DegradedRetryInitial   time.Duration
	DegradedRetryMax       time.Duration
}

type fileConfig struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Facility struct {
		TimeZone   string `yaml:"timezone"`
		TargetFish string `yaml:"target_fish"`
	} `yaml:"facility"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	Model struct {
		Backend         string  `yaml:"backend"`
		RidgeLambda     float64 `yaml:"ridge_lambda"`
		MinTrainingRows int     `yaml:"min_training_rows"`
	} `yaml:"model"`

	Inference struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"inference"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend         string `yaml:"backend"`
		AveragesTTL     string `yaml:"averages_ttl"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		WarmInterval    string `yaml:"warm_interval"`
		Memcached       struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr    string `yaml:"addr"`
			DB      int    `yaml:"db"`
			Timeout string `yaml:"timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Ingest struct {
		Enabled  *bool  `yaml:"enabled"`
		Dir      string `yaml:"dir"`
		Pattern  string `yaml:"pattern"`
		Schedule string `yaml:"schedule"`
	} `yaml:"ingest"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
		DegradedRetryInitial   string `yaml:"degraded_retry_initial"`
		DegradedRetryMax       string `yaml:"degraded_retry_max"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	InferenceAPIKey string `yaml:"inference_api_key"`
	RedisPassword   string `yaml:"redis_password"`
}

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir reads dir/.env (if present), dir/config/{ENV_NAME}.yaml (default
// dev) and dir/config/secrets.yaml. Environment variables override the files.
func LoadDir(dir string) (*Config, error) {
	// Existing environment variables win over .env entries.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	sec, err := loadSecrets(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.ServerPort = stringOr(fc.Server.Port, "8080")
	for _, o := range fc.Server.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	cfg.TimeZone = stringOr(fc.Facility.TimeZone, "Asia/Tokyo")
	cfg.TargetFish = stringOr(fc.Facility.TargetFish, "アジ")

	cfg.StorePath = envOr("STORE_PATH", fc.Store.Path, "data/catch.db")

	cfg.ModelBackend = strings.ToLower(envOr("MODEL_BACKEND", fc.Model.Backend, ModelLinear))
	cfg.RidgeLambda = fc.Model.RidgeLambda
	if cfg.RidgeLambda <= 0 {
		cfg.RidgeLambda = 1.0
	}
	cfg.MinTrainingRows = fc.Model.MinTrainingRows
	if cfg.MinTrainingRows <= 0 {
		cfg.MinTrainingRows = 10
	}

	cfg.InferenceURL = envOr("INFERENCE_URL", fc.Inference.URL, "")
	cfg.InferenceAPIKey = envOr("INFERENCE_API_KEY", sec.InferenceAPIKey, "")
	cfg.InferenceTimeout = parseDurationOrZero(fc.Inference.Timeout, 2*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled == nil || *cb.Enabled
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 1
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.CacheBackend = strings.ToLower(envOr("CACHE_BACKEND", fc.Cache.Backend, "in_memory"))
	cfg.AveragesTTL = parseDuration(fc.Cache.AveragesTTL, time.Hour)
	cfg.CoalesceTimeout = parseDuration(fc.Cache.CoalesceTimeout, 10*time.Second)
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 30*time.Minute)
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = envOr("REDIS_ADDR", fc.Cache.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = envOr("REDIS_PASSWORD", sec.RedisPassword, "")
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)

	cfg.IngestEnabled = fc.Ingest.Enabled != nil && *fc.Ingest.Enabled
	cfg.IngestDir = envOr("INGEST_DIR", fc.Ingest.Dir, "data/results")
	cfg.IngestPattern = stringOr(fc.Ingest.Pattern, "fishing_results_*.csv")
	cfg.IngestSchedule = stringOr(fc.Ingest.Schedule, "@every 6h")

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	lc := fc.Lifecycle
	cfg.OverloadWindow = parseDuration(lc.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = lc.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.IdleThresholdReqPerMin = lc.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.IdleWindow = parseDuration(lc.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(lc.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(lc.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = lc.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}
	cfg.DegradedRetryInitial = parseDuration(lc.DegradedRetryInitial, time.Minute)
	cfg.DegradedRetryMax = parseDuration(lc.DegradedRetryMax, 20*time.Minute)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSecrets reads the optional secrets file. A missing file is not an error.
func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// envOr returns the trimmed env var key, else fileVal, else def.
func envOr(key, fileVal, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return stringOr(fileVal, def)
}

func stringOr(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks cross-field constraints and resolves the facility timezone.
// RequestTimeout is raised above InferenceTimeout when the remote model is used.
func validate(cfg *Config) error {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("facility.timezone %q: %w", cfg.TimeZone, err)
	}
	cfg.Location = loc

	switch cfg.CacheBackend {
	case "in_memory", "memcached", "redis":
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}

	switch cfg.ModelBackend {
	case ModelLinear:
	case ModelRemote:
		if cfg.InferenceURL == "" {
			return fmt.Errorf("inference.url required when model.backend is remote")
		}
		if cfg.InferenceAPIKey == "" {
			return fmt.Errorf("INFERENCE_API_KEY required (set env or config/secrets.yaml inference_api_key)")
		}
		if cfg.InferenceTimeout <= 0 {
			return fmt.Errorf("inference.timeout must be positive")
		}
		if cfg.RequestTimeout <= cfg.InferenceTimeout {
			cfg.RequestTimeout = cfg.InferenceTimeout + time.Second
		}
	default:
		return fmt.Errorf("model.backend must be linear or remote, got %q", cfg.ModelBackend)
	}
	return nil
}
