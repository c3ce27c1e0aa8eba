package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var overrideVars = []string{
	"ENV_NAME", "STORE_PATH", "MODEL_BACKEND", "INFERENCE_URL", "INFERENCE_API_KEY",
	"CACHE_BACKEND", "MEMCACHED_ADDRS", "REDIS_ADDR", "REDIS_PASSWORD", "INGEST_DIR",
}

// clearEnv blanks every override so the files alone decide. Originals are
// restored at cleanup.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range overrideVars {
		t.Setenv(k, "")
	}
}

// unsetEnv removes key for the test so a .env file may set it.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadDir_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.TargetFish != "アジ" {
		t.Errorf("TargetFish = %q, want アジ", cfg.TargetFish)
	}
	if cfg.Location == nil || cfg.Location.String() != "Asia/Tokyo" {
		t.Errorf("Location = %v, want Asia/Tokyo", cfg.Location)
	}
	if cfg.ModelBackend != ModelLinear || cfg.MinTrainingRows != 10 || cfg.RidgeLambda != 1.0 {
		t.Errorf("model = %s/%d/%v, want linear/10/1", cfg.ModelBackend, cfg.MinTrainingRows, cfg.RidgeLambda)
	}
	if cfg.CacheBackend != "in_memory" || cfg.AveragesTTL != time.Hour {
		t.Errorf("cache = %s/%v, want in_memory/1h", cfg.CacheBackend, cfg.AveragesTTL)
	}
	if cfg.StorePath != "data/catch.db" {
		t.Errorf("StorePath = %q", cfg.StorePath)
	}
	if cfg.IngestEnabled {
		t.Error("IngestEnabled = true, want false when omitted")
	}
	if cfg.IngestPattern != "fishing_results_*.csv" || cfg.IngestSchedule != "@every 6h" {
		t.Errorf("ingest = %q/%q", cfg.IngestPattern, cfg.IngestSchedule)
	}
	if !cfg.CircuitBreakerEnabled || cfg.CircuitBreakerFailureThreshold != 5 {
		t.Errorf("breaker = %v/%d, want enabled/5", cfg.CircuitBreakerEnabled, cfg.CircuitBreakerFailureThreshold)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
}

func TestLoadDir_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")

	cfg, err := LoadDir(t.TempDir())
	if err == nil {
		t.Fatal("LoadDir() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("LoadDir() error = %v, want message about config file not found", err)
	}
}

func TestLoadDir_SelectsEnvName(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "prod")
	dir := t.TempDir()
	writeConfigFile(t, dir, "prod.yaml", "server:\n  port: \"9090\"\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090 from prod.yaml", cfg.ServerPort)
	}
}

func TestLoadDir_FileValues(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
server:
  port: "8000"
  allowed_origins: ["http://localhost:3000", " ", "https://honmoku.example"]
facility:
  timezone: "UTC"
  target_fish: "イワシ"
store:
  path: "/var/lib/catch/catch.db"
model:
  ridge_lambda: 0.5
  min_training_rows: 20
cache:
  backend: "REDIS"
  averages_ttl: "15m"
  warm_interval: "0s"
  redis:
    addr: "redis:6379"
    db: 2
ingest:
  enabled: true
  dir: "/data/results"
  schedule: "0 3 * * *"
reliability:
  circuit_breaker:
    enabled: false
`)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://honmoku.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.Location != time.UTC || cfg.TargetFish != "イワシ" {
		t.Errorf("facility = %v/%s", cfg.Location, cfg.TargetFish)
	}
	if cfg.StorePath != "/var/lib/catch/catch.db" {
		t.Errorf("StorePath = %q", cfg.StorePath)
	}
	if cfg.RidgeLambda != 0.5 || cfg.MinTrainingRows != 20 {
		t.Errorf("model = %v/%d", cfg.RidgeLambda, cfg.MinTrainingRows)
	}
	if cfg.CacheBackend != "redis" || cfg.RedisAddr != "redis:6379" || cfg.RedisDB != 2 {
		t.Errorf("cache = %s %s %d", cfg.CacheBackend, cfg.RedisAddr, cfg.RedisDB)
	}
	if cfg.AveragesTTL != 15*time.Minute {
		t.Errorf("AveragesTTL = %v, want 15m", cfg.AveragesTTL)
	}
	if cfg.WarmInterval != 0 {
		t.Errorf("WarmInterval = %v, want 0 (disabled)", cfg.WarmInterval)
	}
	if !cfg.IngestEnabled || cfg.IngestDir != "/data/results" || cfg.IngestSchedule != "0 3 * * *" {
		t.Errorf("ingest = %v %s %s", cfg.IngestEnabled, cfg.IngestDir, cfg.IngestSchedule)
	}
	if cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = true, want false")
	}
}

func TestLoadDir_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_BACKEND", "memcached")
	t.Setenv("MEMCACHED_ADDRS", "mc1:11211,mc2:11211")
	t.Setenv("STORE_PATH", "/tmp/override.db")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+`
store:
  path: "from-file.db"
cache:
  backend: "redis"
  memcached:
    addrs: "file:11211"
`)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.CacheBackend != "memcached" || cfg.MemcachedAddrs != "mc1:11211,mc2:11211" {
		t.Errorf("cache = %s %s, want env values", cfg.CacheBackend, cfg.MemcachedAddrs)
	}
	if cfg.StorePath != "/tmp/override.db" {
		t.Errorf("StorePath = %q, want env value", cfg.StorePath)
	}
}

func TestLoadDir_DotEnvFile(t *testing.T) {
	clearEnv(t)
	unsetEnv(t, "STORE_PATH")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("STORE_PATH=/srv/dotenv.db\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.StorePath != "/srv/dotenv.db" {
		t.Errorf("StorePath = %q, want value from .env", cfg.StorePath)
	}
}

func TestLoadDir_RemoteModel(t *testing.T) {
	remoteYAML := `
model:
  backend: "remote"
inference:
  url: "https://inference.example/predict"
  timeout: "8s"
request:
  timeout: "5s"
`
	t.Run("fails without api key", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		writeEnvFile(t, dir, remoteYAML)

		_, err := LoadDir(dir)
		if err == nil || !strings.Contains(err.Error(), "INFERENCE_API_KEY") {
			t.Fatalf("LoadDir() error = %v, want INFERENCE_API_KEY message", err)
		}
	})

	t.Run("key from secrets file", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		writeEnvFile(t, dir, remoteYAML)
		writeSecretsFile(t, dir, "inference_api_key: key-from-secrets-file\n")

		cfg, err := LoadDir(dir)
		if err != nil {
			t.Fatalf("LoadDir() error = %v", err)
		}
		if cfg.InferenceAPIKey != "key-from-secrets-file" {
			t.Errorf("InferenceAPIKey = %q", cfg.InferenceAPIKey)
		}
		if cfg.RequestTimeout <= cfg.InferenceTimeout {
			t.Errorf("RequestTimeout = %v not raised above InferenceTimeout %v", cfg.RequestTimeout, cfg.InferenceTimeout)
		}
	})

	t.Run("env key wins", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("INFERENCE_API_KEY", "env-key")
		dir := t.TempDir()
		writeEnvFile(t, dir, remoteYAML)
		writeSecretsFile(t, dir, "inference_api_key: key-from-secrets-file\n")

		cfg, err := LoadDir(dir)
		if err != nil {
			t.Fatalf("LoadDir() error = %v", err)
		}
		if cfg.InferenceAPIKey != "env-key" {
			t.Errorf("InferenceAPIKey = %q, want env-key", cfg.InferenceAPIKey)
		}
	})

	t.Run("zero timeout rejected", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("INFERENCE_API_KEY", "k")
		dir := t.TempDir()
		writeEnvFile(t, dir, strings.Replace(remoteYAML, `"8s"`, `"0s"`, 1))

		if _, err := LoadDir(dir); err == nil || !strings.Contains(err.Error(), "inference.timeout") {
			t.Errorf("LoadDir() error = %v, want inference.timeout message", err)
		}
	})
}

func TestLoadDir_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown cache backend", "cache:\n  backend: \"disk\"\n", "cache.backend"},
		{"unknown model backend", "model:\n  backend: \"forest\"\n", "model.backend"},
		{"remote without url", "model:\n  backend: \"remote\"\n", "inference.url"},
		{"bad timezone", "facility:\n  timezone: \"Mars/Olympus\"\n", "facility.timezone"},
		{"invalid yaml", "server: [unclosed\n", "parse config file"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			writeEnvFile(t, dir, tc.yaml)

			cfg, err := LoadDir(dir)
			if err == nil {
				t.Fatalf("LoadDir() = %+v, want error", cfg)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadDir_InvalidSecretsYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "inference_api_key: [unclosed\n")

	if _, err := LoadDir(dir); err == nil || !strings.Contains(err.Error(), "secrets") {
		t.Errorf("LoadDir() error = %v, want secrets parse error", err)
	}
}

func TestLoadDir_DurationsFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
request:
  timeout: ""
cache:
  averages_ttl: "invalid"
  coalesce_timeout: "-5s"
`)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want default 5s", cfg.RequestTimeout)
	}
	if cfg.AveragesTTL != time.Hour {
		t.Errorf("AveragesTTL = %v, want default 1h", cfg.AveragesTTL)
	}
	if cfg.CoalesceTimeout != 10*time.Second {
		t.Errorf("CoalesceTimeout = %v, want default 10s", cfg.CoalesceTimeout)
	}
}

func TestLoadDir_LifecycleConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+`
lifecycle:
  overload_window: "30s"
  overload_threshold_pct: 90
  idle_threshold_req_per_min: 3
  idle_window: "2m"
  minimum_lifespan: "1m"
  degraded_window: "60s"
  degraded_error_pct: 10
  degraded_retry_initial: "2m"
  degraded_retry_max: "15m"
`)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.OverloadWindow != 30*time.Second || cfg.OverloadThresholdPct != 90 {
		t.Errorf("overload = %v/%d", cfg.OverloadWindow, cfg.OverloadThresholdPct)
	}
	if cfg.IdleThresholdReqPerMin != 3 || cfg.IdleWindow != 2*time.Minute || cfg.MinimumLifespan != time.Minute {
		t.Errorf("idle = %d/%v/%v", cfg.IdleThresholdReqPerMin, cfg.IdleWindow, cfg.MinimumLifespan)
	}
	if cfg.DegradedErrorPct != 10 || cfg.DegradedRetryInitial != 2*time.Minute || cfg.DegradedRetryMax != 15*time.Minute {
		t.Errorf("degraded = %d/%v/%v", cfg.DegradedErrorPct, cfg.DegradedRetryInitial, cfg.DegradedRetryMax)
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadDir(findProjectRoot(t))
	if err != nil {
		t.Fatalf("LoadDir(project root) error = %v", err)
	}
	if cfg.ServerPort == "" || cfg.TargetFish == "" {
		t.Errorf("config/dev.yaml not applied: %+v", cfg)
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
request:
  timeout: "5s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	writeConfigFile(t, dir, "dev.yaml", content)
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	writeConfigFile(t, dir, "secrets.yaml", content)
}

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// findProjectRoot walks up from the working directory to the directory holding go.mod.
func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found above working directory")
		}
		dir = parent
	}
}
