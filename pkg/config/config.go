package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Planner  PlannerConfig
	Solver   SolverConfig
	Plans    PlansConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PlannerConfig carries the objective weights and the session calendar.
type PlannerConfig struct {
	Sessions            []string
	PrefReward          float64
	VetoPenalty         float64
	DeviationWeight     float64
	ExtraNeutralPenalty float64
	HardVetoes          bool
}

// SolverConfig selects and bounds the MILP backend.
type SolverConfig struct {
	Backend   string
	TimeLimit time.Duration
	MaxNodes  int
}

// PlansConfig configures asynchronous plan runs and their result files.
type PlansConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
	MaxUploadBytes    int64
	SummaryCacheTTL   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{
		Env:       v.GetString("ENV"),
		Port:      v.GetInt("PORT"),
		APIPrefix: v.GetString("API_PREFIX"),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Planner = PlannerConfig{
		Sessions:            splitAndTrim(v.GetString("PLANNER_SESSIONS")),
		PrefReward:          v.GetFloat64("PLANNER_PREF_REWARD"),
		VetoPenalty:         v.GetFloat64("PLANNER_VETO_PENALTY"),
		DeviationWeight:     v.GetFloat64("PLANNER_DEVIATION_WEIGHT"),
		ExtraNeutralPenalty: v.GetFloat64("PLANNER_EXTRA_NEUTRAL_PENALTY"),
		HardVetoes:          v.GetBool("PLANNER_HARD_VETOES"),
	}

	cfg.Solver = SolverConfig{
		Backend:   v.GetString("SOLVER_BACKEND"),
		TimeLimit: parseDuration(v.GetString("SOLVER_TIME_LIMIT"), 300*time.Second),
		MaxNodes:  v.GetInt("SOLVER_MAX_NODES"),
	}

	maxUpload := v.GetInt64("PLANS_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	cfg.Plans = PlansConfig{
		StorageDir:        v.GetString("PLANS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("PLANS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("PLANS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("PLANS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("PLANS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("PLANS_WORKER_RETRIES"),
		MaxUploadBytes:    maxUpload,
		SummaryCacheTTL:   parseDuration(v.GetString("PLANS_SUMMARY_CACHE_TTL"), 10*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "activity_planner")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "activity-planner")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PLANNER_SESSIONS", "Monday AM,Monday PM,Tuesday AM,Tuesday PM,Wednesday AM")
	v.SetDefault("PLANNER_PREF_REWARD", 10)
	v.SetDefault("PLANNER_VETO_PENALTY", 1000)
	v.SetDefault("PLANNER_DEVIATION_WEIGHT", 1)
	v.SetDefault("PLANNER_EXTRA_NEUTRAL_PENALTY", 25)
	v.SetDefault("PLANNER_HARD_VETOES", false)

	v.SetDefault("SOLVER_BACKEND", "branchbound")
	v.SetDefault("SOLVER_TIME_LIMIT", "300s")
	v.SetDefault("SOLVER_MAX_NODES", 0)

	v.SetDefault("PLANS_STORAGE_DIR", "./plans")
	v.SetDefault("PLANS_SIGNED_URL_SECRET", "dev_plans_secret")
	v.SetDefault("PLANS_SIGNED_URL_TTL", "24h")
	v.SetDefault("PLANS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("PLANS_WORKER_CONCURRENCY", 1)
	v.SetDefault("PLANS_WORKER_RETRIES", 3)
	v.SetDefault("PLANS_MAX_UPLOAD_BYTES", 5*1024*1024)
	v.SetDefault("PLANS_SUMMARY_CACHE_TTL", "10m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
