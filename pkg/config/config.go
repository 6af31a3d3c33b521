package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Batch policies for rotating codes.
const (
	BatchPolicyPreApproved = "preapproved"
	BatchPolicyPerCode     = "per_code"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Rotation   RotationConfig
	Geofence   GeofenceConfig
	Ledger     LedgerConfig
	Redemption RedemptionConfig
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
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig describes how access tokens issued by the auth provider are verified.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RotationConfig tunes the teacher-side code rotation. PersistOnMint writes each code as soon
// as it is displayed so it is redeemable before its batch flushes.
type RotationConfig struct {
	Interval      time.Duration
	BatchSize     int
	BatchPolicy   string
	PersistOnMint bool
	CommitTimeout time.Duration
}

// GeofenceConfig describes the allowed campus circle.
type GeofenceConfig struct {
	Enabled   bool
	Latitude  float64
	Longitude float64
	RadiusKm  float64
}

// LedgerConfig points at the contract relayer. Missing signer or contract means the
// ledger is treated as unavailable and the service runs database-only.
type LedgerConfig struct {
	Enabled         bool
	RPCURL          string
	ContractAddress string
	SignerAddress   string
	Timeout         time.Duration
	ValidityUnit    time.Duration
	BreakerTimeout  time.Duration
	BreakerFailures uint32
}

// RedemptionConfig controls student-side submission.
type RedemptionConfig struct {
	RateLimit        int
	RateWindow       time.Duration
	TokenCache       bool
	LedgerRetries    int
	LedgerRetryDelay time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: v.GetString("JWT_AUDIENCE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Rotation = RotationConfig{
		Interval:      parseDuration(v.GetString("ROTATION_INTERVAL"), 7*time.Second),
		BatchSize:     v.GetInt("ROTATION_BATCH_SIZE"),
		BatchPolicy:   parsePolicy(v.GetString("ROTATION_BATCH_POLICY")),
		PersistOnMint: v.GetBool("ROTATION_PERSIST_ON_MINT"),
		CommitTimeout: parseDuration(v.GetString("ROTATION_COMMIT_TIMEOUT"), 30*time.Second),
	}

	cfg.Geofence = GeofenceConfig{
		Enabled:   v.GetBool("GEOFENCE_ENABLED"),
		Latitude:  v.GetFloat64("GEOFENCE_LATITUDE"),
		Longitude: v.GetFloat64("GEOFENCE_LONGITUDE"),
		RadiusKm:  v.GetFloat64("GEOFENCE_RADIUS_KM"),
	}

	cfg.Ledger = LedgerConfig{
		Enabled:         v.GetBool("LEDGER_ENABLED"),
		RPCURL:          v.GetString("LEDGER_RPC_URL"),
		ContractAddress: v.GetString("LEDGER_CONTRACT_ADDRESS"),
		SignerAddress:   v.GetString("LEDGER_SIGNER_ADDRESS"),
		Timeout:         parseDuration(v.GetString("LEDGER_TIMEOUT"), 20*time.Second),
		ValidityUnit:    parseDuration(v.GetString("LEDGER_VALIDITY_UNIT"), time.Second),
		BreakerTimeout:  parseDuration(v.GetString("LEDGER_BREAKER_TIMEOUT"), time.Minute),
		BreakerFailures: v.GetUint32("LEDGER_BREAKER_FAILURES"),
	}

	cfg.Redemption = RedemptionConfig{
		RateLimit:        v.GetInt("REDEEM_RATE_LIMIT"),
		RateWindow:       parseDuration(v.GetString("REDEEM_RATE_WINDOW"), time.Minute),
		TokenCache:       v.GetBool("TOKEN_CACHE_ENABLED"),
		LedgerRetries:    v.GetInt("REDEEM_LEDGER_RETRIES"),
		LedgerRetryDelay: parseDuration(v.GetString("REDEEM_LEDGER_RETRY_DELAY"), 5*time.Second),
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
	v.SetDefault("DB_NAME", "attendo")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "authenticated")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ROTATION_INTERVAL", "7s")
	v.SetDefault("ROTATION_BATCH_SIZE", 5)
	v.SetDefault("ROTATION_BATCH_POLICY", BatchPolicyPreApproved)
	v.SetDefault("ROTATION_PERSIST_ON_MINT", true)
	v.SetDefault("ROTATION_COMMIT_TIMEOUT", "30s")

	v.SetDefault("GEOFENCE_ENABLED", false)
	v.SetDefault("GEOFENCE_LATITUDE", 30.7690)
	v.SetDefault("GEOFENCE_LONGITUDE", 76.5785)
	v.SetDefault("GEOFENCE_RADIUS_KM", 0.2)

	v.SetDefault("LEDGER_ENABLED", false)
	v.SetDefault("LEDGER_RPC_URL", "")
	v.SetDefault("LEDGER_CONTRACT_ADDRESS", "")
	v.SetDefault("LEDGER_SIGNER_ADDRESS", "")
	v.SetDefault("LEDGER_TIMEOUT", "20s")
	v.SetDefault("LEDGER_VALIDITY_UNIT", "1s")
	v.SetDefault("LEDGER_BREAKER_TIMEOUT", "1m")
	v.SetDefault("LEDGER_BREAKER_FAILURES", 5)

	v.SetDefault("REDEEM_RATE_LIMIT", 10)
	v.SetDefault("REDEEM_RATE_WINDOW", "1m")
	v.SetDefault("TOKEN_CACHE_ENABLED", true)
	v.SetDefault("REDEEM_LEDGER_RETRIES", 3)
	v.SetDefault("REDEEM_LEDGER_RETRY_DELAY", "5s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

func parsePolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case BatchPolicyPerCode:
		return BatchPolicyPerCode
	default:
		return BatchPolicyPreApproved
	}
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file")
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
