package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	OTP       OTPSettings       `mapstructure:"otp"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	ChallengePrefix string `mapstructure:"challenge_prefix"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the audit event producer.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type JWTSettings struct {
	KeyDirectory    string        `mapstructure:"key_directory"`
	SessionTokenTTL time.Duration `mapstructure:"session_token_ttl"`
}

// OTPSettings controls challenge lifetimes per flow.
type OTPSettings struct {
	LoginTTL        time.Duration `mapstructure:"login_ttl"`
	RegistrationTTL time.Duration `mapstructure:"registration_ttl"`
	MaxAttempts     int64         `mapstructure:"max_attempts"`
	DevLogCodes     bool          `mapstructure:"dev_log_codes"`
}

// RateLimitSettings configures sliding windows per endpoint scope.
type RateLimitSettings struct {
	RequestWindow      time.Duration `mapstructure:"request_window"`
	RequestMaxAttempts int64         `mapstructure:"request_max_attempts"`
	VerifyWindow       time.Duration `mapstructure:"verify_window"`
	VerifyMaxAttempts  int64         `mapstructure:"verify_max_attempts"`
	ResendWindow       time.Duration `mapstructure:"resend_window"`
	ResendMaxAttempts  int64         `mapstructure:"resend_max_attempts"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("CAMPUS")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.challenge_prefix",
		"redis.rate_limit_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.key_directory",
		"jwt.session_token_ttl",
		"otp.login_ttl",
		"otp.registration_ttl",
		"otp.max_attempts",
		"otp.dev_log_codes",
		"rate_limit.request_window",
		"rate_limit.request_max_attempts",
		"rate_limit.verify_window",
		"rate_limit.verify_max_attempts",
		"rate_limit.resend_window",
		"rate_limit.resend_max_attempts",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "campus-iam")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "campus")
	v.SetDefault("postgres.password", "campus_password")
	v.SetDefault("postgres.database", "campus")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.challenge_prefix", "campus:otp")
	v.SetDefault("redis.rate_limit_prefix", "campus:ratelimit")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "campus")

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.session_token_ttl", "15m")

	v.SetDefault("otp.login_ttl", "10m")
	v.SetDefault("otp.registration_ttl", "5m")
	v.SetDefault("otp.max_attempts", 5)
	v.SetDefault("otp.dev_log_codes", false)

	v.SetDefault("rate_limit.request_window", "15m")
	v.SetDefault("rate_limit.request_max_attempts", 5)
	v.SetDefault("rate_limit.verify_window", "15m")
	v.SetDefault("rate_limit.verify_max_attempts", 10)
	v.SetDefault("rate_limit.resend_window", "1m")
	v.SetDefault("rate_limit.resend_max_attempts", 3)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
