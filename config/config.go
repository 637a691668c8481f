package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"attendgate"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"attendgate"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"atg"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置
	JWTSecret        string `env:"JWT_SECRET"` // 必填，用于签名 JWT
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"30"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置，endpoint 为空时不启用
	OTelEndpoint    string  `env:"OTEL_EXPORTER_ENDPOINT" envDefault:""`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`
	ServiceVersion  string  `env:"SERVICE_VERSION" envDefault:"0.1.0"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled   bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	AttendanceRateMax  int  `env:"ATTENDANCE_RATE_MAX" envDefault:"10"`   // 窗口内最多请求数
	AttendanceRateSecs int  `env:"ATTENDANCE_RATE_WINDOW" envDefault:"60"` // 窗口秒数

	// 考勤准入配置
	FaceMatchThreshold float64       `env:"FACE_MATCH_THRESHOLD" envDefault:"0.8"`
	FullDayMinutes     int           `env:"FULL_DAY_MINUTES" envDefault:"480"`
	OfficeTimezone     string        `env:"OFFICE_TIMEZONE" envDefault:"Local"`
	LockBackend        string        `env:"ADMISSION_LOCK_BACKEND" envDefault:"redis"` // redis, memory
	LockTTL            time.Duration `env:"ADMISSION_LOCK_TTL" envDefault:"10s"`
	LockWait           time.Duration `env:"ADMISSION_LOCK_WAIT" envDefault:"3s"`
	OfficeCacheTTL     time.Duration `env:"OFFICE_CACHE_TTL" envDefault:"10m"`
	NotifyTimeout      time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"2s"`
}

// AgentConfig 设备端（离线队列）配置
type AgentConfig struct {
	ServerURL      string        `env:"AGENT_SERVER_URL" envDefault:"http://localhost:8888"`
	Token          string        `env:"AGENT_TOKEN"`
	UserID         string        `env:"AGENT_USER_ID"`
	QueuePath      string        `env:"AGENT_QUEUE_PATH" envDefault:"attendgate-queue.db"`
	ProbeSchedule  string        `env:"AGENT_PROBE_SCHEDULE" envDefault:"@every 30s"`
	RequestTimeout time.Duration `env:"AGENT_REQUEST_TIMEOUT" envDefault:"10s"`
	MinQuality     float64       `env:"AGENT_MIN_QUALITY" envDefault:"0.5"`

	LoggerLevel  string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat string `env:"LOGGER_FORMAT" envDefault:"text"`
}

// Load 读取 .env 与环境变量，并校验服务端必填项
func Load() (*Config, error) {
	loadDotEnv()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	Cfg = cfg
	return &cfg, nil
}

// LoadAgent 读取设备端配置
func LoadAgent() (*AgentConfig, error) {
	loadDotEnv()

	cfg := AgentConfig{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse agent environment variables: %w", err)
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("AGENT_SERVER_URL is required")
	}
	return &cfg, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.FaceMatchThreshold <= 0 || c.FaceMatchThreshold > 2 {
		// 单位向量之间的欧氏距离落在 [0, 2]
		return fmt.Errorf("FACE_MATCH_THRESHOLD must be in (0, 2], got %v", c.FaceMatchThreshold)
	}

	if c.FullDayMinutes <= 0 {
		return fmt.Errorf("FULL_DAY_MINUTES must be positive")
	}

	if _, err := time.LoadLocation(c.OfficeTimezone); err != nil {
		return fmt.Errorf("OFFICE_TIMEZONE is invalid: %w", err)
	}

	switch c.LockBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("ADMISSION_LOCK_BACKEND must be redis or memory, got %q", c.LockBackend)
	}

	if c.OTelEndpoint == "" {
		log.Printf("WARN: OTEL_EXPORTER_ENDPOINT is not set, tracing and metrics export are disabled")
	}

	return nil
}

// Location 返回办公地点时区，用于判定迟到
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.OfficeTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
