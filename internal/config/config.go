package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	ExternalJWT ExternalJWTConfig `mapstructure:"external_jwt"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Message     MessageConfig     `mapstructure:"message"`
	Attachment  AttachmentConfig  `mapstructure:"attachment"`
	Blob        BlobConfig        `mapstructure:"blob"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MachineId      uint16   `mapstructure:"machine_id"`
}

// DatabaseConfig holds relational store configuration
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres or sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`
	SSLMode      string `mapstructure:"ssl_mode"`
	Path         string `mapstructure:"path"` // sqlite file
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN returns the data source name for the configured driver
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	case "sqlite":
		return c.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.Database, c.Charset)
	}
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// ExternalJWTConfig holds the settings for tokens minted by the marketplace identity service
type ExternalJWTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Secret      string `mapstructure:"secret"`
	DefaultRole string `mapstructure:"default_role"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	MaxConnNum       int64         `mapstructure:"max_conn_num"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	PushChannelSize  int           `mapstructure:"push_channel_size"`
	PushWorkerNum    int           `mapstructure:"push_worker_num"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
	PresenceTTL      time.Duration `mapstructure:"presence_ttl"`
}

// MessageConfig holds submission and history limits
type MessageConfig struct {
	MaxBodyLength int `mapstructure:"max_body_length"`
	PageSize      int `mapstructure:"page_size"`
	MaxPageSize   int `mapstructure:"max_page_size"`
}

// AttachmentConfig holds attachment validation limits
type AttachmentConfig struct {
	MaxSize       int64    `mapstructure:"max_size"`
	MaxPerMessage int      `mapstructure:"max_per_message"`
	AllowedTypes  []string `mapstructure:"allowed_types"`
}

// BlobConfig selects and configures the blob store
type BlobConfig struct {
	Driver          string        `mapstructure:"driver"` // s3, gcs or local
	Bucket          string        `mapstructure:"bucket"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyId     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	LocalDir        string        `mapstructure:"local_dir"`
	BaseURL         string        `mapstructure:"base_url"`
	URLExpiry       time.Duration `mapstructure:"url_expiry"`
}

// RateLimitConfig holds per-party submission limits
type RateLimitConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	SendPerSecond float64 `mapstructure:"send_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// Global config instance
var GlobalConfig *Config

// Load loads configuration from file, with TRADECHAT_* environment overrides.
// A .env file in the working directory is read first when present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TRADECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Server.MachineId == 0 {
		cfg.Server.MachineId = 1
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	if cfg.Database.Charset == "" {
		cfg.Database.Charset = "utf8mb4"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "tradechat.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 100
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "tradechat:"
	}
	if cfg.JWT.ExpireHours == 0 {
		cfg.JWT.ExpireHours = 168 // 7 days
	}
	if cfg.ExternalJWT.DefaultRole == "" {
		cfg.ExternalJWT.DefaultRole = "buyer"
	}
	if cfg.WebSocket.MaxConnNum == 0 {
		cfg.WebSocket.MaxConnNum = 10000
	}
	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 51200
	}
	if cfg.WebSocket.WriteWait == 0 {
		cfg.WebSocket.WriteWait = 10 * time.Second
	}
	if cfg.WebSocket.PongWait == 0 {
		cfg.WebSocket.PongWait = 30 * time.Second
	}
	if cfg.WebSocket.PingPeriod == 0 {
		cfg.WebSocket.PingPeriod = 27 * time.Second
	}
	if cfg.WebSocket.PushChannelSize == 0 {
		cfg.WebSocket.PushChannelSize = 10000
	}
	if cfg.WebSocket.PushWorkerNum == 0 {
		cfg.WebSocket.PushWorkerNum = 10
	}
	if cfg.WebSocket.WriteChannelSize == 0 {
		cfg.WebSocket.WriteChannelSize = 256
	}
	if cfg.WebSocket.PresenceTTL == 0 {
		cfg.WebSocket.PresenceTTL = 60 * time.Second
	}
	if cfg.Message.MaxBodyLength == 0 {
		cfg.Message.MaxBodyLength = 5000
	}
	if cfg.Message.PageSize == 0 {
		cfg.Message.PageSize = 100
	}
	if cfg.Message.MaxPageSize == 0 {
		cfg.Message.MaxPageSize = 500
	}
	if cfg.Attachment.MaxSize == 0 {
		cfg.Attachment.MaxSize = 10 << 20 // 10MB
	}
	if cfg.Attachment.MaxPerMessage == 0 {
		cfg.Attachment.MaxPerMessage = 5
	}
	if len(cfg.Attachment.AllowedTypes) == 0 {
		cfg.Attachment.AllowedTypes = []string{
			"image/jpeg", "image/png", "image/gif", "image/webp",
			"application/pdf", "text/plain",
		}
	}
	if cfg.Blob.Driver == "" {
		cfg.Blob.Driver = "local"
	}
	if cfg.Blob.LocalDir == "" {
		cfg.Blob.LocalDir = "uploads"
	}
	if cfg.Blob.URLExpiry == 0 {
		cfg.Blob.URLExpiry = time.Hour
	}
	if cfg.RateLimit.SendPerSecond == 0 {
		cfg.RateLimit.SendPerSecond = 5
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
}

func (cfg *Config) validate() error {
	switch cfg.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
	switch cfg.Blob.Driver {
	case "s3", "gcs", "local":
	default:
		return fmt.Errorf("unsupported blob driver: %s", cfg.Blob.Driver)
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if cfg.WebSocket.PingPeriod >= cfg.WebSocket.PongWait {
		return fmt.Errorf("websocket.ping_period must be less than websocket.pong_wait")
	}
	return nil
}
