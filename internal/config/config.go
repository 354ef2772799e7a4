package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/nemonet1337/zaiWarehouse/pkg/inventory"
)

// Config holds application configuration
// アプリケーション設定を保持
type Config struct {
	Database DatabaseConfig `yaml:"db"`
	API      APIConfig      `yaml:"api"`
	Advisory AdvisoryConfig `yaml:"advisory"`
	Lock     LockConfig     `yaml:"lock"`
	Op       OpConfig       `yaml:"op"`
	Retry    RetryConfig    `yaml:"retry"`
	PO       POConfig       `yaml:"po"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds database configuration.
// URL takes precedence over the individual connection fields.
// データベース設定を保持
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// APIConfig holds API server configuration
// APIサーバー設定を保持
type APIConfig struct {
	Port          int           `yaml:"port"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	EnableCORS    bool          `yaml:"enable_cors"`
	EnableMetrics bool          `yaml:"enable_metrics"`
}

// AdvisoryConfig holds the advisory service settings. An empty URL disables it.
// アドバイザリサービス設定（URLが空なら無効）
type AdvisoryConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"` // 0は定期スイープ無効
}

// LockConfig holds row lock settings
type LockConfig struct {
	WaitMS int `yaml:"wait_ms"`
}

// OpConfig holds per-operation settings
type OpConfig struct {
	DeadlineMS int `yaml:"deadline_ms"`
}

// RetryConfig holds retry settings
type RetryConfig struct {
	Max int `yaml:"max"`
}

// POConfig holds purchase order settings
// 発注書設定を保持
type POConfig struct {
	Sequence struct {
		PersistKey string `yaml:"persist_key"`
	} `yaml:"sequence"`
	DefaultReceivingWarehouseID int64 `yaml:"default_receiving_warehouse_id"`
}

// LoggingConfig holds logging configuration
// ログ設定を保持
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// Default returns the built-in configuration
// 既定の設定を返す
func Default() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "inventory",
			DBName:  "inventory_db",
			SSLMode: "disable",
		},
		API: APIConfig{
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			IdleTimeout:   60 * time.Second,
			EnableCORS:    true,
			EnableMetrics: true,
		},
		Advisory: AdvisoryConfig{Timeout: 5 * time.Second},
		Lock:     LockConfig{WaitMS: 5000},
		Op:       OpConfig{DeadlineMS: 10000},
		Retry:    RetryConfig{Max: 3},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
	cfg.PO.Sequence.PersistKey = "purchase_order_number"
	return cfg
}

// Load reads .env, then the YAML file named by CONFIG_FILE, then environment overrides
// .env、CONFIG_FILEのYAML、環境変数の順に設定を読み込み
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(".envの読み込みに失敗しました: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	// バリデーション
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定バリデーションに失敗しました: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗しました %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Database.URL = getEnv("DB_URL", c.Database.URL)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.API.Port = getEnvAsInt("API_PORT", c.API.Port)
	c.API.ReadTimeout = getEnvAsDuration("API_READ_TIMEOUT", c.API.ReadTimeout)
	c.API.WriteTimeout = getEnvAsDuration("API_WRITE_TIMEOUT", c.API.WriteTimeout)
	c.API.IdleTimeout = getEnvAsDuration("API_IDLE_TIMEOUT", c.API.IdleTimeout)
	c.API.EnableCORS = getEnvAsBool("API_ENABLE_CORS", c.API.EnableCORS)
	c.API.EnableMetrics = getEnvAsBool("API_ENABLE_METRICS", c.API.EnableMetrics)

	c.Advisory.URL = getEnv("ADVISORY_URL", c.Advisory.URL)
	c.Advisory.Timeout = getEnvAsDuration("ADVISORY_TIMEOUT", c.Advisory.Timeout)
	c.Advisory.SweepInterval = getEnvAsDuration("ADVISORY_SWEEP_INTERVAL", c.Advisory.SweepInterval)

	c.Lock.WaitMS = getEnvAsInt("LOCK_WAIT_MS", c.Lock.WaitMS)
	c.Op.DeadlineMS = getEnvAsInt("OP_DEADLINE_MS", c.Op.DeadlineMS)
	c.Retry.Max = getEnvAsInt("RETRY_MAX", c.Retry.Max)
	c.PO.Sequence.PersistKey = getEnv("PO_SEQUENCE_PERSIST_KEY", c.PO.Sequence.PersistKey)
	c.PO.DefaultReceivingWarehouseID = getEnvAsInt64("PO_DEFAULT_RECEIVING_WAREHOUSE_ID", c.PO.DefaultReceivingWarehouseID)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

// Validate validates the configuration
// 設定をバリデーション
func (c *Config) Validate() error {
	db := &c.Database
	if err := validation.ValidateStruct(db,
		validation.Field(&db.URL, validation.By(validDSN)),
		validation.Field(&db.Host, validation.When(db.URL == "", validation.Required)),
		validation.Field(&db.Port, validation.When(db.URL == "", validation.Required, validation.Min(1), validation.Max(65535))),
		validation.Field(&db.DBName, validation.When(db.URL == "", validation.Required)),
	); err != nil {
		return fmt.Errorf("データベース設定: %w", err)
	}

	if err := validation.ValidateStruct(&c.API,
		validation.Field(&c.API.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("API設定: %w", err)
	}

	if err := validation.ValidateStruct(&c.Advisory,
		validation.Field(&c.Advisory.URL, is.URL),
		validation.Field(&c.Advisory.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Advisory.SweepInterval, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("アドバイザリ設定: %w", err)
	}

	if err := validation.Validate(c.Lock.WaitMS, validation.Required, validation.Min(1)); err != nil {
		return fmt.Errorf("lock.wait_ms: %w", err)
	}
	if err := validation.Validate(c.Op.DeadlineMS, validation.Required, validation.Min(1)); err != nil {
		return fmt.Errorf("op.deadline_ms: %w", err)
	}
	if err := validation.Validate(c.Retry.Max, validation.Min(0)); err != nil {
		return fmt.Errorf("retry.max: %w", err)
	}
	if err := validation.Validate(c.PO.Sequence.PersistKey, validation.Required); err != nil {
		return fmt.Errorf("po.sequence.persist_key: %w", err)
	}
	if err := validation.Validate(c.PO.DefaultReceivingWarehouseID, validation.Min(int64(0))); err != nil {
		return fmt.Errorf("po.default_receiving_warehouse_id: %w", err)
	}

	if err := validation.ValidateStruct(&c.Logging,
		validation.Field(&c.Logging.Level, validation.Required, validation.In("debug", "info", "warn", "error", "fatal")),
		validation.Field(&c.Logging.Format, validation.Required, validation.In("json", "console")),
	); err != nil {
		return fmt.Errorf("ログ設定: %w", err)
	}
	return nil
}

// DSN generates the PostgreSQL data source name.
// DB_USER and DB_PASSWORD override the credentials embedded in DB_URL.
// PostgreSQLデータソース名を生成
func (c *Config) DSN() string {
	if c.Database.URL != "" {
		if !isURLDSN(c.Database.URL) {
			// key=value 形式は後に書いた値が優先される
			dsn := c.Database.URL
			if c.Database.User != "" {
				dsn += " user=" + c.Database.User
				if c.Database.Password != "" {
					dsn += " password=" + c.Database.Password
				}
			}
			return dsn
		}
		u, err := url.Parse(c.Database.URL)
		if err != nil {
			return c.Database.URL
		}
		if c.Database.User != "" {
			if c.Database.Password != "" {
				u.User = url.UserPassword(c.Database.User, c.Database.Password)
			} else {
				u.User = url.User(c.Database.User)
			}
		}
		return u.String()
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func isURLDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// validDSN accepts both libpq connection string forms: a postgres:// URL or key=value pairs
func validDSN(value interface{}) error {
	dsn, _ := value.(string)
	if dsn == "" {
		return nil
	}
	if isURLDSN(dsn) {
		_, err := pq.ParseURL(dsn)
		return err
	}
	for _, pair := range strings.Fields(dsn) {
		if k, _, ok := strings.Cut(pair, "="); !ok || k == "" {
			return fmt.Errorf("key=value 形式ではありません: %q", pair)
		}
	}
	return nil
}

// LockWait returns the maximum wait for a row lock
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Lock.WaitMS) * time.Millisecond
}

// InventoryConfig converts into the core configuration
// 在庫コアの設定に変換
func (c *Config) InventoryConfig() *inventory.Config {
	ic := inventory.DefaultConfig()
	ic.OperationDeadline = time.Duration(c.Op.DeadlineMS) * time.Millisecond
	ic.Retry.MaxRetries = c.Retry.Max
	ic.SequenceKey = c.PO.Sequence.PersistKey
	ic.DefaultReceivingWarehouseID = c.PO.DefaultReceivingWarehouseID
	return ic
}

// ヘルパー関数

// getEnv gets environment variable with default value
// デフォルト値付きで環境変数を取得
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer with default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsInt64 gets environment variable as int64 with default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if int64Value, err := strconv.ParseInt(value, 10, 64); err == nil {
			return int64Value
		}
	}
	return defaultValue
}

// getEnvAsBool gets environment variable as boolean with default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets environment variable as duration with default value.
// A bare integer is read as milliseconds.
// デフォルト値付きで環境変数をdurationとして取得
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
