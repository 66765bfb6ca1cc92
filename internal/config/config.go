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

	"github.com/JoeShih716/go-bank-ledger/pkg/redis"
	"github.com/JoeShih716/go-bank-ledger/pkg/sqldb"
)

// Ledger backends
const (
	BackendMemory   = "memory"
	BackendLMAX     = "lmax"
	BackendMySQL    = sqldb.DriverMySQL
	BackendPostgres = sqldb.DriverPostgres
)

// DefaultPath 預設設定檔位置
const DefaultPath = "config/config.yaml"

// Config 應用程式設定
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Ledger   LedgerConfig  `yaml:"ledger"`
	Database sqldb.Config  `yaml:"database"`
	Redis    RedisConfig   `yaml:"redis"`
	Logging  LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LedgerConfig struct {
	// Backend: memory | lmax | mysql | postgres
	Backend string `yaml:"backend"`
	// WALPath 記憶體帳本的 WAL 檔案，空字串表示不落地
	WALPath string `yaml:"wal_path"`
	// NodeID snowflake 節點編號 (0~1023)
	NodeID          int64 `yaml:"node_id"`
	DefaultPageSize int   `yaml:"default_page_size"`
	MaxPageSize     int   `yaml:"max_page_size"`
}

type RedisConfig struct {
	redis.Config `yaml:",inline"`
	Enabled      bool          `yaml:"enabled"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	Stream       string        `yaml:"stream"`
	StreamMaxLen int64         `yaml:"stream_max_len"`
}

type LoggingConfig struct {
	Service       string `yaml:"service"`
	Level         string `yaml:"level"`
	Format        string `yaml:"format"` // text|json
	IncludeCaller bool   `yaml:"include_caller"`
}

// Load 讀取設定：.env -> YAML 檔 -> 環境變數覆寫 -> 預設值 -> 驗證
//
// 參數:
//
//	path: YAML 設定檔路徑，檔案不存在時只使用環境變數與預設值
//
// 回傳:
//
//	Config: 完整設定
//	error: 解析或驗證錯誤
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Ledger.Backend, "LEDGER_BACKEND")
	setString(&c.Ledger.WALPath, "LEDGER_WAL_PATH")
	setString(&c.Server.HTTPAddr, "HTTP_ADDR")
	setString(&c.Server.GRPCAddr, "GRPC_ADDR")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.Host, "DATABASE_HOST")
	setString(&c.Database.User, "DATABASE_USER")
	setString(&c.Database.Password, "DATABASE_PASSWORD")
	setString(&c.Database.DBName, "DATABASE_NAME")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	var errs []error
	errs = append(errs, setInt64(&c.Ledger.NodeID, "LEDGER_NODE_ID"))
	errs = append(errs, setInt(&c.Database.Port, "DATABASE_PORT"))
	errs = append(errs, setBool(&c.Redis.Enabled, "REDIS_ENABLED"))
	return errors.Join(errs...)
}

// SetDefaults 補全沒有設定的欄位
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":50051"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = BackendMemory
	}
	if c.Ledger.DefaultPageSize == 0 {
		c.Ledger.DefaultPageSize = 10
	}
	if c.Ledger.MaxPageSize == 0 {
		c.Ledger.MaxPageSize = 100
	}
	// sql 後端沿用 backend 名稱作為 driver
	if c.Ledger.Backend == BackendMySQL || c.Ledger.Backend == BackendPostgres {
		c.Database.Driver = c.Ledger.Backend
	}
	c.Database.SetDefaults()
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 5 * time.Minute
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "ledger.events"
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "go-bank-ledger"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate 檢查設定是否合法
func (c *Config) Validate() error {
	var errs []error
	switch c.Ledger.Backend {
	case BackendMemory, BackendLMAX, BackendMySQL, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("ledger.backend: unknown backend %q", c.Ledger.Backend))
	}
	if c.Ledger.NodeID < 0 || c.Ledger.NodeID > 1023 {
		errs = append(errs, fmt.Errorf("ledger.node_id: must be between 0 and 1023, got %d", c.Ledger.NodeID))
	}
	if c.Ledger.DefaultPageSize < 0 || c.Ledger.MaxPageSize < 0 {
		errs = append(errs, errors.New("ledger: page sizes must be positive"))
	}
	if c.Ledger.DefaultPageSize > c.Ledger.MaxPageSize {
		errs = append(errs, fmt.Errorf("ledger.default_page_size: %d exceeds max_page_size %d", c.Ledger.DefaultPageSize, c.Ledger.MaxPageSize))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr: required when redis is enabled"))
	}
	return errors.Join(errs...)
}

// IsSQL 是否使用關聯式資料庫後端
func (c *Config) IsSQL() bool {
	return c.Ledger.Backend == BackendMySQL || c.Ledger.Backend == BackendPostgres
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
