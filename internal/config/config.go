package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	commoncfg "drmp-assignment/common/config"

	"gopkg.in/yaml.v3"
)

// Config drmp-assignment 服务配置
//
// 加载顺序：内置默认值 -> CONFIG_FILE 指向的 YAML -> 环境变量
type Config struct {
	HTTP struct {
		Addr         string        `yaml:"addr"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"http"`

	// Storage.Backend: postgres | memory
	Storage struct {
		Backend string `yaml:"backend"`
	} `yaml:"storage"`
	Database commoncfg.DatabaseConfig `yaml:"database"`

	RedisEnabled bool                  `yaml:"redis_enabled"`
	Redis        commoncfg.RedisConfig `yaml:"redis"`
	MQTT         commoncfg.MQTTConfig  `yaml:"mqtt"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Assignment AssignmentConfig `yaml:"assignment"`
	OrgSource  OrgSourceConfig  `yaml:"org_source"`
	Events     EventsConfig     `yaml:"events"`
	Lock       LockConfig       `yaml:"lock"`
}

// AssignmentConfig 分配引擎参数
type AssignmentConfig struct {
	LoadCeiling          float64 `yaml:"load_ceiling"`           // 机构负载上限（%）
	LargeAmountThreshold float64 `yaml:"large_amount_threshold"` // 大额包阈值（元）
	HighRecoveryRate     float64 `yaml:"high_recovery_rate"`
	BatchWorkers         int     `yaml:"batch_workers"` // 批量打分并发数
	MaxBatchSize         int     `yaml:"max_batch_size"`
	DefaultLimit         int     `yaml:"default_limit"` // 推荐默认条数
	MaxLimit             int     `yaml:"max_limit"`
}

// OrgSourceConfig 机构快照来源
type OrgSourceConfig struct {
	Mode     string        `yaml:"mode"` // db | http | memory
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"` // 0 = 不缓存
}

// EventsConfig 案件流转事件输出
type EventsConfig struct {
	Postgres     bool   `yaml:"postgres"`
	Stream       string `yaml:"stream"`
	StreamMaxLen int64  `yaml:"stream_max_len"`
	MQTTTopic    string `yaml:"mqtt_topic"` // 前缀，实际主题为 {prefix}/{package_id}
}

// LockConfig 案件包互斥锁
type LockConfig struct {
	Backend string        `yaml:"backend"` // memory | redis
	TTL     time.Duration `yaml:"ttl"`
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.ReadTimeout = 15 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second

	cfg.Storage.Backend = "postgres"
	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "drmp",
		SSLMode:  "disable",
		MaxConns: 20,
		MaxIdle:  5,
	}

	cfg.RedisEnabled = true
	cfg.Redis = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.MQTT = commoncfg.MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "drmp-assignment", QoS: 1}

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	cfg.Assignment = AssignmentConfig{
		LoadCeiling:          95,
		LargeAmountThreshold: 10_000_000,
		HighRecoveryRate:     0.6,
		BatchWorkers:         8,
		MaxBatchSize:         500,
		DefaultLimit:         10,
		MaxLimit:             50,
	}
	cfg.OrgSource = OrgSourceConfig{Mode: "db", Timeout: 5 * time.Second, CacheTTL: time.Minute}
	cfg.Events = EventsConfig{Postgres: true, Stream: "drmp:case-flow", StreamMaxLen: 100000, MQTTTopic: "drmp/case-flow"}
	cfg.Lock = LockConfig{Backend: "memory", TTL: 30 * time.Second}
	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Database.LoadFromEnv("DB")
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)

	c.RedisEnabled = getEnv("REDIS_ENABLED", strconv.FormatBool(c.RedisEnabled)) == "true"
	c.Redis.LoadFromEnv("REDIS")
	c.MQTT.LoadFromEnv("MQTT")

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	a := &c.Assignment
	a.LoadCeiling = parseFloat(getEnv("ASSIGN_LOAD_CEILING", ""), a.LoadCeiling)
	a.LargeAmountThreshold = parseFloat(getEnv("ASSIGN_LARGE_AMOUNT", ""), a.LargeAmountThreshold)
	a.HighRecoveryRate = parseFloat(getEnv("ASSIGN_HIGH_RECOVERY_RATE", ""), a.HighRecoveryRate)
	a.BatchWorkers = parseInt(getEnv("ASSIGN_BATCH_WORKERS", ""), a.BatchWorkers)
	a.MaxBatchSize = parseInt(getEnv("ASSIGN_MAX_BATCH_SIZE", ""), a.MaxBatchSize)
	a.DefaultLimit = parseInt(getEnv("ASSIGN_DEFAULT_LIMIT", ""), a.DefaultLimit)
	a.MaxLimit = parseInt(getEnv("ASSIGN_MAX_LIMIT", ""), a.MaxLimit)

	c.OrgSource.Mode = getEnv("ORG_SOURCE", c.OrgSource.Mode)
	c.OrgSource.BaseURL = getEnv("ORG_SERVICE_URL", c.OrgSource.BaseURL)
	c.OrgSource.Timeout = parseDuration(getEnv("ORG_SERVICE_TIMEOUT", ""), c.OrgSource.Timeout)
	c.OrgSource.CacheTTL = parseDuration(getEnv("ORG_CACHE_TTL", ""), c.OrgSource.CacheTTL)

	c.Events.Postgres = getEnv("EVENTS_POSTGRES", strconv.FormatBool(c.Events.Postgres)) == "true"
	c.Events.Stream = getEnv("EVENTS_STREAM", c.Events.Stream)
	c.Events.MQTTTopic = getEnv("EVENTS_MQTT_TOPIC", c.Events.MQTTTopic)

	c.Lock.Backend = getEnv("LOCK_BACKEND", c.Lock.Backend)
	c.Lock.TTL = parseDuration(getEnv("LOCK_TTL", ""), c.Lock.TTL)
}

// Validate 校验取值范围和组合
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND: %q", c.Storage.Backend)
	}
	switch c.OrgSource.Mode {
	case "db", "memory":
	case "http":
		if c.OrgSource.BaseURL == "" {
			return fmt.Errorf("ORG_SERVICE_URL is required when ORG_SOURCE=http")
		}
	default:
		return fmt.Errorf("invalid ORG_SOURCE: %q", c.OrgSource.Mode)
	}
	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if !c.RedisEnabled {
			return fmt.Errorf("LOCK_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("invalid LOCK_BACKEND: %q", c.Lock.Backend)
	}
	a := c.Assignment
	if a.LoadCeiling <= 0 || a.LoadCeiling > 100 {
		return fmt.Errorf("load ceiling must be within (0, 100], got %v", a.LoadCeiling)
	}
	if a.BatchWorkers <= 0 {
		return fmt.Errorf("batch workers must be positive, got %d", a.BatchWorkers)
	}
	if a.DefaultLimit <= 0 || a.MaxLimit < a.DefaultLimit {
		return fmt.Errorf("invalid recommendation limits: default %d, max %d", a.DefaultLimit, a.MaxLimit)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
