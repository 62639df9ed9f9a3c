package bootstrap

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// Config 是服务的全部配置。先加载默认值, 再读 YAML 文件, 最后由环境变量覆盖。
type Config struct {
	App     AppConfig     `yaml:"app"`
	Storage StorageConfig `yaml:"storage"`
	Lock    LockConfig    `yaml:"lock"`
	Sweeper SweeperConfig `yaml:"sweeper"`
	Payment PaymentConfig `yaml:"payment"`
	Order   OrderConfig   `yaml:"order"`
	Infra   InfraConfig   `yaml:"infra"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	PrettyLog bool   `yaml:"pretty_log"`
}

type StorageConfig struct {
	// Driver: mysql | memory
	Driver      string      `yaml:"driver"`
	AutoMigrate bool        `yaml:"auto_migrate"`
	MySQL       MySQLConfig `yaml:"mysql"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 用驱动自带的 Config 拼接, 避免手写转义。
func (m MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = m.User
	cfg.Passwd = m.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	cfg.DBName = m.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

type LockConfig struct {
	// Driver: local | redis | zookeeper
	Driver      string        `yaml:"driver"`
	TTL         time.Duration `yaml:"ttl"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

type SweeperConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval 是服务内置循环的间隔, BatchInterval 是独立任务的间隔
	Interval          time.Duration `yaml:"interval"`
	BatchInterval     time.Duration `yaml:"batch_interval"`
	ErrorBackoff      time.Duration `yaml:"error_backoff"`
	BatchErrorBackoff time.Duration `yaml:"batch_error_backoff"`
}

type PaymentConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type OrderConfig struct {
	RefundPercent float64 `yaml:"refund_percent"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Redis     RedisConfig     `yaml:"redis"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type NacosConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addrs     string `yaml:"addrs"`
	Namespace string `yaml:"namespace"`
	Group     string `yaml:"group"`
}

// DefaultConfig 本地开发可直接使用的默认配置。
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{Name: "storefront-service", Port: 8080, LogLevel: "info"},
		Storage: StorageConfig{
			Driver:      "memory",
			AutoMigrate: true,
			MySQL: MySQLConfig{
				Host: "localhost", Port: 3306, User: "root", Database: "storefront",
				MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute,
			},
		},
		Lock: LockConfig{Driver: "local", TTL: 10 * time.Second, WaitTimeout: 5 * time.Second},
		Sweeper: SweeperConfig{
			Enabled:           true,
			Interval:          5 * time.Second,
			BatchInterval:     time.Hour,
			ErrorBackoff:      300 * time.Second,
			BatchErrorBackoff: 60 * time.Second,
		},
		Payment: PaymentConfig{Timeout: 5 * time.Second},
		Order:   OrderConfig{RefundPercent: 70},
		Infra: InfraConfig{
			Jaeger:    JaegerConfig{SampleRatio: 1},
			Redis:     RedisConfig{Addr: "localhost:6379"},
			Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}, SessionTimeout: 10 * time.Second},
			Kafka:     KafkaConfig{Topic: "storefront-events"},
			Nacos:     NacosConfig{Addrs: "localhost:8848", Group: "DEFAULT_GROUP"},
		},
	}
}

var (
	currentConfig *Config
	configMu      sync.RWMutex
)

// LoadConfig 依次应用默认值, 文件 (path 为空或不存在时跳过) 和环境变量。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	currentConfig = cfg
	configMu.Unlock()
	return cfg, nil
}

// GetCurrentConfig 返回最近一次加载的配置, 尚未加载时返回默认配置。
func GetCurrentConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	if currentConfig == nil {
		return DefaultConfig()
	}
	return currentConfig
}

// Validate 检查取值范围。
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Lock.Driver {
	case "local", "redis", "zookeeper":
	default:
		return fmt.Errorf("unknown lock driver %q", c.Lock.Driver)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.App.Port)
	}
	if c.Sweeper.Interval <= 0 || c.Sweeper.BatchInterval <= 0 {
		return fmt.Errorf("sweeper intervals must be positive")
	}
	if c.Order.RefundPercent < 0 || c.Order.RefundPercent > 100 {
		return fmt.Errorf("refund_percent must be within [0, 100]")
	}
	return nil
}

func applyEnv(c *Config) error {
	var err error
	c.App.Name = getEnv("SERVICE_NAME", c.App.Name)
	if c.App.Port, err = getEnvInt("APP_PORT", c.App.Port); err != nil {
		return err
	}
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)
	c.App.PrettyLog = getEnvBool("LOG_PRETTY", c.App.PrettyLog)

	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.AutoMigrate = getEnvBool("STORAGE_AUTO_MIGRATE", c.Storage.AutoMigrate)
	c.Storage.MySQL.Host = getEnv("MYSQL_HOST", c.Storage.MySQL.Host)
	if c.Storage.MySQL.Port, err = getEnvInt("MYSQL_PORT", c.Storage.MySQL.Port); err != nil {
		return err
	}
	c.Storage.MySQL.User = getEnv("MYSQL_USER", c.Storage.MySQL.User)
	c.Storage.MySQL.Password = getEnv("MYSQL_PASSWORD", c.Storage.MySQL.Password)
	c.Storage.MySQL.Database = getEnv("MYSQL_DATABASE", c.Storage.MySQL.Database)

	c.Lock.Driver = getEnv("LOCK_DRIVER", c.Lock.Driver)

	if c.Sweeper.Interval, err = getEnvDuration("SWEEPER_INTERVAL", c.Sweeper.Interval); err != nil {
		return err
	}
	if c.Sweeper.BatchInterval, err = getEnvDuration("SWEEPER_BATCH_INTERVAL", c.Sweeper.BatchInterval); err != nil {
		return err
	}
	c.Sweeper.Enabled = getEnvBool("SWEEPER_ENABLED", c.Sweeper.Enabled)

	c.Payment.BaseURL = getEnv("PAYMENT_BASE_URL", c.Payment.BaseURL)
	if c.Payment.Timeout, err = getEnvDuration("PAYMENT_TIMEOUT", c.Payment.Timeout); err != nil {
		return err
	}

	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	c.Infra.Redis.Addr = getEnv("REDIS_ADDR", c.Infra.Redis.Addr)
	c.Infra.Redis.Password = getEnv("REDIS_PASSWORD", c.Infra.Redis.Password)
	c.Infra.Zookeeper.Servers = getEnvList("ZOOKEEPER_SERVERS", c.Infra.Zookeeper.Servers)
	c.Infra.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Infra.Kafka.Brokers)
	c.Infra.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Infra.Kafka.Topic)
	c.Infra.Nacos.Enabled = getEnvBool("NACOS_ENABLED", c.Infra.Nacos.Enabled)
	c.Infra.Nacos.Addrs = getEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.Addrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	return nil
}

// getEnv 从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", key, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
