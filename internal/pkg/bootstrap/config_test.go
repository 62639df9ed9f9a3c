package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "local", cfg.Lock.Driver)
	assert.Equal(t, 5*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, time.Hour, cfg.Sweeper.BatchInterval)
	assert.Equal(t, 300*time.Second, cfg.Sweeper.ErrorBackoff)
	assert.Equal(t, 70.0, cfg.Order.RefundPercent)
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9090
storage:
  driver: mysql
  mysql:
    host: db.internal
    database: shop
lock:
  driver: redis
  wait_timeout: 2s
sweeper:
  interval: 30s
order:
  refund_percent: 50
`)
	t.Setenv("MYSQL_HOST", "db.override")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "mysql", cfg.Storage.Driver)
	assert.Equal(t, "db.override", cfg.Storage.MySQL.Host)
	assert.Equal(t, 3306, cfg.Storage.MySQL.Port)
	assert.Equal(t, 2*time.Second, cfg.Lock.WaitTimeout)
	assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, 50.0, cfg.Order.RefundPercent)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Infra.Kafka.Brokers)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"storage driver": "storage:\n  driver: sqlite\n",
		"lock driver":    "lock:\n  driver: etcd\n",
		"refund percent": "order:\n  refund_percent: 120\n",
		"interval":       "sweeper:\n  interval: 0s\n",
		"yaml":           "app: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	t.Run("env port", func(t *testing.T) {
		t.Setenv("APP_PORT", "eighty")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "APP_PORT")
	})
}

func TestMySQLConfig_DSN(t *testing.T) {
	dsn := MySQLConfig{Host: "db", Port: 3306, User: "shop", Password: "p@ss", Database: "storefront"}.DSN()
	assert.Contains(t, dsn, "shop:p@ss@tcp(db:3306)/storefront")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
