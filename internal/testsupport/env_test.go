package testsupport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDatabaseConfigsFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_USER", "user")
	t.Setenv("POSTGRES_PASSWORD", "pass")
	t.Setenv("POSTGRES_DB", "db")
	t.Setenv("POSTGRES_PORT", "5543")

	t.Setenv("CLICKHOUSE_HOST", "click")
	t.Setenv("CLICKHOUSE_DB", "audit")
	t.Setenv("CLICKHOUSE_PORT", "9440")

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")

	cfg := LoadDatabaseConfigsFromEnv(t)

	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5543, cfg.Postgres.Port)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Equal(t, "click", cfg.ClickHouse.Host)
	assert.Equal(t, 9440, cfg.ClickHouse.Port)
	assert.Equal(t, "default", cfg.ClickHouse.User)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr())
	assert.Equal(t, 2, cfg.Redis.DB)
}
