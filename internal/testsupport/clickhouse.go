package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"irrigation/internal/adapters/clickhouse"
)

// ClickHouseTestHelper manages cleanup for ClickHouse integration tests.
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewTestClickHouse creates a ClickHouse client from the environment
func NewTestClickHouse(t *testing.T) *ClickHouseTestHelper {
	t.Helper()

	client, err := clickhouse.NewClient(context.Background(), LoadDatabaseConfigsFromEnv(t).ClickHouse)
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })
	return &ClickHouseTestHelper{client: client}
}

// Client returns the wrapped client
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}

// TempTableName returns a unique table name that is dropped when the test ends
func (h *ClickHouseTestHelper) TempTableName(t *testing.T) string {
	t.Helper()

	table := fmt.Sprintf("tmp_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.client.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	})
	return table
}
