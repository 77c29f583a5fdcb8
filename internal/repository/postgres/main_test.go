package postgres

import (
	"os"
	"testing"

	"irrigation/pkg/logger"
)

// TestMain runs before all tests in this package
func TestMain(m *testing.M) {
	_ = logger.Init("warn", "test")
	os.Exit(m.Run())
}
