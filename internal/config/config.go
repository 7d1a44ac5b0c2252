// Package config holds the small set of bootstrap settings that must be
// known before the Catalog Store can even be opened. Everything else the
// gateway needs at runtime lives in the store's settings table and is
// loaded from there (see internal/store.Settings).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Bootstrap holds the handful of settings read from the environment at
// process start, before any database connection exists.
type Bootstrap struct {
	// DataDir is the app data directory: credential salt, sqlite file
	// (unless DBPath overrides it), and any other on-disk state live here.
	DataDir string
	// DBPath is the sqlite database file path. Defaults to DataDir/catalog.db.
	DBPath string
	// TestMode enables the /test/seed seeding endpoints (§6 Configuration).
	TestMode bool
}

// Load reads bootstrap config from the environment. Call LoadEnvFile(".env")
// first if a .env file should seed the process environment.
func Load() *Bootstrap {
	dataDir := getEnv("STREAMFORGE_DATA_DIR", defaultDataDir())
	b := &Bootstrap{
		DataDir:  dataDir,
		DBPath:   getEnv("STREAMFORGE_DB_PATH", filepath.Join(dataDir, "catalog.db")),
		TestMode: getEnvBool("STREAMFORGE_TEST_MODE", false),
	}
	return b
}

func defaultDataDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "streamforge-gateway")
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
