package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const envDBPath = "CONVTUNE_DB_PATH"

// resolveDBPath picks the database root: the flag, then the environment,
// then <user cache dir>/convtune/db.
func resolveDBPath(flag string) (string, error) {
	if p := strings.TrimSpace(flag); p != "" {
		return filepath.Clean(p), nil
	}
	if p := strings.TrimSpace(os.Getenv(envDBPath)); p != "" {
		return filepath.Clean(p), nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("no database path: set --db-path or %s (%v)", envDBPath, err)
	}
	return filepath.Join(dir, "convtune", "db"), nil
}
