package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/convdb"
)

// Commands share package-level flag destinations, so these tests run serially.
func TestConstructThenDBCommands(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	prevExiter := cli.OsExiter
	cli.OsExiter = func(int) {}
	defer func() { cli.OsExiter = prevExiter }()
	root := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()
	common := []string{"--db-path", root, "--backend", "sim", "--device", "gfx906", "--log-level", "error"}

	args := append([]string{"construct", "--input", "2x8x16x16", "--weights", "16x8x3x3", "--pad", "1"}, common...)
	if err := constructCmd().Run(ctx, args); err != nil {
		t.Fatalf("construct: %v", err)
	}
	store := convdb.NewFileStore(root, nil)
	pending, err := store.ReadRequestLog("gfx906")
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v", pending, err)
	}

	if err := dbCmd().Run(ctx, append([]string{"db", "resolve", "--lock"}, common...)); err != nil {
		t.Fatalf("db resolve: %v", err)
	}
	pending, _ = store.ReadRequestLog("gfx906")
	if len(pending) != 0 {
		t.Fatalf("resolve left %v", pending)
	}
	if _, ok, _ := store.Lookup("gfx906", "8x16x16x3x3x16x16x16x2xNCHWxFP32x1"); !ok {
		t.Fatal("resolved config missing")
	}

	put := append([]string{"db", "put"}, common...)
	if err := dbCmd().Run(ctx, append(put, "8x16x16x3x3x16x16x16x2xNCHWxFP32x1", "8.8.8.16.1.2.4.2.1")); err != nil {
		t.Fatalf("db put: %v", err)
	}
	val, _, _ := store.Lookup("gfx906", "8x16x16x3x3x16x16x16x2xNCHWxFP32x1")
	if val != "8.8.8.16.1.2.4.2.1" {
		t.Fatalf("value = %q", val)
	}

	if err := dbCmd().Run(ctx, append(put, "1x2", "8.8.8.16.1.2.4.2.1")); err == nil {
		t.Fatal("expected malformed key to fail")
	}
}
