package database

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/berry-13/vicsam-group-sub002/internal/config"

	"github.com/alicebob/miniredis/v2"
)

func TestOpenSQLiteInMemory(t *testing.T) {
	cfg := &config.Config{DatabaseDriver: "sqlite", DatabaseURL: "file::memory:"}
	db, err := Open(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("expected sqlite to be capped at one connection, got %d", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{DatabaseDriver: "mysql", DatabaseURL: "x"}
	if _, err := Open(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestOpenRedis(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := OpenRedis(&config.Config{}, logger)
	if err != nil || client != nil {
		t.Fatalf("expected disabled redis, got client=%v err=%v", client, err)
	}

	mr := miniredis.RunT(t)
	client, err = OpenRedis(&config.Config{RedisAddr: mr.Addr()}, logger)
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}

	addr := mr.Addr()
	mr.Close()
	if _, err := OpenRedis(&config.Config{RedisAddr: addr}, logger); err == nil {
		t.Fatal("expected ping failure for unreachable redis")
	}
}
