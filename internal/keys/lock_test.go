package keys

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisForTest(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockerSerializesHolders(t *testing.T) {
	mr, client := newRedisForTest(t)
	locker := NewRedisLocker(client, "test:lock", time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !mr.Exists("test:lock") {
		t.Fatal("expected lock key to exist")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(waitCtx); err == nil {
		t.Fatal("second acquire should block until context expiry")
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("test:lock") {
		t.Fatal("expected lock key to be deleted")
	}
	release2, err := locker.Acquire(ctx)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = release2(ctx)
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	mr, client := newRedisForTest(t)
	locker := NewRedisLocker(client, "test:lock", time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := mr.Set("test:lock", "someone-else"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got, _ := mr.Get("test:lock"); got != "someone-else" {
		t.Fatalf("release must not delete a lock it does not own, got %q", got)
	}
}

func TestManagerInitWithRedisLock(t *testing.T) {
	_, client := newRedisForTest(t)
	store := newStoreForTest(t)
	m := newManagerForTest(t, store, newEnvelopeForTest(t, "passphrase-one-0123"), NewRedisLocker(client, "", 0))
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !m.Ready() {
		t.Fatalf("expected ready, got %s", m.State())
	}
}

func TestManagerInitSurvivesRedisOutage(t *testing.T) {
	mr, client := newRedisForTest(t)
	mr.Close()
	store := newStoreForTest(t)
	m := newManagerForTest(t, store, newEnvelopeForTest(t, "passphrase-one-0123"), NewRedisLocker(client, "", 0))
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("init without redis should fall back to the storage constraint: %v", err)
	}
}
