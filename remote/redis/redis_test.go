package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s, err := New(Config{Client: client, CloseClient: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, mr
}

func TestGetSetDel(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(b) != "v" {
		t.Fatalf("Get: ok=%v err=%v b=%q", ok, err, b)
	}
	deleted, err := s.Del(ctx, "k")
	if err != nil || !deleted {
		t.Fatalf("Del: deleted=%v err=%v", deleted, err)
	}
	deleted, err = s.Del(ctx, "k")
	if err != nil || deleted {
		t.Fatalf("Del on missing: deleted=%v err=%v", deleted, err)
	}
}

func TestSetTTLExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	if err := s.Set(ctx, "k", []byte("v"), 100*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(200 * time.Millisecond)
	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected expiry, ok=%v err=%v", ok, err)
	}
}

func TestSetNX(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	ok, err := s.SetNX(ctx, "k", []byte("first"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX first: ok=%v err=%v", ok, err)
	}
	ok, err = s.SetNX(ctx, "k", []byte("second"), time.Minute)
	if err != nil || ok {
		t.Fatalf("SetNX second should not take effect: ok=%v err=%v", ok, err)
	}
	b, _, _ := s.Get(ctx, "k")
	if string(b) != "first" {
		t.Fatalf("first write should win, got %q", b)
	}
}

func TestMGetOrderAndMisses(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_ = s.Set(ctx, "a", []byte("1"), 0)
	_ = s.Set(ctx, "c", []byte("3"), 0)

	out, err := s.MGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(out))
	}
	if string(out[0]) != "1" || out[1] != nil || string(out[2]) != "3" {
		t.Fatalf("MGet slots: %q %q %q", out[0], out[1], out[2])
	}
}

func TestMDel(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_ = s.Set(ctx, "a", []byte("1"), 0)
	_ = s.Set(ctx, "b", []byte("2"), 0)

	n, err := s.MDel(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("MDel: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
}

func TestLockTakeAndRelease(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	ok, err := s.TakeLock(ctx, "lock:ns:k", "tok-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TakeLock: ok=%v err=%v", ok, err)
	}

	// a second taker must not steal the lock
	ok, err = s.TakeLock(ctx, "lock:ns:k", "tok-2", time.Minute)
	if err != nil || ok {
		t.Fatalf("second TakeLock should fail: ok=%v err=%v", ok, err)
	}

	// a foreign token must not release it
	released, err := s.ReleaseLock(ctx, "lock:ns:k", "tok-2")
	if err != nil || released {
		t.Fatalf("foreign release must be refused: released=%v err=%v", released, err)
	}

	released, err = s.ReleaseLock(ctx, "lock:ns:k", "tok-1")
	if err != nil || !released {
		t.Fatalf("owner release: released=%v err=%v", released, err)
	}

	// released: takeable again
	ok, err = s.TakeLock(ctx, "lock:ns:k", "tok-3", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TakeLock after release: ok=%v err=%v", ok, err)
	}
}

func TestLockGuardExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	ok, err := s.TakeLock(ctx, "lock:ns:k", "tok-1", 100*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("TakeLock: ok=%v err=%v", ok, err)
	}
	mr.FastForward(200 * time.Millisecond)

	// guard expired: a new holder can take it
	ok, err = s.TakeLock(ctx, "lock:ns:k", "tok-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TakeLock after guard expiry: ok=%v err=%v", ok, err)
	}

	// the dead holder's release must not remove the new holder's lock
	released, err := s.ReleaseLock(ctx, "lock:ns:k", "tok-1")
	if err != nil || released {
		t.Fatalf("stale release must be refused: released=%v err=%v", released, err)
	}
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	if _, err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestNewRequiresClientOrAddr(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected config error")
	}
}
