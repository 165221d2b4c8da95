package ristretto

import (
	"context"
	"testing"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/stratacache/local"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// getEventually tolerates ristretto's buffered, asynchronous admission.
func getEventually(t *testing.T, s *Store, key string) ([]byte, bool) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if b, ok := s.Get(ctx, key); ok {
			return b, true
		}
		time.Sleep(time.Millisecond)
	}
	return nil, false
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if !s.Set(ctx, "k", []byte("v"), 1, time.Minute) {
		t.Fatalf("Set rejected")
	}
	b, ok := getEventually(t, s, "k")
	if !ok || string(b) != "v" {
		t.Fatalf("Get: ok=%v b=%q", ok, b)
	}

	s.Del(ctx, "k")
	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestNoTTLEntryPersists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if !s.Set(ctx, "k", []byte("v"), 1, 0) {
		t.Fatalf("Set rejected")
	}
	if _, ok := getEventually(t, s, "k"); !ok {
		t.Fatalf("zero-TTL entry should persist")
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected config error")
	}
}

// TestEvictionReasonMapping exercises the hook's expired/capacity split via
// crafted eviction items.
func TestEvictionReasonMapping(t *testing.T) {
	s := newTestStore(t)

	var gotKey string
	var gotReason local.EvictionReason
	s.OnEvict(func(key string, reason local.EvictionReason) {
		gotKey, gotReason = key, reason
	})

	s.onEvict(&rc.Item{Value: entry{key: "a", exp: time.Now().Add(-time.Second)}})
	if gotKey != "a" || gotReason != local.Expired {
		t.Fatalf("expired mapping: key=%q reason=%v", gotKey, gotReason)
	}

	s.onEvict(&rc.Item{Value: entry{key: "b"}})
	if gotKey != "b" || gotReason != local.Capacity {
		t.Fatalf("capacity mapping: key=%q reason=%v", gotKey, gotReason)
	}
}
