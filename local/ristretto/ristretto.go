// Package ristretto adapts dgraph-io/ristretto to the local.Store contract.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/stratacache/local"
)

// entry is the stored envelope. Ristretto eviction callbacks only expose the
// hashed key, so the string key rides along with the payload.
type entry struct {
	key string
	val []byte
	exp time.Time // zero => no expiry
}

type Store struct {
	c    *rc.Cache
	hook local.EvictionHook
}

var _ local.Store = (*Store)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	s := &Store{}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		OnEvict:     s.onEvict,
	})
	if err != nil {
		return nil, err
	}
	s.c = c
	return s, nil
}

func (s *Store) onEvict(item *rc.Item) {
	if s.hook == nil {
		return
	}
	e, ok := item.Value.(entry)
	if !ok {
		return
	}
	reason := local.Capacity
	if !e.exp.IsZero() && !time.Now().Before(e.exp) {
		reason = local.Expired
	}
	s.hook(e.key, reason)
}

func (s *Store) OnEvict(hook local.EvictionHook) { s.hook = hook }

func (s *Store) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := v.(entry)
	if !ok {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		return nil, false
	}
	return e.val, true
}

func (s *Store) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) bool {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	e := entry{key: key, val: value, exp: exp}
	if ttl > 0 {
		return s.c.SetWithTTL(key, e, cost, ttl)
	}
	return s.c.Set(key, e, cost)
}

func (s *Store) Del(_ context.Context, key string) bool {
	_, present := s.c.Get(key)
	s.c.Del(key)
	return present
}

func (s *Store) Close() error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes ristretto's counters when Config.Metrics was set.
// Not part of the local.Store contract.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }
