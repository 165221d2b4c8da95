// Package bigcache adapts allegro/bigcache to the local.Store contract.
//
// BigCache has no per-entry TTL; every entry lives for the configured
// LifeWindow. The engine's TTL clamp therefore only bounds the remote tier
// when this store backs L1. Prefer the ristretto store when per-entry expiry
// matters.
package bigcache

import (
	"context"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/stratacache/local"
)

type Store struct {
	c    *bc.BigCache
	hook local.EvictionHook
}

var _ local.Store = (*Store)(nil)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Store, error) {
	s := &Store{}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.OnRemoveWithReason = s.onRemove
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	s.c = c
	return s, nil
}

func (s *Store) onRemove(key string, _ []byte, reason bc.RemoveReason) {
	if s.hook == nil {
		return
	}
	switch reason {
	case bc.Expired:
		s.hook(key, local.Expired)
	case bc.NoSpace:
		s.hook(key, local.Capacity)
	case bc.Deleted:
		// the engine raises Explicit/Replaced on its own paths
	default:
		s.hook(key, local.Other)
	}
}

func (s *Store) OnEvict(hook local.EvictionHook) { s.hook = hook }

func (s *Store) Get(_ context.Context, key string) ([]byte, bool) {
	b, err := s.c.Get(key)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) bool {
	// per-entry TTL unsupported; global LifeWindow applies
	return s.c.Set(key, value) == nil
}

func (s *Store) Del(_ context.Context, key string) bool {
	return s.c.Delete(key) == nil
}

func (s *Store) Close() error {
	return s.c.Close()
}
