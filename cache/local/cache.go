package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

// deadline is an optional expiry shared by string and hash entries.
type deadline struct {
	expireAt time.Time
}

func (d deadline) expired(now time.Time) bool {
	return !d.expireAt.IsZero() && now.After(d.expireAt)
}

func newDeadline(ttl time.Duration) deadline {
	if ttl <= 0 {
		return deadline{}
	}
	return deadline{expireAt: time.Now().Add(ttl)}
}

type entry struct {
	deadline
	data string
}

type hash struct {
	deadline
	fields map[string]string
}

// LocalCache is an in-process cache implementing the Cache interface.
// Strings and hashes live in separate key spaces; Del and Expire act on both.
type LocalCache struct {
	mu         sync.Mutex
	kv         map[string]*entry
	hashes     map[string]*hash
	gcInterval time.Duration
	stopGC     chan struct{}
	closeOnce  sync.Once
}

// NewCache creates a LocalCache and starts the background GC goroutine.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		kv:         make(map[string]*entry),
		hashes:     make(map[string]*hash),
		gcInterval: interval,
		stopGC:     make(chan struct{}),
	}
	go c.runGC()
	return c, nil
}

// Close stops the background GC goroutine.
func (c *LocalCache) Close() error {
	c.closeOnce.Do(func() { close(c.stopGC) })
	return nil
}

func (c *LocalCache) runGC() {
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep(time.Now())
		case <-c.stopGC:
			return
		}
	}
}

func (c *LocalCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.kv {
		if e.expired(now) {
			delete(c.kv, k)
		}
	}
	for k, h := range c.hashes {
		if h.expired(now) {
			delete(c.hashes, k)
		}
	}
}

// liveEntry and liveHash must be called with c.mu held.
func (c *LocalCache) liveEntry(key string) (*entry, bool) {
	e, ok := c.kv[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(c.kv, key)
		return nil, false
	}
	return e, true
}

func (c *LocalCache) liveHash(key string) (*hash, bool) {
	h, ok := c.hashes[key]
	if !ok {
		return nil, false
	}
	if h.expired(time.Now()) {
		delete(c.hashes, key)
		return nil, false
	}
	return h, true
}

// ---- KV ----

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.liveEntry(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv[key] = &entry{deadline: newDeadline(ttl), data: value}
	return nil
}

func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.kv, k)
		delete(c.hashes, k)
	}
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.liveEntry(key); ok {
		return true, nil
	}
	_, ok := c.liveHash(key)
	return ok, nil
}

func (c *LocalCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.liveEntry(key); ok {
		return false, nil
	}
	c.kv[key] = &entry{deadline: newDeadline(ttl), data: value}
	return true, nil
}

func (c *LocalCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.liveEntry(key); ok {
		e.deadline = newDeadline(ttl)
		return nil
	}
	if h, ok := c.liveHash(key); ok {
		h.deadline = newDeadline(ttl)
		return nil
	}
	return ErrNotFound
}

// ---- Hash ----

func (c *LocalCache) HSet(_ context.Context, key, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.liveHash(key)
	if !ok {
		h = &hash{fields: make(map[string]string)}
		c.hashes[key] = h
	}
	h.fields[field] = value
	return nil
}

func (c *LocalCache) HGet(_ context.Context, key, field string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.liveHash(key)
	if !ok {
		return "", ErrNotFound
	}
	v, ok := h.fields[field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (c *LocalCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make(map[string]string)
	if h, ok := c.liveHash(key); ok {
		for k, v := range h.fields {
			result[k] = v
		}
	}
	return result, nil
}

// HDel removes fields and reports how many existed.
func (c *LocalCache) HDel(_ context.Context, key string, fields ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.liveHash(key)
	if !ok {
		return 0, nil
	}
	var n int64
	for _, f := range fields {
		if _, ok := h.fields[f]; ok {
			delete(h.fields, f)
			n++
		}
	}
	if len(h.fields) == 0 {
		delete(c.hashes, key)
	}
	return n, nil
}
