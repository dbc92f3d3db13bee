package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisCooldown    = 30 * time.Second
	redisPingTimeout = 2 * time.Second
)

var errNoRedisAddr = errors.New("ratelimit: redis enabled without an address")

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// RedisClientFactory dials redis.
type RedisClientFactory func(options *redis.Options) *redis.Client

// redisTarget identifies a redis connection; a change reconnects.
type redisTarget struct {
	addr     string
	password string
	db       int
	prefix   string
}

func targetOf(cfg SettingsConfig) redisTarget {
	t := redisTarget{addr: cfg.RedisAddr, password: cfg.RedisPassword, db: cfg.RedisDB, prefix: cfg.RedisPrefix}
	if t.db < 0 {
		t.db = 0
	}
	return t
}

// Manager limits asks per member. Counters live in redis when the settings
// enable it and redis answers, in process memory otherwise.
type Manager struct {
	settings SettingsProvider
	now      func() time.Time
	dial     RedisClientFactory
	memory   Counter
	breaker  breaker

	mu     sync.Mutex
	target redisTarget
	client *redis.Client
	redis  *RedisCounter
}

// NewManager builds a Manager. nil arguments select the DB settings snapshot,
// time.Now and redis.NewClient.
func NewManager(settings SettingsProvider, now func() time.Time, dial RedisClientFactory) *Manager {
	if settings == nil {
		settings = LoadSettingsConfig
	}
	if now == nil {
		now = time.Now
	}
	if dial == nil {
		dial = redis.NewClient
	}
	return &Manager{
		settings: settings,
		now:      now,
		dial:     dial,
		memory:   NewMemoryCounter(),
		breaker:  breaker{cooldown: redisCooldown},
	}
}

// Allow records an ask for key. Redis failures fall back to memory and are
// never returned to the caller.
func (m *Manager) Allow(ctx context.Context, key string) (Result, error) {
	if m == nil || key == "" {
		return Result{Allowed: true}, nil
	}
	cfg := m.settings()
	if cfg.Limit <= 0 {
		return Result{Allowed: true}, nil
	}
	w := Window{Limit: cfg.Limit, Size: cfg.Window, Now: m.now()}

	if cfg.RedisEnabled && !m.breaker.open(w.Now) {
		res, err := m.hitRedis(ctx, key, w, targetOf(cfg))
		if err == nil {
			return res, nil
		}
		m.breaker.trip(err, w.Now)
	}
	return m.memory.Hit(ctx, key, w)
}

func (m *Manager) hitRedis(ctx context.Context, key string, w Window, target redisTarget) (Result, error) {
	counter, err := m.connect(ctx, target)
	if err != nil {
		return Result{}, err
	}
	return counter.Hit(ctx, key, w)
}

// connect returns the counter for target, redialing when the settings changed.
func (m *Manager) connect(ctx context.Context, target redisTarget) (*RedisCounter, error) {
	if target.addr == "" {
		return nil, errNoRedisAddr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis != nil && m.target == target {
		return m.redis, nil
	}
	m.closeLocked()

	client := m.dial(&redis.Options{Addr: target.addr, Password: target.password, DB: target.db})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	m.target, m.client, m.redis = target, client, NewRedisCounter(client, target.prefix)
	return m.redis, nil
}

func (m *Manager) closeLocked() {
	if m.client != nil {
		_ = m.client.Close()
	}
	m.client, m.redis = nil, nil
}

// Close drops the redis connection, if any.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}
