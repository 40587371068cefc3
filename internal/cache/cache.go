package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StudentCache keeps merged student details for a bounded time.
type StudentCache interface {
	Get(ctx context.Context, studentID string) (*domain.StudentDetails, bool)
	Set(ctx context.Context, studentID string, d *domain.StudentDetails)
}

// NewRedisClient pings addr with exponential backoff before returning the client.
func NewRedisClient(ctx context.Context, addr, password string, db int, maxWait time.Duration) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait
	err := backoff.Retry(func() error {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return rdb.Ping(cctx).Err()
	}, backoff.WithContext(b, ctx))
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

type RedisStudentCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

func NewRedisStudentCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *RedisStudentCache {
	return &RedisStudentCache{rdb: rdb, ttl: ttl, prefix: "chat:student:", log: log}
}

// Get treats every redis failure as a miss.
func (c *RedisStudentCache) Get(ctx context.Context, studentID string) (*domain.StudentDetails, bool) {
	b, err := c.rdb.Get(ctx, c.prefix+studentID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("student cache get", zap.String("student_id", studentID), zap.Error(err))
		}
		return nil, false
	}
	var d domain.StudentDetails
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, false
	}
	return &d, true
}

func (c *RedisStudentCache) Set(ctx context.Context, studentID string, d *domain.StudentDetails) {
	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+studentID, b, c.ttl).Err(); err != nil {
		c.log.Warn("student cache set", zap.String("student_id", studentID), zap.Error(err))
	}
}

type entry struct {
	details domain.StudentDetails
	expires time.Time
}

// MemoryStudentCache is an in-process TTL cache.
type MemoryStudentCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryStudentCache(ttl time.Duration) *MemoryStudentCache {
	return &MemoryStudentCache{ttl: ttl, entries: map[string]entry{}, now: time.Now}
}

func (c *MemoryStudentCache) Get(_ context.Context, studentID string) (*domain.StudentDetails, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[studentID]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, studentID)
		return nil, false
	}
	d := e.details
	return &d, true
}

func (c *MemoryStudentCache) Set(_ context.Context, studentID string, d *domain.StudentDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[studentID] = entry{details: *d, expires: c.now().Add(c.ttl)}
}
