package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	jitterWindow = 5 * time.Minute
	// generations outlive any cached cart so a fill never sees a reset counter
	generationTTL = 24 * time.Hour
)

// setIfGeneration writes KEYS[1] only when KEYS[2] (absent counts as 0) still
// holds ARGV[1]. Returns 1 when written.
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisCache keeps carts as JSON under cart:<identity> and their generation
// under cart-gen:<identity>.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{client: client, baseTTL: baseTTL}
}

func (r *RedisCache) Get(ctx context.Context, identityKey string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(identityKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

func (r *RedisCache) Generation(ctx context.Context, identityKey string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(identityKey)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

func (r *RedisCache) SetIfGeneration(ctx context.Context, identityKey string, cart *domain.Cart, gen int64) (bool, error) {
	data, err := json.Marshal(cart)
	if err != nil {
		return false, fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Int63n(int64(jitterWindow)))
	keys := []string{cartKey(identityKey), generationKey(identityKey)}
	stored, err := setIfGeneration.Run(ctx, r.client, keys, strconv.FormatInt(gen, 10), data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis conditional set failed: %w", err)
	}
	return stored == 1, nil
}

func (r *RedisCache) Invalidate(ctx context.Context, identityKey string) error {
	gk := generationKey(identityKey)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, generationTTL)
		pipe.Del(ctx, cartKey(identityKey))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func cartKey(identityKey string) string {
	return "cart:" + identityKey
}

func generationKey(identityKey string) string {
	return "cart-gen:" + identityKey
}
