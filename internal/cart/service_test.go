package cart

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nadhir24/bima-back-sub000/internal/cart/cache"
	"github.com/nadhir24/bima-back-sub000/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepository struct {
	*MemoryRepository
	gets atomic.Int32
	err  error
}

func (r *countingRepository) GetCart(ctx context.Context, key string) (*domain.Cart, error) {
	r.gets.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	time.Sleep(10 * time.Millisecond)
	return r.MemoryRepository.GetCart(ctx, key)
}

type mockCache struct {
	mu            sync.Mutex
	carts         map[string]*domain.Cart
	generations   map[string]int64
	invalidations []string
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart), generations: make(map[string]int64)}
}

func (c *mockCache) Get(_ context.Context, key string) (*domain.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cart, ok := c.carts[key]; ok {
		return cart, nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *mockCache) Generation(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[key], nil
}

func (c *mockCache) SetIfGeneration(_ context.Context, key string, cart *domain.Cart, gen int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key] != gen {
		return false, nil
	}
	c.carts[key] = cart
	return true, nil
}

func (c *mockCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, key)
	c.generations[key]++
	c.invalidations = append(c.invalidations, key)
	return nil
}

// gatedCache parks every fill until release is closed and reports whether it landed.
type gatedCache struct {
	*cache.RedisCache
	release chan struct{}
	stored  chan bool
}

func (c *gatedCache) SetIfGeneration(ctx context.Context, key string, cart *domain.Cart, gen int64) (bool, error) {
	<-c.release
	ok, err := c.RedisCache.SetIfGeneration(ctx, key, cart, gen)
	c.stored <- ok
	return ok, err
}

func newTestService(repo Repository, c cache.CartCache) *Service {
	return NewService(repo, c, zerolog.Nop())
}

func TestService_UpsertLine_Validation(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), newMockCache())
	ctx := context.Background()
	user := domain.UserIdentity("1")

	assert.ErrorIs(t, svc.UpsertLine(ctx, domain.Identity{}, 1, 1), domain.ErrInvalidIdentity)
	assert.ErrorIs(t, svc.UpsertLine(ctx, user, 0, 1), ErrInvalidVariant)
	assert.ErrorIs(t, svc.UpsertLine(ctx, user, 1, 0), ErrInvalidQuantity)
	assert.ErrorIs(t, svc.UpsertLine(ctx, user, 1, -3), ErrInvalidQuantity)
	assert.ErrorIs(t, svc.UpsertLine(ctx, user, 1, DefaultMaxLineQuantity+1), ErrInvalidQuantity)
}

func TestService_UpsertLine_MergesAndInvalidates(t *testing.T) {
	c := newMockCache()
	svc := newTestService(NewMemoryRepository(), c)
	ctx := context.Background()
	guest := domain.GuestIdentity("g-1")

	require.NoError(t, svc.UpsertLine(ctx, guest, 7, 1))
	require.NoError(t, svc.UpsertLine(ctx, guest, 7, 2))

	lines, err := svc.ListLines(ctx, guest)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(3), lines[0].Quantity)
	assert.Equal(t, []string{"guest:g-1", "guest:g-1"}, c.invalidations)
}

func TestService_GetCart_EmptyWhenMissing(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), newMockCache())

	cart, err := svc.GetCart(context.Background(), domain.UserIdentity("9"))
	require.NoError(t, err)
	assert.Equal(t, "user:9", cart.IdentityKey)
	assert.Empty(t, cart.Lines)
}

func TestService_GetCart_ServedFromCache(t *testing.T) {
	repo := &countingRepository{MemoryRepository: NewMemoryRepository()}
	c := newMockCache()
	c.carts["user:1"] = &domain.Cart{IdentityKey: "user:1", Lines: []domain.CartLine{{VariantID: 3, Quantity: 1}}}
	svc := newTestService(repo, c)

	cart, err := svc.GetCart(context.Background(), domain.UserIdentity("1"))
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)
	assert.Equal(t, int32(0), repo.gets.Load())
}

func TestService_ListLines_ReadsRepositoryNotCache(t *testing.T) {
	repo := &countingRepository{MemoryRepository: NewMemoryRepository()}
	c := newMockCache()
	c.carts["user:1"] = &domain.Cart{IdentityKey: "user:1", Lines: []domain.CartLine{{VariantID: 3, Quantity: 1}}}
	svc := newTestService(repo, c)

	lines, err := svc.ListLines(context.Background(), domain.UserIdentity("1"))
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Equal(t, int32(1), repo.gets.Load())

	_, err = svc.ListLines(context.Background(), domain.Identity{})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestService_GetCart_FillThenInvalidate(t *testing.T) {
	c := newMockCache()
	svc := newTestService(NewMemoryRepository(), c)
	ctx := context.Background()
	user := domain.UserIdentity("2")

	require.NoError(t, svc.UpsertLine(ctx, user, 4, 1))
	_, err := svc.GetCart(ctx, user)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := c.Get(ctx, "user:2")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.RemoveLine(ctx, user, 4))
	_, err = c.Get(ctx, "user:2")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestService_ClearWinsOverInFlightCacheFill(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c := &gatedCache{
		RedisCache: cache.NewRedisCache(client, 15*time.Minute),
		release:    make(chan struct{}),
		stored:     make(chan bool, 4),
	}
	svc := newTestService(NewMemoryRepository(), c)
	ctx := context.Background()
	user := domain.UserIdentity("1")

	require.NoError(t, svc.UpsertLine(ctx, user, 1, 1))

	// miss: the fill of the one-line cart is now parked
	cart, err := svc.GetCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)

	require.NoError(t, svc.Clear(ctx, user))
	close(c.release)

	select {
	case stored := <-c.stored:
		assert.False(t, stored, "fill from before Clear must not land")
	case <-time.After(2 * time.Second):
		t.Fatal("cache fill never completed")
	}
	assert.False(t, mr.Exists("cart:user:1"))

	cart, err = svc.GetCart(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	lines, err := svc.ListLines(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestService_GetCart_CoalescesConcurrentMisses(t *testing.T) {
	repo := &countingRepository{MemoryRepository: NewMemoryRepository()}
	require.NoError(t, repo.MemoryRepository.UpsertLine(context.Background(), "user:1", 1, 1))
	svc := newTestService(repo, cache.Nop{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetCart(context.Background(), domain.UserIdentity("1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, repo.gets.Load(), int32(20))
}

func TestService_GetCart_RepositoryError(t *testing.T) {
	dbErr := errors.New("mongo down")
	repo := &countingRepository{MemoryRepository: NewMemoryRepository(), err: dbErr}
	svc := newTestService(repo, newMockCache())

	_, err := svc.GetCart(context.Background(), domain.UserIdentity("1"))
	assert.ErrorIs(t, err, dbErr)
}

func TestService_RemoveLineAndClear(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), newMockCache())
	ctx := context.Background()
	user := domain.UserIdentity("5")

	require.NoError(t, svc.UpsertLine(ctx, user, 1, 1))
	require.NoError(t, svc.UpsertLine(ctx, user, 2, 1))

	assert.ErrorIs(t, svc.RemoveLine(ctx, user, 3), ErrLineNotFound)
	require.NoError(t, svc.RemoveLine(ctx, user, 1))

	lines, err := svc.ListLines(ctx, user)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(2), lines[0].VariantID)

	require.NoError(t, svc.Clear(ctx, user))
	require.NoError(t, svc.Clear(ctx, user))

	lines, err = svc.ListLines(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, lines)
}
