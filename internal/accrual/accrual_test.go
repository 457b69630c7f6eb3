package accrual

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fideliqr/fideliqr/internal/business"
	"github.com/fideliqr/fideliqr/internal/customer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingEvents captures post-commit events for assertions.
type recordingEvents struct {
	mu        sync.Mutex
	purchases []string
	rewards   []string
}

func (r *recordingEvents) PurchaseRecorded(_ *business.Business, c *customer.Customer, _ *Purchase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchases = append(r.purchases, c.ID)
}

func (r *recordingEvents) RewardUnlocked(_ *business.Business, c *customer.Customer, _ *Purchase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rewards = append(r.rewards, c.ID)
}

type testEnv struct {
	engine    *Engine
	store     *MemoryStore
	customers customer.Store
	events    *recordingEvents
	biz       *business.Business
	cust      *customer.Customer
}

func setupEngine(t *testing.T, threshold, cooldownMinutes int) *testEnv {
	t.Helper()

	businesses := business.NewMemoryStore()
	customers := customer.NewMemoryStore()
	store := NewMemoryStore(customers)
	events := &recordingEvents{}
	engine := New(businesses, customers, store, events, testLogger())

	biz := &business.Business{
		ID:         "biz_1",
		Name:       "Cafe Aroma",
		Slug:       "cafe-aroma",
		OwnerEmail: "owner@cafearoma.com",
		Settings: business.Settings{
			RewardThreshold: threshold,
			CooldownMinutes: cooldownMinutes,
		},
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, businesses.Create(context.Background(), biz))

	cust := &customer.Customer{
		ID:         "cus_1",
		BusinessID: biz.ID,
		Name:       "Maria Lopez",
		Email:      "maria@example.com",
		ScanCode:   "550e8400-e29b-41d4-a716-446655440000",
		Active:     true,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, customers.Create(context.Background(), cust))

	return &testEnv{
		engine:    engine,
		store:     store,
		customers: customers,
		events:    events,
		biz:       biz,
		cust:      cust,
	}
}

func TestRegisterPurchase_AccruesAndUnlocksReward(t *testing.T) {
	env := setupEngine(t, 3, 0)
	ctx := context.Background()
	lookup := Lookup{ScanCode: env.cust.ScanCode}

	for i := 1; i <= 2; i++ {
		outcome, err := env.engine.RegisterPurchase(ctx, env.biz.ID, lookup)
		require.NoError(t, err)
		assert.Equal(t, i, outcome.Purchase.PurchaseNumber)
		assert.False(t, outcome.RewardUnlocked)
		assert.Equal(t, i, outcome.Customer.TotalPurchases)
		assert.Equal(t, 0, outcome.Customer.PendingRewards)
	}

	// Third purchase hits the threshold
	outcome, err := env.engine.RegisterPurchase(ctx, env.biz.ID, lookup)
	require.NoError(t, err)
	assert.True(t, outcome.RewardUnlocked)
	assert.True(t, outcome.Purchase.IsReward)
	assert.Equal(t, 3, outcome.Purchase.PurchaseNumber)
	assert.Equal(t, 3, outcome.Customer.TotalPurchases)
	assert.Equal(t, 1, outcome.Customer.PendingRewards)

	// Sixth unlocks a second reward
	for i := 0; i < 2; i++ {
		_, err = env.engine.RegisterPurchase(ctx, env.biz.ID, lookup)
		require.NoError(t, err)
	}
	outcome, err = env.engine.RegisterPurchase(ctx, env.biz.ID, lookup)
	require.NoError(t, err)
	assert.True(t, outcome.RewardUnlocked)
	assert.Equal(t, 6, outcome.Customer.TotalPurchases)
	assert.Equal(t, 2, outcome.Customer.PendingRewards)
}

func TestRegisterPurchase_ByEmail(t *testing.T) {
	env := setupEngine(t, 10, 0)

	// Email lookup is case-insensitive
	outcome, err := env.engine.RegisterPurchase(context.Background(), env.biz.ID,
		Lookup{Email: "  MARIA@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, env.cust.ID, outcome.Customer.ID)
	assert.Equal(t, 1, outcome.Customer.TotalPurchases)
}

func TestRegisterPurchase_UnknownCustomer(t *testing.T) {
	env := setupEngine(t, 10, 0)

	_, err := env.engine.RegisterPurchase(context.Background(), env.biz.ID,
		Lookup{ScanCode: "nonexistent-code-1234"})
	assert.ErrorIs(t, err, customer.ErrCustomerNotFound)

	_, err = env.engine.RegisterPurchase(context.Background(), env.biz.ID, Lookup{})
	assert.ErrorIs(t, err, customer.ErrCustomerNotFound)
}

func TestRegisterPurchase_UnknownBusiness(t *testing.T) {
	env := setupEngine(t, 10, 0)

	_, err := env.engine.RegisterPurchase(context.Background(), "biz_missing",
		Lookup{ScanCode: env.cust.ScanCode})
	assert.ErrorIs(t, err, business.ErrBusinessNotFound)
}

func TestRegisterPurchase_InactiveBusiness(t *testing.T) {
	env := setupEngine(t, 10, 0)

	env.biz.Active = false
	require.NoError(t, env.engine.businesses.Update(context.Background(), env.biz))

	_, err := env.engine.RegisterPurchase(context.Background(), env.biz.ID,
		Lookup{ScanCode: env.cust.ScanCode})
	assert.ErrorIs(t, err, business.ErrBusinessNotFound)
}

func TestRegisterPurchase_BlockedCustomer(t *testing.T) {
	env := setupEngine(t, 10, 0)
	ctx := context.Background()

	env.cust.Blocked = true
	env.cust.BlockReason = "velocity abuse"
	require.NoError(t, env.customers.Update(ctx, env.cust))

	_, err := env.engine.RegisterPurchase(ctx, env.biz.ID, Lookup{ScanCode: env.cust.ScanCode})

	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "velocity abuse", blocked.Reason)

	// No purchase was written
	purchases, err := env.engine.History(ctx, env.biz.ID, env.cust.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, purchases)

	got, err := env.customers.Get(ctx, env.biz.ID, env.cust.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalPurchases)
}

func TestRegisterPurchase_CooldownActive(t *testing.T) {
	env := setupEngine(t, 10, 60)
	ctx := context.Background()
	lookup := Lookup{ScanCode: env.cust.ScanCode}

	_, err := env.engine.RegisterPurchase(ctx, env.biz.ID, lookup)
	require.NoError(t, err)

	_, err = env.engine.RegisterPurchase(ctx, env.biz.ID, lookup)

	var cooldown *CooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.GreaterOrEqual(t, cooldown.RemainingMinutes(), 1)
	assert.LessOrEqual(t, cooldown.RemainingMinutes(), 60)

	// The rejected scan left no trace
	purchases, err := env.engine.History(ctx, env.biz.ID, env.cust.ID, 10)
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
}

func TestRegisterPurchase_EventsFired(t *testing.T) {
	env := setupEngine(t, 2, 0)
	ctx := context.Background()
	lookup := Lookup{ScanCode: env.cust.ScanCode}

	_, err := env.engine.RegisterPurchase(ctx, env.biz.ID, lookup)
	require.NoError(t, err)
	_, err = env.engine.RegisterPurchase(ctx, env.biz.ID, lookup)
	require.NoError(t, err)

	env.events.mu.Lock()
	defer env.events.mu.Unlock()
	assert.Len(t, env.events.purchases, 2)
	assert.Len(t, env.events.rewards, 1)
}

func TestRedeemReward(t *testing.T) {
	env := setupEngine(t, 2, 0)
	ctx := context.Background()
	lookup := Lookup{ScanCode: env.cust.ScanCode}

	for i := 0; i < 2; i++ {
		_, err := env.engine.RegisterPurchase(ctx, env.biz.ID, lookup)
		require.NoError(t, err)
	}

	cust, err := env.engine.RedeemReward(ctx, env.biz.ID, env.cust.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, cust.PendingRewards)
	assert.Equal(t, 1, cust.RedeemedRewards)
	assert.Equal(t, 2, cust.TotalPurchases) // totals untouched

	// Nothing left to redeem
	_, err = env.engine.RedeemReward(ctx, env.biz.ID, env.cust.ID)
	assert.ErrorIs(t, err, ErrNoPendingReward)
}

func TestRedeemReward_UnknownCustomer(t *testing.T) {
	env := setupEngine(t, 2, 0)

	_, err := env.engine.RedeemReward(context.Background(), env.biz.ID, "cus_missing")
	assert.ErrorIs(t, err, customer.ErrCustomerNotFound)
}

func TestRegisterPurchase_Concurrent(t *testing.T) {
	env := setupEngine(t, 5, 0)
	ctx := context.Background()
	lookup := Lookup{ScanCode: env.cust.ScanCode}

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.engine.RegisterPurchase(ctx, env.biz.ID, lookup)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "purchase %d", i)
	}

	// Purchase numbers are unique and the counter is exact
	purchases, err := env.engine.History(ctx, env.biz.ID, env.cust.ID, 100)
	require.NoError(t, err)
	require.Len(t, purchases, n)

	seen := make(map[int]bool)
	for _, p := range purchases {
		assert.False(t, seen[p.PurchaseNumber], "duplicate purchase number %d", p.PurchaseNumber)
		seen[p.PurchaseNumber] = true
	}

	got, err := env.customers.Get(ctx, env.biz.ID, env.cust.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.TotalPurchases)
	assert.Equal(t, n/5, got.PendingRewards)
}

func TestHistory(t *testing.T) {
	env := setupEngine(t, 100, 0)
	ctx := context.Background()

	// Second customer in the same business
	other := &customer.Customer{
		ID:         "cus_2",
		BusinessID: env.biz.ID,
		Name:       "Juan Perez",
		Email:      "juan@example.com",
		ScanCode:   "660e8400-e29b-41d4-a716-446655440001",
		Active:     true,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, env.customers.Create(ctx, other))

	for i := 0; i < 3; i++ {
		_, err := env.engine.RegisterPurchase(ctx, env.biz.ID, Lookup{ScanCode: env.cust.ScanCode})
		require.NoError(t, err)
	}
	_, err := env.engine.RegisterPurchase(ctx, env.biz.ID, Lookup{ScanCode: other.ScanCode})
	require.NoError(t, err)

	all, err := env.engine.History(ctx, env.biz.ID, "", 100)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	filtered, err := env.engine.History(ctx, env.biz.ID, other.ID, 100)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, other.ID, filtered[0].CustomerID)

	limited, err := env.engine.History(ctx, env.biz.ID, env.cust.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
