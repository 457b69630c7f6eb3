package fraud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fideliqr/fideliqr/internal/accrual"
	"github.com/fideliqr/fideliqr/internal/customer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingEvents captures block events for assertions.
type recordingEvents struct {
	mu      sync.Mutex
	blocked []string
}

func (r *recordingEvents) CustomerBlocked(_ string, c *customer.Customer, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked = append(r.blocked, c.ID)
}

type testEnv struct {
	monitor   *Monitor
	store     *MemoryStore
	accruals  *accrual.MemoryStore
	customers customer.Store
	events    *recordingEvents
}

func setupMonitor(t *testing.T, threshold int) *testEnv {
	t.Helper()

	customers := customer.NewMemoryStore()
	accruals := accrual.NewMemoryStore(customers)
	store := NewMemoryStore(accruals)
	events := &recordingEvents{}
	monitor := NewMonitor(customers, store, Config{
		Window:    24 * time.Hour,
		Threshold: threshold,
	}, events, testLogger())

	return &testEnv{
		monitor:   monitor,
		store:     store,
		accruals:  accruals,
		customers: customers,
		events:    events,
	}
}

func (env *testEnv) addCustomer(t *testing.T, id, name string) *customer.Customer {
	t.Helper()
	c := &customer.Customer{
		ID:         id,
		BusinessID: "biz_1",
		Name:       name,
		Email:      id + "@example.com",
		ScanCode:   "code-" + id + "-0000",
		Active:     true,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, env.customers.Create(context.Background(), c))
	return c
}

func (env *testEnv) addPurchases(t *testing.T, customerID string, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, _, err := env.accruals.Record(context.Background(), accrual.RecordParams{
			PurchaseID: fmt.Sprintf("pur_%s_%d_%d", customerID, at.Unix(), i),
			BusinessID: "biz_1",
			CustomerID: customerID,
			Threshold:  1000, // never unlocks during these tests
			Now:        at,
		})
		require.NoError(t, err)
	}
}

func TestScan_FlagsOverThreshold(t *testing.T) {
	env := setupMonitor(t, 5)
	ctx := context.Background()
	now := time.Now()

	heavy := env.addCustomer(t, "cus_heavy", "Maria Lopez")
	env.addCustomer(t, "cus_light", "Juan Perez")
	env.addPurchases(t, heavy.ID, 6, now)
	env.addPurchases(t, "cus_light", 3, now)

	flagged, err := env.monitor.ScanSuspiciousActivity(ctx, "biz_1")
	require.NoError(t, err)

	require.Len(t, flagged, 1)
	assert.Equal(t, heavy.ID, flagged[0].Customer.ID)
	assert.Equal(t, 6, flagged[0].PurchaseCount)
}

func TestScan_ExactlyAtThresholdNotFlagged(t *testing.T) {
	env := setupMonitor(t, 5)

	c := env.addCustomer(t, "cus_1", "Maria Lopez")
	env.addPurchases(t, c.ID, 5, time.Now())

	flagged, err := env.monitor.ScanSuspiciousActivity(context.Background(), "biz_1")
	require.NoError(t, err)
	assert.Empty(t, flagged)
}

func TestScan_OldPurchasesOutsideWindow(t *testing.T) {
	env := setupMonitor(t, 5)

	c := env.addCustomer(t, "cus_1", "Maria Lopez")
	env.addPurchases(t, c.ID, 10, time.Now().Add(-48*time.Hour))
	env.addPurchases(t, c.ID, 2, time.Now())

	flagged, err := env.monitor.ScanSuspiciousActivity(context.Background(), "biz_1")
	require.NoError(t, err)
	assert.Empty(t, flagged)
}

func TestScan_ExcludesBlocked(t *testing.T) {
	env := setupMonitor(t, 5)
	ctx := context.Background()

	c := env.addCustomer(t, "cus_1", "Maria Lopez")
	env.addPurchases(t, c.ID, 8, time.Now())

	_, err := env.monitor.Block(ctx, "biz_1", c.ID, "already handled")
	require.NoError(t, err)

	flagged, err := env.monitor.ScanSuspiciousActivity(ctx, "biz_1")
	require.NoError(t, err)
	assert.Empty(t, flagged)
}

func TestScan_OrdersByCountDescending(t *testing.T) {
	env := setupMonitor(t, 5)
	now := time.Now()

	a := env.addCustomer(t, "cus_a", "A")
	b := env.addCustomer(t, "cus_b", "B")
	env.addPurchases(t, a.ID, 6, now)
	env.addPurchases(t, b.ID, 9, now)

	flagged, err := env.monitor.ScanSuspiciousActivity(context.Background(), "biz_1")
	require.NoError(t, err)

	require.Len(t, flagged, 2)
	assert.Equal(t, b.ID, flagged[0].Customer.ID)
	assert.Equal(t, a.ID, flagged[1].Customer.ID)
}

func TestScan_VelocityAlertDeduplicated(t *testing.T) {
	env := setupMonitor(t, 5)
	ctx := context.Background()

	c := env.addCustomer(t, "cus_1", "Maria Lopez")
	env.addPurchases(t, c.ID, 7, time.Now())

	// First scan raises one velocity alert
	_, err := env.monitor.ScanSuspiciousActivity(ctx, "biz_1")
	require.NoError(t, err)

	alerts, err := env.store.ListAlerts(ctx, "biz_1", 50)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertVelocity, alerts[0].Type)
	assert.Equal(t, c.ID, alerts[0].CustomerID)

	// Repeated scans do not add more while the alert is unreviewed
	_, err = env.monitor.ScanSuspiciousActivity(ctx, "biz_1")
	require.NoError(t, err)
	alerts, _ = env.store.ListAlerts(ctx, "biz_1", 50)
	assert.Len(t, alerts, 1)

	// After review, a still-suspicious customer raises a fresh alert
	_, err = env.monitor.ReviewAlert(ctx, "biz_1", alerts[0].ID)
	require.NoError(t, err)

	_, err = env.monitor.ScanSuspiciousActivity(ctx, "biz_1")
	require.NoError(t, err)
	alerts, _ = env.store.ListAlerts(ctx, "biz_1", 50)
	assert.Len(t, alerts, 2)
}

func TestBlock(t *testing.T) {
	env := setupMonitor(t, 5)
	ctx := context.Background()

	c := env.addCustomer(t, "cus_1", "Maria Lopez")

	blocked, err := env.monitor.Block(ctx, "biz_1", c.ID, "shared scan code")
	require.NoError(t, err)
	assert.True(t, blocked.Blocked)
	assert.Equal(t, "shared scan code", blocked.BlockReason)
	require.NotNil(t, blocked.BlockedAt)

	// One manual alert per block call
	alerts, err := env.store.ListAlerts(ctx, "biz_1", 50)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertManual, alerts[0].Type)

	// Re-blocking overwrites the reason and adds another alert
	first := *blocked.BlockedAt
	time.Sleep(5 * time.Millisecond)
	blocked, err = env.monitor.Block(ctx, "biz_1", c.ID, "second decision")
	require.NoError(t, err)
	assert.Equal(t, "second decision", blocked.BlockReason)
	assert.True(t, blocked.BlockedAt.After(first))

	alerts, _ = env.store.ListAlerts(ctx, "biz_1", 50)
	assert.Len(t, alerts, 2)

	env.events.mu.Lock()
	defer env.events.mu.Unlock()
	assert.Len(t, env.events.blocked, 2)
}

func TestBlock_UnknownCustomer(t *testing.T) {
	env := setupMonitor(t, 5)

	_, err := env.monitor.Block(context.Background(), "biz_1", "cus_missing", "reason")
	assert.ErrorIs(t, err, customer.ErrCustomerNotFound)
}

func TestBlock_RejectsNewPurchases(t *testing.T) {
	env := setupMonitor(t, 5)
	ctx := context.Background()

	c := env.addCustomer(t, "cus_1", "Maria Lopez")
	_, err := env.monitor.Block(ctx, "biz_1", c.ID, "fraud")
	require.NoError(t, err)

	_, _, err = env.accruals.Record(ctx, accrual.RecordParams{
		PurchaseID: "pur_after_block",
		BusinessID: "biz_1",
		CustomerID: c.ID,
		Threshold:  10,
		Now:        time.Now(),
	})
	var blockedErr *accrual.BlockedError
	assert.ErrorAs(t, err, &blockedErr)
}

func TestUnblock(t *testing.T) {
	env := setupMonitor(t, 5)
	ctx := context.Background()

	c := env.addCustomer(t, "cus_1", "Maria Lopez")
	_, err := env.monitor.Block(ctx, "biz_1", c.ID, "fraud")
	require.NoError(t, err)

	unblocked, err := env.monitor.Unblock(ctx, "biz_1", c.ID)
	require.NoError(t, err)
	assert.False(t, unblocked.Blocked)
	assert.Empty(t, unblocked.BlockReason)
	assert.Nil(t, unblocked.BlockedAt)

	// The block's alert stays; unblocking adds none
	alerts, err := env.store.ListAlerts(ctx, "biz_1", 50)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestReviewAlert_Idempotent(t *testing.T) {
	env := setupMonitor(t, 5)
	ctx := context.Background()

	c := env.addCustomer(t, "cus_1", "Maria Lopez")
	_, err := env.monitor.Block(ctx, "biz_1", c.ID, "fraud")
	require.NoError(t, err)

	alerts, _ := env.store.ListAlerts(ctx, "biz_1", 50)
	require.Len(t, alerts, 1)

	reviewed, err := env.monitor.ReviewAlert(ctx, "biz_1", alerts[0].ID)
	require.NoError(t, err)
	assert.True(t, reviewed.Reviewed)
	require.NotNil(t, reviewed.ReviewedAt)
	firstReview := *reviewed.ReviewedAt

	// Second review is a no-op; the original timestamp survives
	time.Sleep(5 * time.Millisecond)
	again, err := env.monitor.ReviewAlert(ctx, "biz_1", alerts[0].ID)
	require.NoError(t, err)
	assert.True(t, again.Reviewed)
	assert.True(t, again.ReviewedAt.Equal(firstReview))
}

func TestReviewAlert_NotFound(t *testing.T) {
	env := setupMonitor(t, 5)

	_, err := env.monitor.ReviewAlert(context.Background(), "biz_1", "alr_missing")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestMarkPurchaseSuspicious(t *testing.T) {
	env := setupMonitor(t, 5)
	ctx := context.Background()

	c := env.addCustomer(t, "cus_1", "Maria Lopez")
	env.addPurchases(t, c.ID, 1, time.Now())

	purchases, err := env.accruals.ListPurchases(ctx, "biz_1", c.ID, 10)
	require.NoError(t, err)
	require.Len(t, purchases, 1)

	marked, err := env.monitor.MarkPurchaseSuspicious(ctx, "biz_1", purchases[0].ID)
	require.NoError(t, err)
	assert.True(t, marked.Suspicious)

	// Counters are untouched
	got, err := env.customers.Get(ctx, "biz_1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalPurchases)
}

func TestMarkPurchaseSuspicious_NotFound(t *testing.T) {
	env := setupMonitor(t, 5)

	_, err := env.monitor.MarkPurchaseSuspicious(context.Background(), "biz_1", "pur_missing")
	assert.ErrorIs(t, err, accrual.ErrPurchaseNotFound)
}

func TestSecurityView(t *testing.T) {
	env := setupMonitor(t, 5)
	ctx := context.Background()
	now := time.Now()

	fast := env.addCustomer(t, "cus_fast", "Fast Finger")
	bad := env.addCustomer(t, "cus_bad", "Blocked Bob")
	env.addCustomer(t, "cus_ok", "Normal Nora")
	env.addPurchases(t, fast.ID, 7, now)

	_, err := env.monitor.Block(ctx, "biz_1", bad.ID, "chargeback history")
	require.NoError(t, err)

	view, err := env.monitor.Security(ctx, "biz_1")
	require.NoError(t, err)

	assert.Equal(t, 1, view.Summary.BlockedCustomers)
	assert.Equal(t, 1, view.Summary.OverThreshold)
	require.Len(t, view.BlockedCustomers, 1)
	assert.Equal(t, bad.ID, view.BlockedCustomers[0].ID)
	require.Len(t, view.SuspiciousActivity, 1)
	assert.Equal(t, fast.ID, view.SuspiciousActivity[0].Customer.ID)

	// Manual alert from the block plus the velocity alert the scan just raised
	assert.Len(t, view.Alerts, 1) // alerts fetched before the scan ran
	assert.Equal(t, 1, view.Summary.UnreviewedAlerts)
}
