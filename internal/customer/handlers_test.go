package customer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fideliqr/fideliqr/internal/business"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingEvents captures enrollment events for assertions.
type recordingEvents struct {
	mu       sync.Mutex
	enrolled []string
}

func (r *recordingEvents) CustomerEnrolled(_ *business.Business, c *Customer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrolled = append(r.enrolled, c.ID)
}

func setupRouter(t *testing.T, threshold int) (*gin.Engine, *MemoryStore, *recordingEvents) {
	t.Helper()

	businesses := business.NewMemoryStore()
	require.NoError(t, businesses.Create(context.Background(), &business.Business{
		ID:   "biz_1",
		Name: "Cafe Aroma",
		Slug: "cafe-aroma",
		Settings: business.Settings{
			RewardThreshold: threshold,
			CooldownMinutes: 0,
		},
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))

	store := NewMemoryStore()
	events := &recordingEvents{}
	handler := NewHandler(store, businesses, events)

	router := gin.New()
	handler.RegisterRoutes(router.Group("/"))
	return router, store, events
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var data []byte
	if body != nil {
		data, _ = json.Marshal(body)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestEnrollCustomer_Success(t *testing.T) {
	router, store, events := setupRouter(t, 10)

	w := doJSON(router, "POST", "/businesses/biz_1/customers", map[string]interface{}{
		"name":  "Maria Lopez",
		"email": "Maria@Example.com",
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	cust := resp["customer"].(map[string]interface{})
	assert.Equal(t, "Maria Lopez", cust["name"])
	assert.Equal(t, "maria@example.com", cust["email"]) // normalized
	assert.NotEmpty(t, cust["scanCode"])
	assert.Equal(t, float64(0), cust["totalPurchases"])
	assert.Equal(t, float64(0), cust["pendingRewards"])

	created, err := store.Get(context.Background(), "biz_1", cust["id"].(string))
	require.NoError(t, err)
	assert.True(t, created.Active)

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Len(t, events.enrolled, 1)
}

func TestEnrollCustomer_InitialPurchases(t *testing.T) {
	router, _, _ := setupRouter(t, 10)

	// Migrating a paper punch card with 25 stamps grants 2 full rewards
	w := doJSON(router, "POST", "/businesses/biz_1/customers", map[string]interface{}{
		"name":             "Maria Lopez",
		"email":            "maria@example.com",
		"initialPurchases": 25,
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	cust := resp["customer"].(map[string]interface{})
	assert.Equal(t, float64(25), cust["totalPurchases"])
	assert.Equal(t, float64(2), cust["pendingRewards"])
}

func TestEnrollCustomer_NegativeInitialPurchases(t *testing.T) {
	router, _, _ := setupRouter(t, 10)

	w := doJSON(router, "POST", "/businesses/biz_1/customers", map[string]interface{}{
		"name":             "Maria Lopez",
		"email":            "maria@example.com",
		"initialPurchases": -1,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollCustomer_DuplicateEmail(t *testing.T) {
	router, _, _ := setupRouter(t, 10)

	body := map[string]interface{}{"name": "Maria Lopez", "email": "maria@example.com"}
	first := doJSON(router, "POST", "/businesses/biz_1/customers", body)
	require.Equal(t, http.StatusCreated, first.Code)

	// Same email, different case: still a duplicate
	w := doJSON(router, "POST", "/businesses/biz_1/customers", map[string]interface{}{
		"name":  "Other Maria",
		"email": "MARIA@example.com",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "email_taken", resp["error"])
}

func TestEnrollCustomer_InvalidEmail(t *testing.T) {
	router, _, _ := setupRouter(t, 10)

	w := doJSON(router, "POST", "/businesses/biz_1/customers", map[string]interface{}{
		"name":  "Maria Lopez",
		"email": "not-an-email",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "invalid_email", resp["error"])
}

func TestEnrollCustomer_UnknownBusiness(t *testing.T) {
	router, _, _ := setupRouter(t, 10)

	w := doJSON(router, "POST", "/businesses/biz_missing/customers", map[string]interface{}{
		"name":  "Maria Lopez",
		"email": "maria@example.com",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCustomers(t *testing.T) {
	router, _, _ := setupRouter(t, 10)

	for _, email := range []string{"a@example.com", "b@example.com"} {
		w := doJSON(router, "POST", "/businesses/biz_1/customers", map[string]interface{}{
			"name":  "Customer",
			"email": email,
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/businesses/biz_1/customers", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["count"])
}

func TestGetCustomer_NotFound(t *testing.T) {
	router, _, _ := setupRouter(t, 10)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/businesses/biz_1/customers/cus_missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegenerateScanCode(t *testing.T) {
	router, store, _ := setupRouter(t, 10)

	create := doJSON(router, "POST", "/businesses/biz_1/customers", map[string]interface{}{
		"name":  "Maria Lopez",
		"email": "maria@example.com",
	})
	require.Equal(t, http.StatusCreated, create.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(create.Body.Bytes(), &created))
	cust := created["customer"].(map[string]interface{})
	id := cust["id"].(string)
	oldCode := cust["scanCode"].(string)

	w := doJSON(router, "POST", "/businesses/biz_1/customers/"+id+"/scan-code", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	newCode := resp["customer"].(map[string]interface{})["scanCode"].(string)
	assert.NotEqual(t, oldCode, newCode)

	// The old code no longer resolves; the new one does
	ctx := context.Background()
	_, err := store.GetByScanCode(ctx, "biz_1", oldCode)
	assert.ErrorIs(t, err, ErrCustomerNotFound)

	found, err := store.GetByScanCode(ctx, "biz_1", newCode)
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)
}

func TestScanCodeScopedToBusiness(t *testing.T) {
	router, store, _ := setupRouter(t, 10)

	create := doJSON(router, "POST", "/businesses/biz_1/customers", map[string]interface{}{
		"name":  "Maria Lopez",
		"email": "maria@example.com",
	})
	require.Equal(t, http.StatusCreated, create.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(create.Body.Bytes(), &created))
	code := created["customer"].(map[string]interface{})["scanCode"].(string)

	// The code only resolves for its own business
	_, err := store.GetByScanCode(context.Background(), "biz_other", code)
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}
