package business

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) (*gin.Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	handler := NewHandler(store, Settings{
		RewardThreshold: 10,
		CooldownMinutes: 60,
		EmailEnabled:    true,
	})

	router := gin.New()
	handler.RegisterRoutes(router.Group("/"))
	return router, store
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

func TestCreateBusiness_Success(t *testing.T) {
	router, store := setupRouter(t)

	w := doJSON(router, "POST", "/businesses", map[string]string{
		"name":       "Cafe Aroma",
		"slug":       "cafe-aroma",
		"ownerEmail": "Owner@CafeAroma.com",
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	biz := resp["business"].(map[string]interface{})
	assert.Equal(t, "Cafe Aroma", biz["name"])
	assert.Equal(t, "cafe-aroma", biz["slug"])
	assert.Equal(t, "owner@cafearoma.com", biz["ownerEmail"])

	created, err := store.Get(context.Background(), biz["id"].(string))
	require.NoError(t, err)
	// New businesses inherit the configured defaults
	assert.Equal(t, 10, created.Settings.RewardThreshold)
	assert.Equal(t, 60, created.Settings.CooldownMinutes)
	assert.True(t, created.Active)
}

func TestCreateBusiness_DuplicateSlug(t *testing.T) {
	router, _ := setupRouter(t)

	body := map[string]string{
		"name":       "Cafe Aroma",
		"slug":       "cafe-aroma",
		"ownerEmail": "owner@cafearoma.com",
	}
	first := doJSON(router, "POST", "/businesses", body)
	require.Equal(t, http.StatusCreated, first.Code)

	w := doJSON(router, "POST", "/businesses", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "slug_taken", resp["error"])
}

func TestCreateBusiness_InvalidSlug(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name string
		slug string
	}{
		{"too short", "ab"},
		{"starts with hyphen", "-invalid"},
		{"ends with hyphen", "invalid-"},
		{"special chars", "inva!id"},
		{"spaces", "invalid slug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, "POST", "/businesses", map[string]string{
				"name":       "Shop",
				"slug":       tt.slug,
				"ownerEmail": "owner@example.com",
			})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp map[string]interface{}
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			assert.Equal(t, "invalid_slug", resp["error"])
		})
	}
}

func TestCreateBusiness_InvalidEmail(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, "POST", "/businesses", map[string]string{
		"name":       "Shop",
		"slug":       "my-shop",
		"ownerEmail": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "invalid_email", resp["error"])
}

func TestGetBusiness(t *testing.T) {
	router, store := setupRouter(t)

	require.NoError(t, store.Create(context.Background(), &Business{
		ID:         "biz_1",
		Name:       "Cafe Aroma",
		Slug:       "cafe-aroma",
		OwnerEmail: "owner@cafearoma.com",
		Settings:   Settings{RewardThreshold: 10},
		Active:     true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/businesses/biz_1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/businesses/biz_missing", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateBusiness_PartialPatch(t *testing.T) {
	router, store := setupRouter(t)

	require.NoError(t, store.Create(context.Background(), &Business{
		ID:   "biz_1",
		Name: "Cafe Aroma",
		Slug: "cafe-aroma",
		Settings: Settings{
			RewardThreshold: 10,
			CooldownMinutes: 60,
		},
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))

	w := doJSON(router, "PATCH", "/businesses/biz_1", map[string]interface{}{
		"rewardThreshold": 5,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	updated, err := store.Get(context.Background(), "biz_1")
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Settings.RewardThreshold)
	// Untouched fields survive the patch
	assert.Equal(t, 60, updated.Settings.CooldownMinutes)
	assert.Equal(t, "Cafe Aroma", updated.Name)
}

func TestUpdateBusiness_TelegramChannel(t *testing.T) {
	router, store := setupRouter(t)

	require.NoError(t, store.Create(context.Background(), &Business{
		ID:       "biz_1",
		Name:     "Cafe Aroma",
		Slug:     "cafe-aroma",
		Settings: Settings{RewardThreshold: 10},
		Active:   true,
	}))

	w := doJSON(router, "PATCH", "/businesses/biz_1", map[string]interface{}{
		"telegramEnabled": true,
		"telegramToken":   "  123456:biz-bot  ",
		"telegramChatId":  "chat-42",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	updated, err := store.Get(context.Background(), "biz_1")
	require.NoError(t, err)
	assert.True(t, updated.Settings.TelegramEnabled)
	assert.Equal(t, "123456:biz-bot", updated.Settings.TelegramToken)
	assert.Equal(t, "chat-42", updated.Settings.TelegramChatID)

	// Clearing the token falls back to the env default at send time.
	w = doJSON(router, "PATCH", "/businesses/biz_1", map[string]interface{}{
		"telegramToken": "",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	updated, _ = store.Get(context.Background(), "biz_1")
	assert.Empty(t, updated.Settings.TelegramToken)
}

func TestUpdateBusiness_InvalidSettings(t *testing.T) {
	router, store := setupRouter(t)

	require.NoError(t, store.Create(context.Background(), &Business{
		ID:       "biz_1",
		Name:     "Cafe Aroma",
		Slug:     "cafe-aroma",
		Settings: Settings{RewardThreshold: 10},
		Active:   true,
	}))

	w := doJSON(router, "PATCH", "/businesses/biz_1", map[string]interface{}{
		"rewardThreshold": 0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "invalid_threshold", resp["error"])

	w = doJSON(router, "PATCH", "/businesses/biz_1", map[string]interface{}{
		"cooldownMinutes": -5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "invalid_cooldown", resp["error"])
}

func TestUpdateBusiness_Deactivate(t *testing.T) {
	router, store := setupRouter(t)

	require.NoError(t, store.Create(context.Background(), &Business{
		ID:       "biz_1",
		Name:     "Cafe Aroma",
		Slug:     "cafe-aroma",
		Settings: Settings{RewardThreshold: 10},
		Active:   true,
	}))

	w := doJSON(router, "PATCH", "/businesses/biz_1", map[string]interface{}{
		"active": false,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	updated, err := store.Get(context.Background(), "biz_1")
	require.NoError(t, err)
	assert.False(t, updated.Active)
}

func TestSettings_Validate(t *testing.T) {
	valid := Settings{RewardThreshold: 10, CooldownMinutes: 60}
	assert.NoError(t, valid.Validate())

	zeroCooldown := Settings{RewardThreshold: 1, CooldownMinutes: 0}
	assert.NoError(t, zeroCooldown.Validate())

	badThreshold := Settings{RewardThreshold: 0, CooldownMinutes: 60}
	assert.ErrorIs(t, badThreshold.Validate(), ErrInvalidThreshold)

	badCooldown := Settings{RewardThreshold: 10, CooldownMinutes: -1}
	assert.ErrorIs(t, badCooldown.Validate(), ErrInvalidCooldown)
}

func TestNotificationEmail(t *testing.T) {
	b := &Business{OwnerEmail: "owner@example.com"}
	assert.Equal(t, "owner@example.com", b.NotificationEmail())

	b.Settings.NotifyEmail = "alerts@example.com"
	assert.Equal(t, "alerts@example.com", b.NotificationEmail())
}
