package order

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novamarkt/platform/internal/payments"
	"github.com/novamarkt/platform/internal/user"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(t *testing.T) (*gin.Engine, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	handler := NewHandler(env.svc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if actorID := c.GetHeader("X-User-ID"); actorID != "" {
			c.Set("actorID", actorID)
		}
		c.Next()
	})
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)
	handler.RegisterWebhook(api, env.provider)
	return router, env
}

func doJSON(router *gin.Engine, method, path string, body any, actorID string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set("X-User-ID", actorID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateOrderEndpoint(t *testing.T) {
	router, env := setupTestRouter(t)
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	w := doJSON(router, http.MethodPost, "/api/v1/orders", gin.H{"listingId": "lst_1"}, "usr_buyer")
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Order Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusPending, resp.Order.Status)
	assert.Equal(t, int64(240), resp.Order.FeeCents)

	// The idempotent repeat answers 200, not 201.
	w = doJSON(router, http.MethodPost, "/api/v1/orders", gin.H{"listingId": "lst_1"}, "usr_buyer")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateOrderEndpointErrors(t *testing.T) {
	router, env := setupTestRouter(t)
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	w := doJSON(router, http.MethodPost, "/api/v1/orders", gin.H{"listingId": "lst_1"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/orders", gin.H{}, "usr_buyer")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/orders", gin.H{"listingId": "lst_ghost"}, "usr_buyer")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/orders", gin.H{"listingId": "lst_1"}, "usr_seller")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderLifecycleEndpoints(t *testing.T) {
	router, env := setupTestRouter(t)
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	w := doJSON(router, http.MethodPost, "/api/v1/orders", gin.H{"listingId": "lst_1"}, "usr_buyer")
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Order Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	orderID := created.Order.ID

	w = doJSON(router, http.MethodPost, "/api/v1/orders/"+orderID+"/pay", nil, "usr_buyer")
	require.Equal(t, http.StatusOK, w.Code)
	var pr PayResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pr))
	assert.NotEmpty(t, pr.ClientSecret)

	// The fake provider accepts plain JSON webhooks.
	w = doJSON(router, http.MethodPost, "/api/v1/webhooks/payments", gin.H{
		"type":     payments.EventPaymentSucceeded,
		"intentId": pr.IntentID,
		"orderId":  orderID,
	}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/orders/"+orderID+"/ship", gin.H{"tracking": "TRK1", "carrier": "dhl"}, "usr_seller")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm-delivery", nil, "usr_buyer")
	require.Equal(t, http.StatusOK, w.Code)

	o, err := env.store.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, o.Status)
}

func TestShipConflictResponse(t *testing.T) {
	router, env := setupTestRouter(t)
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(context.Background(), "usr_buyer", "lst_1", "")
	require.NoError(t, err)

	// Shipping an unpaid order reports the state mismatch.
	w := doJSON(router, http.MethodPost, "/api/v1/orders/"+o.ID+"/ship", nil, "usr_seller")
	require.Equal(t, http.StatusConflict, w.Code)

	var resp struct {
		Error    string   `json:"error"`
		Actual   string   `json:"actual"`
		Expected []string `json:"expected"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "conflict", resp.Error)
	assert.Equal(t, "PENDING", resp.Actual)
	assert.Equal(t, []string{"PAID"}, resp.Expected)
}

func TestDisputeEndpoint(t *testing.T) {
	router, env := setupTestRouter(t)
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(context.Background(), "usr_buyer", "lst_1", "")
	require.NoError(t, err)
	env.payOrder(t, o.ID, "usr_buyer")

	w := doJSON(router, http.MethodPost, "/api/v1/orders/"+o.ID+"/dispute", gin.H{"reason": ""}, "usr_buyer")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/orders/"+o.ID+"/dispute", gin.H{"reason": "Artikel defekt"}, "usr_buyer")
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/orders/"+o.ID+"/dispute", gin.H{"reason": "nochmal"}, "usr_buyer")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetOrderEndpointAuthorization(t *testing.T) {
	router, env := setupTestRouter(t)
	env.seedUser(t, "usr_seller", user.RoleUser)
	env.seedUser(t, "usr_buyer", user.RoleUser)
	env.seedUser(t, "usr_other", user.RoleUser)
	env.seedListing(t, "lst_1", "usr_seller", 10000)

	o, _, err := env.svc.Create(context.Background(), "usr_buyer", "lst_1", "")
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, "/api/v1/orders/"+o.ID, nil, "usr_buyer")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/orders/"+o.ID, nil, "usr_other")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookEndpointRejectsGarbage(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
