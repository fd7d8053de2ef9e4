package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"sales_ledger_v1/internal/controller"
	"sales_ledger_v1/internal/middleware"
)

func TestInitRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	InitRoutes(r, &Controllers{
		Sync:         controller.NewSyncController(nil, nil, nil),
		Sales:        controller.NewSalesController(nil),
		Analytics:    controller.NewAnalyticsController(nil),
		Credential:   controller.NewCredentialController(nil),
		SyncCooldown: time.Minute,
		Limiter:      middleware.NewSyncRateLimiter(),
		TaskStatus:   func() map[string]bool { return map[string]bool{"sync": true} },
	})

	registered := map[string]bool{}
	for _, ri := range r.Routes() {
		registered[ri.Method+" "+ri.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"POST /api/sync",
		"GET /api/sync/runs",
		"GET /api/sales",
		"GET /api/analytics/trend",
		"GET /api/analytics/platforms",
		"GET /api/analytics/products",
		"GET /api/analytics/customers",
		"POST /api/credentials",
		"GET /api/credentials",
		"DELETE /api/credentials/:id",
	} {
		if !registered[want] {
			t.Errorf("路由未注册: %s", want)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var body struct {
		Data struct {
			Status string          `json:"status"`
			Tasks  map[string]bool `json:"tasks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if body.Data.Status != "ok" || !body.Data.Tasks["sync"] {
		t.Errorf("health = %+v", body.Data)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sales", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("未登录 status = %d, want 401", w.Code)
	}
}
