package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/broadcast/pkg/log"
)

func TestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	metrics := NewMetrics("admin")
	metrics.Register(registry)

	router := gin.New()
	router.Use(metrics.Handler())
	router.Use(NewLogger(log.NewNopLogger()))
	router.GET("/status/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/status/a", "/status/b", "/notfound"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
	}

	families, err := registry.Gather()
	require.NoError(t, err)

	requests := make(map[string]float64)
	for _, family := range families {
		if family.GetName() != "broadcast_admin_requests_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			var route, status string
			for _, label := range m.GetLabel() {
				switch label.GetName() {
				case "route":
					route = label.GetValue()
				case "status":
					status = label.GetValue()
				}
			}
			requests[route+" "+status] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, map[string]float64{
		"/status/:id 200": 2,
		"unknown 404":     1,
	}, requests)
}
