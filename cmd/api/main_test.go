package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/agriloop/internal/alerts"
	"github.com/sudo-init-do/agriloop/internal/config"
	"github.com/sudo-init-do/agriloop/internal/live"
	"github.com/sudo-init-do/agriloop/internal/marketplace"
	mware "github.com/sudo-init-do/agriloop/internal/middleware"
	"github.com/sudo-init-do/agriloop/internal/payments"
)

func TestServerRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret"}}
	svc := marketplace.NewService(marketplace.NewMemoryStore(), nil, marketplace.WithLogger(logger))
	e := newServer(cfg, svc, live.NewHub(logger), alerts.NewMemoryInbox(), payments.NewMemoryDeduper(time.Hour), logger)

	tok, err := mware.IssueToken("test-secret", "buyer-1", "buyer", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		auth bool
		want int
	}{
		{"health", "/health", false, http.StatusOK},
		{"public listings", "/listings", false, http.StatusOK},
		{"unknown path", "/no/such/route", false, http.StatusNotFound},
		{"root", "/", false, http.StatusNotFound},
		{"unknown path with token", "/no/such/route", true, http.StatusNotFound},
		{"protected without token", "/orders/my/buyer", false, http.StatusUnauthorized},
		{"protected with token", "/orders/my/buyer", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth {
				req.Header.Set("Authorization", "Bearer "+tok)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
