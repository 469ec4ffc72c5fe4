package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPChecker(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		min, max int
		healthy  bool
	}{
		{name: "ready", status: http.StatusOK, healthy: true},
		{name: "not ready", status: http.StatusServiceUnavailable, healthy: false},
		{name: "redirect within default range", status: http.StatusFound, healthy: true},
		{name: "custom range", status: http.StatusCreated, min: 201, max: 201, healthy: true},
		{name: "outside custom range", status: http.StatusOK, min: 201, max: 204, healthy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			checker := NewHTTPChecker(server.URL)
			if tt.min != 0 {
				checker.WithStatusRange(tt.min, tt.max)
			}

			result := checker.Check(context.Background())
			assert.Equal(t, tt.healthy, result.Healthy, result.Message)
			assert.Positive(t, result.Duration)
			assert.Equal(t, CheckTypeHTTP, checker.Type())
		})
	}
}

func TestHTTPCheckerTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).WithTimeout(50 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "request failed")
}

func TestHTTPCheckerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	result := NewHTTPChecker(url).Check(context.Background())
	assert.False(t, result.Healthy)
}
