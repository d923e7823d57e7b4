package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_AnyReachable(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized) // unauthenticated is still reachable
	}))
	defer up.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close() // refuse connections

	checker := NewChecker([]Provider{
		{Name: "up", PingURL: up.URL},
		{Name: "down", PingURL: down.URL},
	}, nil)

	reachable, err := checker.AnyReachable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, reachable)
}

func TestChecker_NoneReachable(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	checker := NewChecker([]Provider{
		{Name: "a", PingURL: dead.URL},
		{Name: "b", PingURL: dead.URL},
	}, nil)

	_, err := checker.AnyReachable(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reasoning provider reachable")
}

func TestChecker_ContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer slow.Close()
	defer close(blocked)

	checker := NewChecker([]Provider{{Name: "slow", PingURL: slow.URL}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := checker.AnyReachable(ctx)
	assert.Error(t, err)
}
