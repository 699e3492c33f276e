package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shelfscan/internal/services"
)

type catalogServer struct {
	t            *testing.T
	authCalls    atomic.Int64
	searchCalls  atomic.Int64
	rejectTokens map[string]bool
	token        string
	expiresIn    int
	products     []Product
	status       int
	statusBudget int
	retryAfter   string
}

func (s *catalogServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		s.authCalls.Add(1)
		var creds map[string]string
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			s.t.Errorf("decode credentials: %v", err)
		}
		if creds["api_key"] != "key" || creds["api_secret"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"token": s.token, "expires_in": s.expiresIn})
	})
	mux.HandleFunc("/v1/products/search", func(w http.ResponseWriter, r *http.Request) {
		s.searchCalls.Add(1)
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+s.token || s.rejectTokens[auth] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if s.status != 0 && (s.statusBudget == 0 || s.searchCalls.Load() <= int64(s.statusBudget)) {
			if s.retryAfter != "" {
				w.Header().Set("Retry-After", s.retryAfter)
			}
			w.WriteHeader(s.status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"products": s.products, "total": len(s.products)})
	})
	return mux
}

func newTestServer(t *testing.T) (*catalogServer, *httptest.Server) {
	cs := &catalogServer{
		t:            t,
		rejectTokens: map[string]bool{},
		token:        "tok-1",
		expiresIn:    3600,
		products: []Product{
			{ID: "sku-1", Name: "Acme Tomato Soup 400g", Brand: "Acme", Images: []ProductImage{
				{URL: "https://img.example/side.jpg", View: "side"},
				{URL: "https://img.example/front.jpg", View: "front"},
			}},
			{ID: "sku-2", Name: "Acme Chicken Soup 400g", Brand: "Acme"},
		},
	}
	server := httptest.NewServer(cs.handler())
	t.Cleanup(server.Close)
	return cs, server
}

func TestSearchAuthenticatesOnceAndCachesToken(t *testing.T) {
	cs, server := newTestServer(t)

	client, err := New(server.URL, "key", "secret", 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	first, err := client.Search(ctx, "acme soup")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 products, got %d", len(first))
	}
	if _, err := client.Search(ctx, "acme chicken"); err != nil {
		t.Fatalf("second Search failed: %v", err)
	}
	if cs.authCalls.Load() != 1 {
		t.Fatalf("expected a single auth call, got %d", cs.authCalls.Load())
	}
}

func TestSearchCachesQueryResults(t *testing.T) {
	cs, server := newTestServer(t)

	client, err := New(server.URL, "key", "secret", 10, WithCacheTTL(time.Minute))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.Search(ctx, "acme soup"); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if _, err := client.Search(ctx, "acme soup"); err != nil {
		t.Fatalf("cached Search failed: %v", err)
	}
	if cs.searchCalls.Load() != 1 {
		t.Fatalf("expected a single upstream search, got %d", cs.searchCalls.Load())
	}
}

func TestSearchReauthenticatesOnceOnRejectedToken(t *testing.T) {
	cs, server := newTestServer(t)
	cs.rejectTokens["Bearer tok-1"] = true

	client, err := New(server.URL, "key", "secret", 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Seed the client with the soon-to-be-rejected token, then swap the
	// server to a fresh one so the re-auth succeeds.
	if _, err := client.ensureToken(context.Background()); err != nil {
		t.Fatalf("ensureToken failed: %v", err)
	}
	cs.token = "tok-2"

	products, err := client.Search(context.Background(), "acme soup")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(products) == 0 {
		t.Fatal("expected products after re-auth")
	}
	if cs.authCalls.Load() != 2 {
		t.Fatalf("expected 2 auth calls, got %d", cs.authCalls.Load())
	}
}

func TestSearchSurfacesAuthFailureAfterRetry(t *testing.T) {
	cs, server := newTestServer(t)
	cs.rejectTokens["Bearer tok-1"] = true

	client, err := New(server.URL, "key", "secret", 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = client.Search(context.Background(), "acme soup")
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth marker, got %v", err)
	}
	if !services.AbortsBatch(err) {
		t.Fatal("expected auth failure to abort the batch")
	}
}

func TestSearchRateLimitCarriesRetryAfter(t *testing.T) {
	cs, server := newTestServer(t)
	cs.status = http.StatusTooManyRequests
	cs.retryAfter = "9"

	var delays []time.Duration
	client, err := New(server.URL, "key", "secret", 10, WithRetryPolicy(services.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Minute,
		Sleeper:     func(d time.Duration) { delays = append(delays, d) },
	}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = client.Search(context.Background(), "acme soup")
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected rate limit marker, got %v", err)
	}
	var hint services.RetryAfterHint
	if !errors.As(err, &hint) || hint.RetryAfterDelay() != 9*time.Second {
		t.Fatalf("expected 9s retry hint, got %v", err)
	}
	if len(delays) != 1 || delays[0] != 9*time.Second {
		t.Fatalf("expected a single 9s backoff, got %v", delays)
	}
	if cs.searchCalls.Load() != 2 {
		t.Fatalf("expected 2 upstream attempts, got %d", cs.searchCalls.Load())
	}
}

func TestSearchRetriesRateLimitThenSucceeds(t *testing.T) {
	cs, server := newTestServer(t)
	cs.status = http.StatusTooManyRequests
	cs.statusBudget = 1
	cs.retryAfter = "2"

	var delays []time.Duration
	client, err := New(server.URL, "key", "secret", 10, WithRetryPolicy(services.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Minute,
		Sleeper:     func(d time.Duration) { delays = append(delays, d) },
	}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	products, err := client.Search(context.Background(), "acme soup")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products after retry, got %d", len(products))
	}
	if len(delays) != 1 || delays[0] != 2*time.Second {
		t.Fatalf("expected the server hint to drive the backoff, got %v", delays)
	}
	if cs.searchCalls.Load() != 2 {
		t.Fatalf("expected 2 upstream attempts, got %d", cs.searchCalls.Load())
	}
}

func TestSearchSpacesRequestsByMinInterval(t *testing.T) {
	_, server := newTestServer(t)

	interval := 60 * time.Millisecond
	client, err := New(server.URL, "key", "secret", 10, WithMinRequestInterval(interval))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	start := time.Now()
	if _, err := client.Search(ctx, "acme soup"); err != nil {
		t.Fatalf("first Search failed: %v", err)
	}
	if _, err := client.Search(ctx, "acme chicken"); err != nil {
		t.Fatalf("second Search failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < interval {
		t.Fatalf("expected at least %v between searches, took %v", interval, elapsed)
	}
}

func TestSearchCapsResults(t *testing.T) {
	cs, server := newTestServer(t)
	cs.products = append(cs.products, Product{ID: "sku-3"}, Product{ID: "sku-4"})

	client, err := New(server.URL, "key", "secret", 3)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	products, err := client.Search(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("expected 3 products, got %d", len(products))
	}
}

func TestPrimaryImagePrefersFrontView(t *testing.T) {
	product := Product{Images: []ProductImage{
		{URL: "https://img.example/side.jpg", View: "side"},
		{URL: "https://img.example/front.jpg", View: "Front"},
	}}
	if got := product.PrimaryImageURL(); got != "https://img.example/front.jpg" {
		t.Fatalf("expected front view preferred, got %q", got)
	}

	fallback := Product{Images: []ProductImage{{URL: "https://img.example/only.jpg", View: "top"}}}
	if got := fallback.PrimaryImageURL(); got != "https://img.example/only.jpg" {
		t.Fatalf("expected first image fallback, got %q", got)
	}

	if got := (Product{}).PrimaryImageURL(); got != "" {
		t.Fatalf("expected empty url for product without images, got %q", got)
	}
}

func TestBuildQuerySkipsEmptyFields(t *testing.T) {
	if got := BuildQuery("Acme", "Tomato Soup", "400g"); got != "Acme Tomato Soup 400g" {
		t.Fatalf("unexpected query %q", got)
	}
	if got := BuildQuery("", "Tomato Soup", ""); got != "Tomato Soup" {
		t.Fatalf("unexpected query %q", got)
	}
	if got := BuildQuery("", "", ""); got != "" {
		t.Fatalf("expected empty query, got %q", got)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	_, server := newTestServer(t)
	client, err := New(server.URL, "key", "secret", 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := client.Search(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty query")
	}
}
