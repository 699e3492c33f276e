package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"shelfscan/internal/services"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"message": map[string]any{
					"content": content,
				},
			},
		},
	}
}

func fastRetry() services.RetryPolicy {
	return services.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Sleeper:     func(time.Duration) {},
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewEncoder(w).Encode(chatResponse(`{"ok":true}`)); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientExtractParsesCodeFencedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := "```json\n{\"is_product\":true,\"details_visible\":true,\"brand_name\":\" Acme \",\"product_name\":\"Tomato Soup\",\"category\":\"canned goods\",\"size\":\"400g\",\"field_confidence\":{\"brand_name\":0.95,\"size\":1.4}}\n```"
		if err := json.NewEncoder(w).Encode(chatResponse(content)); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	info, err := client.Extract(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if info.BrandName != "Acme" || info.ProductName != "Tomato Soup" {
		t.Fatalf("unexpected extraction: %#v", info)
	}
	if info.FieldConfidence["size"] != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", info.FieldConfidence["size"])
	}
	if !info.HasSearchableText() {
		t.Fatal("expected searchable text")
	}
}

func TestClientExtractNotAProductIsValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"is_product":false,"details_visible":true,"brand_name":"","product_name":"","notes":"price tag"}`
		if err := json.NewEncoder(w).Encode(chatResponse(content)); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	info, err := client.Extract(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if info.IsProduct {
		t.Fatal("expected is_product false")
	}
	if info.DetailsVisible {
		t.Fatal("expected details_visible forced false for non-products")
	}
	if info.HasSearchableText() {
		t.Fatal("expected no searchable text")
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if err := json.NewEncoder(w).Encode(chatResponse(`{"ok":true}`)); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryPolicy(fastRetry()))
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestClientDoesNotRetryAuthFailures(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo-model"},
		WithRetryPolicy(fastRetry()))
	err := client.HealthCheck(context.Background())
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth marker, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestClientCompareParsesVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"match_status":"identical","similarity":0.97,"reason":"same label and size"}`
		if err := json.NewEncoder(w).Encode(chatResponse(content)); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	comparison, err := client.Compare(context.Background(), []byte("jpeg-bytes"), "https://catalog.example/sku-1.jpg")
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if comparison.Verdict != VerdictIdentical || comparison.Similarity != 0.97 {
		t.Fatalf("unexpected comparison: %#v", comparison)
	}
}

func TestClientCompareRejectsUnknownVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"match_status":"maybe","similarity":0.4}`
		if err := json.NewEncoder(w).Encode(chatResponse(content)); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if _, err := client.Compare(context.Background(), []byte("jpeg-bytes"), "https://catalog.example/sku-1.jpg"); err == nil {
		t.Fatal("expected error for unknown verdict")
	}
}

func TestClientSelectBestMapsIndex(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Messages []struct {
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotBody = string(payload.Messages[1].Content)
		content := `{"best_index":2,"match_status":"similar","similarity":0.8,"reason":"different size"}`
		if err := json.NewEncoder(w).Encode(chatResponse(content)); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	selection, err := client.SelectBest(context.Background(), []byte("jpeg-bytes"),
		[]string{"https://catalog.example/a.jpg", "https://catalog.example/b.jpg"})
	if err != nil {
		t.Fatalf("SelectBest returned error: %v", err)
	}
	if selection.BestIndex != 1 || selection.Verdict != VerdictSimilar {
		t.Fatalf("unexpected selection: %#v", selection)
	}
	if !strings.Contains(gotBody, "https://catalog.example/b.jpg") {
		t.Fatalf("expected candidate urls in request, got %s", gotBody)
	}
}

func TestClientSelectBestNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"best_index":0,"match_status":"no_match","similarity":0.1,"reason":"nothing close"}`
		if err := json.NewEncoder(w).Encode(chatResponse(content)); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	selection, err := client.SelectBest(context.Background(), []byte("jpeg-bytes"),
		[]string{"https://catalog.example/a.jpg"})
	if err != nil {
		t.Fatalf("SelectBest returned error: %v", err)
	}
	if selection.BestIndex != -1 || selection.Verdict != VerdictNoMatch {
		t.Fatalf("expected no-match selection, got %#v", selection)
	}
}
