package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go-civitai-cache/internal/models"
)

// fastConfig keeps retry backoff short so retry tests stay quick.
func fastConfig() models.Config {
	return models.Config{InitialRetryDelayMs: 10}
}

// TestNewClient tests the API client creation
func TestNewClient(t *testing.T) {
	apiKey := "test-api-key"
	cfg := models.Config{}

	client := NewClient(apiKey, nil, cfg)

	if client.ApiKey != apiKey {
		t.Errorf("Expected API key %s, got %s", apiKey, client.ApiKey)
	}

	if client.HttpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}

	if client.HttpClient.Timeout != 30*time.Second {
		t.Errorf("Expected timeout to be 30s, got %v", client.HttpClient.Timeout)
	}
}

func TestNewClientConfiguredTimeout(t *testing.T) {
	client := NewClient("key", nil, models.Config{APIClientTimeoutSec: 120})
	if client.HttpClient.Timeout != 120*time.Second {
		t.Errorf("Expected timeout to be 120s, got %v", client.HttpClient.Timeout)
	}
}

// TestRetryableHTTPRequest_Success tests successful HTTP requests
func TestRetryableHTTPRequest_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth header, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "success"}`))
	}))
	defer server.Close()

	client := NewClient("test-key", &http.Client{}, fastConfig())

	req, err := http.NewRequest("GET", server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.RetryableHTTPRequest(req)
	if err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	resp.Body.Close()
}

// TestRetryableHTTPRequest_RateLimit tests rate limit handling
func TestRetryableHTTPRequest_RateLimit(t *testing.T) {
	attemptCount := 0

	// Rate limit error twice, then success.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		if attemptCount <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": "rate limited"}`))
		} else {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status": "success"}`))
		}
	}))
	defer server.Close()

	client := NewClient("test-key", &http.Client{}, fastConfig())

	req, err := http.NewRequest("GET", server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.RetryableHTTPRequest(req)
	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts, got %d", attemptCount)
	}

	resp.Body.Close()
}

// TestRetryableHTTPRequest_MaxRetries tests that max retries are respected
func TestRetryableHTTPRequest_MaxRetries(t *testing.T) {
	attemptCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer server.Close()

	client := NewClient("test-key", &http.Client{}, fastConfig())

	req, err := http.NewRequest("GET", server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	_, err = client.RetryableHTTPRequest(req)

	if err == nil {
		t.Error("Expected error after max retries, got success")
	}

	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}

	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts (max retries), got %d", attemptCount)
	}
}

// TestRetryableHTTPRequest_Unauthorized tests unauthorized responses
func TestRetryableHTTPRequest_Unauthorized(t *testing.T) {
	attemptCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "unauthorized"}`))
	}))
	defer server.Close()

	client := NewClient("test-key", &http.Client{}, fastConfig())

	req, err := http.NewRequest("GET", server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	_, err = client.RetryableHTTPRequest(req)

	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}

	// Auth failures are not retryable.
	if attemptCount != 1 {
		t.Errorf("Expected 1 attempt, got %d", attemptCount)
	}
}

// TestRetryableHTTPRequest_NotFound tests not found responses
func TestRetryableHTTPRequest_NotFound(t *testing.T) {
	attemptCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "not found"}`))
	}))
	defer server.Close()

	client := NewClient("test-key", &http.Client{}, fastConfig())

	req, err := http.NewRequest("GET", server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	_, err = client.RetryableHTTPRequest(req)

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if attemptCount != 1 {
		t.Errorf("Expected 1 attempt, got %d", attemptCount)
	}
}

// TestRetryableHTTPRequest_ServerError tests server error handling
func TestRetryableHTTPRequest_ServerError(t *testing.T) {
	attemptCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "server error"}`))
	}))
	defer server.Close()

	client := NewClient("test-key", &http.Client{}, fastConfig())

	req, err := http.NewRequest("GET", server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	_, err = client.RetryableHTTPRequest(req)

	if !errors.Is(err, ErrServerError) {
		t.Errorf("Expected ErrServerError, got %v", err)
	}

	// Server errors are retryable.
	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts for server error, got %d", attemptCount)
	}
}

func TestConvertQueryParamsToURLValues(t *testing.T) {
	values := ConvertQueryParamsToURLValues(models.QueryParameters{
		Query:           "landscape",
		Tag:             "style",
		Types:           []string{"Checkpoint", "LORA"},
		BaseModels:      []string{"SD 1.5"},
		Sort:            "Most Downloaded",
		Period:          "AllTime",
		Limit:           50,
		PrimaryFileOnly: true,
	})

	if got := values.Get("query"); got != "landscape" {
		t.Errorf("Expected query landscape, got %q", got)
	}
	if got := values["types"]; len(got) != 2 {
		t.Errorf("Expected 2 types, got %v", got)
	}
	if got := values.Get("baseModels"); got != "SD 1.5" {
		t.Errorf("Expected baseModels SD 1.5, got %q", got)
	}
	if got := values.Get("limit"); got != "50" {
		t.Errorf("Expected limit 50, got %q", got)
	}
	if got := values.Get("primaryFileOnly"); got != "true" {
		t.Errorf("Expected primaryFileOnly true, got %q", got)
	}
	if strings.Contains(values.Encode(), "cursor") {
		t.Error("Cursor must not be set by the converter")
	}
}

// TestGetModelDetails_Integration makes a real API call; skipped unless the
// CIVITAI_API_KEY environment variable is set.
func TestGetModelDetails_Integration(t *testing.T) {
	apiKey := os.Getenv("CIVITAI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test: CIVITAI_API_KEY environment variable not set")
	}

	client := NewClient(apiKey, &http.Client{Timeout: 30 * time.Second}, models.Config{})

	model, err := client.GetModelDetails(4201)
	if err != nil {
		t.Fatalf("GetModelDetails failed: %v", err)
	}

	if model.ID == 0 {
		t.Error("Expected model to have an ID")
	}
	if model.Name == "" {
		t.Error("Expected model to have a name")
	}
	if len(model.Versions) == 0 {
		t.Error("Expected model to have at least one version")
	}
}
