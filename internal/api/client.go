package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"go-civitai-cache/internal/models"
)

// Custom Error Types
var (
	ErrRateLimited  = errors.New("API rate limit exceeded")
	ErrUnauthorized = errors.New("API request unauthorized (check API key)")
	ErrNotFound     = errors.New("API resource not found")
	ErrServerError  = errors.New("API server error")
)

const CivitaiApiBaseUrl = "https://civitai.com/api/v1"

// Client struct for interacting with the Civitai API
type Client struct {
	ApiKey     string
	HttpClient *http.Client // Use a shared client

	maxRetries        int
	initialRetryDelay time.Duration
}

// NewClient creates a new API client
func NewClient(apiKey string, httpClient *http.Client, cfg models.Config) *Client {
	if httpClient == nil {
		timeout := 30 * time.Second
		if cfg.APIClientTimeoutSec > 0 {
			timeout = time.Duration(cfg.APIClientTimeoutSec) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	initialDelay := time.Duration(cfg.InitialRetryDelayMs) * time.Millisecond
	if initialDelay <= 0 {
		initialDelay = 500 * time.Millisecond
	}

	return &Client{
		ApiKey:            apiKey,
		HttpClient:        httpClient,
		maxRetries:        maxRetries,
		initialRetryDelay: initialDelay,
	}
}

// RetryableHTTPRequest performs the request, retrying on rate limits and
// server errors with linear backoff. Auth and not-found failures return
// immediately. On success the response body is left open for the caller.
func (c *Client) RetryableHTTPRequest(req *http.Request) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	if c.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.ApiKey)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		resp, err := c.HttpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed (attempt %d/%d): %w", attempt+1, c.maxRetries, err)
			if attempt < c.maxRetries-1 {
				log.WithError(err).Warnf("Retrying (%d/%d)...", attempt+1, c.maxRetries)
				time.Sleep(time.Duration(attempt+1) * c.initialRetryDelay)
			}
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return resp, nil
		case http.StatusTooManyRequests:
			lastErr = ErrRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			drainAndClose(resp)
			return nil, ErrUnauthorized
		case http.StatusNotFound:
			drainAndClose(resp)
			return nil, ErrNotFound
		default:
			if resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("%w (status code %d)", ErrServerError, resp.StatusCode)
			} else {
				drainAndClose(resp)
				return nil, fmt.Errorf("API request failed with status %d", resp.StatusCode)
			}
		}

		// Retryable: drain the body so the connection can be reused.
		drainAndClose(resp)

		if attempt < c.maxRetries-1 {
			sleep := time.Duration(attempt+1) * c.initialRetryDelay
			if errors.Is(lastErr, ErrRateLimited) {
				sleep *= 2
			}
			log.WithError(lastErr).Warnf("Retrying (%d/%d) after %s...", attempt+1, c.maxRetries, sleep)
			time.Sleep(sleep)
		} else {
			log.WithError(lastErr).Errorf("Request failed after %d attempts", c.maxRetries)
		}
	}

	return nil, lastErr
}

func drainAndClose(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

// getJSON fetches the URL and decodes the JSON response into out.
func (c *Client) getJSON(reqURL string, out interface{}) error {
	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request for %s: %w", reqURL, err)
	}

	resp, err := c.RetryableHTTPRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		log.Debugf("Response body causing unmarshal error: %s", string(body))
		return fmt.Errorf("error unmarshalling response JSON: %w", err)
	}
	return nil
}

// GetModels fetches a page of models matching the query parameters, using
// cursor pagination. Returns the next cursor alongside the response.
func (c *Client) GetModels(cursor string, queryParams models.QueryParameters) (string, models.ApiResponse, error) {
	values := ConvertQueryParamsToURLValues(queryParams)

	// The first request omits the cursor entirely; the API then returns
	// the first page.
	if cursor != "" {
		values.Add("cursor", cursor)
	}

	reqURL := fmt.Sprintf("%s/models?%s", CivitaiApiBaseUrl, values.Encode())

	var response models.ApiResponse
	if err := c.getJSON(reqURL, &response); err != nil {
		return "", models.ApiResponse{}, err
	}

	return response.Metadata.NextCursor.String(), response, nil
}

// GetModelDetails fetches the detail payload for a specific model ID.
func (c *Client) GetModelDetails(modelID int) (models.Model, error) {
	reqURL := fmt.Sprintf("%s/models/%d", CivitaiApiBaseUrl, modelID)

	var model models.Model
	if err := c.getJSON(reqURL, &model); err != nil {
		return models.Model{}, fmt.Errorf("fetching model %d: %w", modelID, err)
	}
	return model, nil
}

// GetModelVersionDetails fetches the standalone payload for a model version.
// The returned version carries its owning model id.
func (c *Client) GetModelVersionDetails(versionID int) (models.ModelVersion, error) {
	reqURL := fmt.Sprintf("%s/model-versions/%d", CivitaiApiBaseUrl, versionID)

	var version models.ModelVersion
	if err := c.getJSON(reqURL, &version); err != nil {
		return models.ModelVersion{}, fmt.Errorf("fetching model version %d: %w", versionID, err)
	}
	return version, nil
}

// ConvertQueryParamsToURLValues converts the QueryParameters struct into
// url.Values suitable for Civitai API requests.
func ConvertQueryParamsToURLValues(queryParams models.QueryParameters) url.Values {
	values := url.Values{}
	values.Add("sort", queryParams.Sort)
	values.Add("period", queryParams.Period)
	values.Add("nsfw", fmt.Sprintf("%t", queryParams.Nsfw))
	values.Add("limit", fmt.Sprintf("%d", queryParams.Limit))
	for _, t := range queryParams.Types {
		values.Add("types", t)
	}
	for _, t := range queryParams.BaseModels {
		values.Add("baseModels", t)
	}
	if queryParams.PrimaryFileOnly {
		values.Add("primaryFileOnly", fmt.Sprintf("%t", queryParams.PrimaryFileOnly))
	}
	if queryParams.Query != "" {
		values.Add("query", queryParams.Query)
	}
	if queryParams.Tag != "" {
		values.Add("tag", queryParams.Tag)
	}
	if queryParams.Username != "" {
		values.Add("username", queryParams.Username)
	}

	// Cursor is added separately by the pagination loop.
	return values
}
