// Package rating proxies the external driver-rating service. Ratings
// decorate trip search results only; nothing in booking depends on them.
package rating

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client fetches driver ratings over HTTP
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a rating service client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type ratingResponse struct {
	DriverID string   `json:"driver_id"`
	Rating   *float64 `json:"rating"`
}

// DriverRating returns the driver's average rating, or nil when the
// driver has none yet.
func (c *Client) DriverRating(driverID string) (*float64, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/v1/drivers/%s/rating", c.baseURL, driverID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build rating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rating service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rating service response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rating service returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed ratingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rating service response: %w", err)
	}

	return parsed.Rating, nil
}
