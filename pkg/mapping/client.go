// Package mapping proxies the external mapping/geocoding provider. The
// core never computes route geometry itself; it only asks the provider
// for distance and duration estimates and falls back to straight-line
// math when no provider is configured.
package mapping

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ridelink/rideshare-backend/pkg/geo"
)

// RouteEstimate is the provider's distance/duration answer for a pair
// of coordinates.
type RouteEstimate struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
}

// Provider supplies road distance and travel time estimates
type Provider interface {
	Estimate(from, to geo.Coordinate) (*RouteEstimate, error)
}

// HTTPProvider implements Provider against an HTTP directions API
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider client for the given base URL
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Estimate calls the provider's directions endpoint
func (p *HTTPProvider) Estimate(from, to geo.Coordinate) (*RouteEstimate, error) {
	params := url.Values{}
	params.Add("origin", fmt.Sprintf("%f,%f", from.Lat, from.Lng))
	params.Add("destination", fmt.Sprintf("%f,%f", to.Lat, to.Lng))
	if p.apiKey != "" {
		params.Add("key", p.apiKey)
	}

	fullURL := fmt.Sprintf("%s/v1/directions?%s", p.baseURL, params.Encode())

	resp, err := p.client.Get(fullURL)
	if err != nil {
		return nil, fmt.Errorf("mapping provider request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mapping provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var estimate RouteEstimate
	if err := json.Unmarshal(body, &estimate); err != nil {
		return nil, fmt.Errorf("failed to decode mapping provider response: %w", err)
	}

	return &estimate, nil
}

// StraightLineProvider estimates with great-circle distance and an
// average-speed travel time. Used when no provider URL is configured.
type StraightLineProvider struct{}

// NewStraightLineProvider creates the haversine fallback provider
func NewStraightLineProvider() *StraightLineProvider {
	return &StraightLineProvider{}
}

// Estimate returns the haversine distance and an average-speed duration
func (p *StraightLineProvider) Estimate(from, to geo.Coordinate) (*RouteEstimate, error) {
	distance := geo.DistanceKm(from, to)
	return &RouteEstimate{
		DistanceKm:      distance,
		DurationMinutes: int(geo.EstimateMinutes(from, to)),
	}, nil
}
