// Package geocode provides best-effort reverse geocoding of vehicle
// positions through the Nominatim (OpenStreetMap) API. The capability is
// optional: callers that hold no Geocoder, or whose lookup fails, render
// positions without an address.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/volvooncall/voc/internal/log"
)

// NoAddress is the placeholder rendered when no address can be resolved.
const NoAddress = "no address"

const (
	nominatimEndpoint = "https://nominatim.openstreetmap.org/reverse"
	lookupTimeout     = 10 * time.Second
)

// Geocoder resolves coordinates to a human-readable address.
type Geocoder interface {
	ReverseLookup(ctx context.Context, lat, lon float64) (string, error)
}

// Address resolves (lat, lon) through g, degrading to NoAddress when g is
// absent or the lookup fails or returns nothing. It never returns an error.
func Address(ctx context.Context, g Geocoder, lat, lon float64, logger *log.Logger) string {
	if g == nil {
		return NoAddress
	}
	address, err := g.ReverseLookup(ctx, lat, lon)
	if err != nil {
		logger.Warning("Reverse geocoding failed: %s", err)
		return NoAddress
	}
	if address == "" {
		return NoAddress
	}
	return address
}

// Client is a Nominatim-backed Geocoder.
type Client struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
	logger     *log.Logger
}

func NewClient(userAgent string, logger *log.Logger) *Client {
	return &Client{
		endpoint:   nominatimEndpoint,
		httpClient: &http.Client{Timeout: lookupTimeout},
		userAgent:  userAgent,
		logger:     logger,
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// ReverseLookup returns the display name for the coordinates, or "" when
// Nominatim has nothing for them.
func (c *Client) ReverseLookup(ctx context.Context, lat, lon float64) (string, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", fmt.Sprintf("%f", lat))
	query.Set("lon", fmt.Sprintf("%f", lon))
	target := c.endpoint + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	// Nominatim's usage policy requires an identifying user agent.
	req.Header.Set("User-Agent", c.userAgent)
	c.logger.Debug("Request for %s", target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nominatim returned status %s", resp.Status)
	}
	var result nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Error != "" {
		// Nominatim reports "Unable to geocode" for open water etc.
		return "", nil
	}
	return result.DisplayName, nil
}
