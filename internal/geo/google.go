package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/spotshare/spotshare/internal/model"
)

const (
	// DefaultGoogleBaseURL is the Google Geocoding API endpoint.
	DefaultGoogleBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

	// ClientTimeout is the total request timeout.
	ClientTimeout = 5 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 3 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 3 * time.Second
)

// NewHTTPClient creates an HTTP client for geocoding lookups.
// It does not follow redirects.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ClientTimeout,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Google resolves addresses with the Google Geocoding API.
type Google struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// GoogleOption configures a Google geocoder.
type GoogleOption func(*Google)

// WithBaseURL points the geocoder at another endpoint.
func WithBaseURL(u string) GoogleOption {
	return func(g *Google) { g.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(g *Google) { g.client = c }
}

// NewGoogle creates a Google geocoder.
func NewGoogle(apiKey string, opts ...GoogleOption) *Google {
	g := &Google{
		client:  NewHTTPClient(),
		baseURL: DefaultGoogleBaseURL,
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location model.Location `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode returns the first match for address.
func (g *Google) Geocode(ctx context.Context, address string) (model.Location, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return model.Location{}, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return model.Location{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Location{}, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	var body googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Location{}, fmt.Errorf("decode geocode response: %w", err)
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return model.Location{}, ErrNoResults
	default:
		return model.Location{}, fmt.Errorf("geocode status %s: %s", body.Status, body.ErrorMessage)
	}
	if len(body.Results) == 0 {
		return model.Location{}, ErrNoResults
	}

	return body.Results[0].Geometry.Location, nil
}
