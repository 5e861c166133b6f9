// Package geo resolves street addresses and finds nearby government offices
// through a configurable HTTP JSON service. Both lookups are optional
// collaborators; when no base URL is configured the pipeline runs without
// them.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/permits"
)

// ErrNotConfigured is returned by NewClient when no base URL is set.
// Callers treat it as "run without geocoding", not as a failure.
var ErrNotConfigured = errors.New("geo: no base url configured")

// Geocoder validates and enriches a street address.
type Geocoder interface {
	Geocode(ctx context.Context, addr permits.Address) (*permits.Address, error)
}

// PlaceFinder looks up government offices near an address.
type PlaceFinder interface {
	NearbyOffices(ctx context.Context, addr permits.Address) ([]Office, error)
}

// Office is a government office returned by a place lookup.
type Office struct {
	Name    string `json:"name"`
	Website string `json:"website"`
	Phone   string `json:"phone"`
}

// Config holds the geocoding service settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Client implements Geocoder and PlaceFinder against one JSON endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a geocoding client. It returns ErrNotConfigured when the
// base URL is empty so callers can skip the collaborator cleanly.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

type geocodeResponse struct {
	Results []geocodeResult `json:"results"`
}

type geocodeResult struct {
	Components struct {
		Street string `json:"street"`
		City   string `json:"city"`
		State  string `json:"state"`
		Zip    string `json:"zip"`
		County string `json:"county"`
	} `json:"components"`
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

// Geocode resolves addr against the service and returns an enriched copy.
// Validated components replace the caller's fields only when non-empty, so a
// sparse service response never erases caller-supplied data.
func (c *Client) Geocode(ctx context.Context, addr permits.Address) (*permits.Address, error) {
	q := addressQuery(addr)
	if q == "" {
		return nil, fmt.Errorf("geocode: empty address")
	}

	var decoded geocodeResponse
	if err := c.getJSON(ctx, "/geocode", url.Values{"q": []string{q}}, &decoded); err != nil {
		return nil, fmt.Errorf("geocode %q: %w", q, err)
	}
	if len(decoded.Results) == 0 {
		return nil, fmt.Errorf("geocode %q: no match", q)
	}

	best := decoded.Results[0]
	out := addr
	if v := strings.TrimSpace(best.Components.Street); v != "" {
		out.Street = v
	}
	if v := strings.TrimSpace(best.Components.City); v != "" {
		out.City = v
	}
	if v := strings.TrimSpace(best.Components.State); v != "" {
		out.State = v
	}
	if v := strings.TrimSpace(best.Components.Zip); v != "" {
		out.Zip = v
	}
	if v := strings.TrimSpace(best.Components.County); v != "" {
		out.County = v
	}
	if best.Location.Lat != 0 || best.Location.Lng != 0 {
		lat, lng := best.Location.Lat, best.Location.Lng
		out.Latitude = &lat
		out.Longitude = &lng
	}

	c.logger.Debug("address geocoded",
		zap.String("query", q),
		zap.String("city", out.City),
		zap.String("county", out.County))
	return &out, nil
}

type placesResponse struct {
	Results []Office `json:"results"`
}

// NearbyOffices returns government offices near addr. Entries without a name
// are dropped.
func (c *Client) NearbyOffices(ctx context.Context, addr permits.Address) ([]Office, error) {
	q := addressQuery(addr)
	if q == "" {
		return nil, fmt.Errorf("nearby offices: empty address")
	}

	params := url.Values{
		"q":    []string{q},
		"type": []string{"government"},
	}
	var decoded placesResponse
	if err := c.getJSON(ctx, "/places", params, &decoded); err != nil {
		return nil, fmt.Errorf("nearby offices %q: %w", q, err)
	}

	offices := make([]Office, 0, len(decoded.Results))
	for _, o := range decoded.Results {
		o.Name = strings.TrimSpace(o.Name)
		if o.Name == "" {
			continue
		}
		o.Website = strings.TrimSpace(o.Website)
		o.Phone = strings.TrimSpace(o.Phone)
		offices = append(offices, o)
	}

	c.logger.Debug("nearby offices looked up",
		zap.String("query", q),
		zap.Int("offices", len(offices)))
	return offices, nil
}

const maxResponseBytes = 1 << 20

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if c.cfg.APIKey != "" {
		params.Set("key", c.cfg.APIKey)
	}
	reqURL := strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// addressQuery flattens an address into the one-line form the service
// expects. Empty fields are skipped.
func addressQuery(a permits.Address) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.City, a.State, a.Zip} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
