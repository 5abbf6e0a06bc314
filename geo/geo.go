// Package geo resolves the gateway's configured place name to coordinates.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultSearchURL = "https://nominatim.openstreetmap.org/search"
	DefaultUserAgent = "scient-gateway"
)

var ErrNotFound = errors.New("place not found")

type Location struct {
	Latitude       float64
	Longitude      float64
	DisplayAddress string
}

// Resolver geocodes one place name against a Nominatim compatible search endpoint. The first
// successful answer is cached for the lifetime of the resolver; failures are retried on the
// next call.
type Resolver struct {
	place     string
	searchURL string
	userAgent string
	client    *http.Client

	mu       sync.Mutex
	resolved *Location
}

func NewResolver(place, searchURL string) *Resolver {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}

	return &Resolver{
		place:     place,
		searchURL: searchURL,
		userAgent: DefaultUserAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (r *Resolver) Resolve(ctx context.Context) (Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved != nil {
		return *r.resolved, nil
	}

	loc, err := r.search(ctx)
	if err != nil {
		return Location{}, fmt.Errorf("geo: resolve %q: %w", r.place, err)
	}

	log.Info().
		Str("Place", r.place).
		Str("Address", loc.DisplayAddress).
		Float64("Latitude", loc.Latitude).
		Float64("Longitude", loc.Longitude).
		Msg("geo: resolved gateway location")

	r.resolved = &loc

	return loc, nil
}

func (r *Resolver) search(ctx context.Context) (loc Location, err error) {
	u, err := url.Parse(r.searchURL)
	if err != nil {
		return loc, err
	}

	q := u.Query()
	q.Set("q", r.place)
	q.Set("format", "json")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return loc, err
	}

	// Nominatim's usage policy requires an identifying user agent.
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return loc, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return loc, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var results []searchResult

	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return loc, fmt.Errorf("decode response: %w", err)
	}

	if len(results) == 0 {
		return loc, ErrNotFound
	}

	if loc.Latitude, err = strconv.ParseFloat(results[0].Lat, 64); err != nil {
		return loc, fmt.Errorf("invalid latitude %q: %w", results[0].Lat, err)
	}

	if loc.Longitude, err = strconv.ParseFloat(results[0].Lon, 64); err != nil {
		return loc, fmt.Errorf("invalid longitude %q: %w", results[0].Lon, err)
	}

	loc.DisplayAddress = results[0].DisplayName

	return loc, nil
}
