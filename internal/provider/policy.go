package provider

import (
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"sportsync/internal/models"

	"github.com/cespare/xxhash/v2"
)

const defaultTTL = 60 * time.Second

var endpointTTL = map[string]time.Duration{
	"/status":              0,
	"/timezone":            24 * time.Hour,
	"/countries":           24 * time.Hour,
	"/leagues":             6 * time.Hour,
	"/leagues/seasons":     24 * time.Hour,
	"/teams":               6 * time.Hour,
	"/fixtures":            300 * time.Second,
	"/fixtures/rounds":     6 * time.Hour,
	"/fixtures/headtohead": time.Hour,
	"/odds":                180 * time.Second,
	"/odds/live":           10 * time.Second,
	"/odds/bookmakers":     24 * time.Hour,
	"/odds/bets":           24 * time.Hour,
	"/odds/live/bets":      24 * time.Hour,
}

// liveFixturesTTL applies to /fixtures when the live parameter is present.
const liveFixturesTTL = 30 * time.Second

// TTL returns how long a response for endpoint may be served from cache.
// Zero means never cache.
func TTL(endpoint string, params map[string]string) time.Duration {
	endpoint = normalizeEndpoint(endpoint)
	if endpoint == "/fixtures" {
		if _, ok := params["live"]; ok {
			return liveFixturesTTL
		}
	}
	if ttl, ok := endpointTTL[endpoint]; ok {
		return ttl
	}
	return defaultTTL
}

// CacheKey is deterministic over the endpoint and the sorted parameters.
func CacheKey(endpoint string, params map[string]string) string {
	endpoint = normalizeEndpoint(endpoint)
	h := xxhash.New()
	_, _ = h.WriteString(endpoint)
	_, _ = h.WriteString("?")
	_, _ = h.WriteString(canonicalParams(params))
	return models.CachePrefixAPI + endpoint + ":" + hex.EncodeToString(h.Sum(nil))
}

func canonicalParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	if len(endpoint) > 1 {
		endpoint = strings.TrimRight(endpoint, "/")
	}
	return endpoint
}
