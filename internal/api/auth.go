package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"sportsync/internal/config"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	clientKeyUnknown    = "unknown"

	PermJobsRead  = "jobs:read"
	PermJobsWrite = "jobs:write"
	PermSyncRun   = "sync:run"
	PermOddsRead  = "odds:read"
	PermAdmin     = "admin"
)

var (
	errMissingKey       = errors.New("missing api key header")
	errInvalidKey       = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

type clientCtxKey struct{}

// Auth provides API-key authentication, per-route permissions and per-key
// rate limiting.
type Auth struct {
	cfg     config.APIConfig
	header  string
	clients []config.APIClientKey
	limiter *rateLimiter
}

func NewAuth(cfg config.APIConfig) *Auth {
	header := strings.TrimSpace(cfg.Auth.HeaderAPIKey)
	if header == "" {
		header = apiKeyHeaderDefault
	}
	return &Auth{
		cfg:     cfg,
		header:  header,
		clients: cfg.Auth.APIKeys,
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

// Authenticate resolves the calling client and applies the rate limit.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if a.cfg.Auth.Enabled {
			client, err := a.lookup(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			ctx = context.WithValue(ctx, clientCtxKey{}, client)
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require rejects clients lacking perm. Clients with no permissions listed
// are allowed everything, as is every caller when auth is off.
func (a *Auth) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.cfg.Auth.Enabled {
				client, _ := r.Context().Value(clientCtxKey{}).(config.APIClientKey)
				if !hasPermission(client, perm) {
					writeError(w, http.StatusForbidden, errPermissionDenied.Error())
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Auth) lookup(r *http.Request) (config.APIClientKey, error) {
	key := strings.TrimSpace(r.Header.Get(a.header))
	if key == "" {
		return config.APIClientKey{}, errMissingKey
	}
	for _, c := range a.clients {
		if subtle.ConstantTimeCompare([]byte(c.Key), []byte(key)) == 1 {
			return c, nil
		}
	}
	return config.APIClientKey{}, errInvalidKey
}

func hasPermission(client config.APIClientKey, perm string) bool {
	if len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		p = strings.TrimSpace(p)
		if p == perm || p == PermAdmin {
			return true
		}
	}
	return false
}

func (a *Auth) clientKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(a.header)); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return clientKeyUnknown
}

// clientName is used for the triggered_by field of jobs created over HTTP.
func clientName(r *http.Request) string {
	client, ok := r.Context().Value(clientCtxKey{}).(config.APIClientKey)
	if !ok || client.Name == "" {
		return ""
	}
	return client.Name
}
