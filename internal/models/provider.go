package models

import (
	"encoding/json"
	"strings"
	"time"
)

// DataProvider is the persisted descriptor of the upstream API together with
// its usage and health counters.
type DataProvider struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	BaseURL       string            `json:"base_url"`
	APIKey        string            `json:"-"`
	Headers       map[string]string `json:"headers"`
	TimeoutMS     int               `json:"timeout_ms"`
	IsActive      bool              `json:"is_active"`
	DailyUsage    int               `json:"daily_usage"`
	MonthlyUsage  int               `json:"monthly_usage"`
	ErrorCount    int               `json:"error_count"`
	HealthScore   int               `json:"health_score"`
	LastRequestAt *time.Time        `json:"last_request_at,omitempty"`
	UsageResetOn  string            `json:"usage_reset_on"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Configured reports whether requests can be issued at all.
func (p *DataProvider) Configured() bool {
	return p != nil && p.IsActive && strings.TrimSpace(p.APIKey) != "" && p.BaseURL != ""
}

// RenderHeaders substitutes the API key into each header template.
func (p *DataProvider) RenderHeaders() map[string]string {
	out := make(map[string]string, len(p.Headers))
	for name, tmpl := range p.Headers {
		out[name] = strings.ReplaceAll(tmpl, APIKeyPlaceholder, p.APIKey)
	}
	return out
}

// APIRequestLog records a single outbound provider call.
type APIRequestLog struct {
	ID           int64             `json:"id"`
	ProviderID   int64             `json:"provider_id"`
	Endpoint     string            `json:"endpoint"`
	Params       map[string]string `json:"params"`
	Headers      map[string]string `json:"headers"`
	StatusCode   int               `json:"status_code"`
	DurationMS   int64             `json:"duration_ms"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ResponseBody json.RawMessage   `json:"response_body,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
