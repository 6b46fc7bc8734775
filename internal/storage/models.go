package storage

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CallLog is one proxied call as seen at the inbound edge
type CallLog struct {
	ID              uuid.UUID              `json:"id" db:"id"`
	Timestamp       time.Time              `json:"timestamp" db:"timestamp"`
	RequestID       uuid.UUID              `json:"request_id" db:"request_id"`
	Endpoint        string                 `json:"endpoint" db:"endpoint"`
	Method          string                 `json:"method" db:"method"`
	StatusCode      *int                   `json:"status_code,omitempty" db:"status_code"`
	LatencyMs       *int64                 `json:"latency_ms,omitempty" db:"latency_ms"`
	Family          *string                `json:"family,omitempty" db:"family"`
	Provider        *string                `json:"provider,omitempty" db:"provider"`
	UserAgent       *string                `json:"user_agent,omitempty" db:"user_agent"`
	RemoteAddr      *string                `json:"remote_addr,omitempty" db:"remote_addr"`
	RequestHeaders  map[string]interface{} `json:"request_headers,omitempty" db:"request_headers"`
	RequestBody     *string                `json:"request_body,omitempty" db:"request_body"`
	ResponseHeaders map[string]interface{} `json:"response_headers,omitempty" db:"response_headers"`
	ResponseBody    *string                `json:"response_body,omitempty" db:"response_body"`
	ErrorCode       *string                `json:"error_code,omitempty" db:"error_code"`
	Metadata        map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt       time.Time              `json:"created_at" db:"created_at"`
}

// LogFilter represents filtering options for querying logs
type LogFilter struct {
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Family     *string    `json:"family,omitempty"`
	Provider   *string    `json:"provider,omitempty"`
	StatusCode *int       `json:"status_code,omitempty"`
	HasError   *bool      `json:"has_error,omitempty"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
	OrderBy    string     `json:"order_by"`
	OrderDir   string     `json:"order_dir"`
}

// LogStats represents aggregated statistics about logs
type LogStats struct {
	TotalRequests  int64            `json:"total_requests"`
	AverageLatency float64          `json:"average_latency_ms"`
	ErrorRate      float64          `json:"error_rate"`
	ProviderStats  map[string]int64 `json:"provider_stats"`
}

// orderColumns are the columns a LogFilter may sort by.
var orderColumns = map[string]bool{
	"timestamp":   true,
	"latency_ms":  true,
	"status_code": true,
	"provider":    true,
}

func (f LogFilter) order() (string, string) {
	column := "timestamp"
	if orderColumns[f.OrderBy] {
		column = f.OrderBy
	}
	dir := "DESC"
	if strings.EqualFold(f.OrderDir, "asc") {
		dir = "ASC"
	}
	return column, dir
}

// sensitiveHeaders are never written to storage in clear text. The gateway's
// own routing headers are kept: they name services, not secrets.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"proxy-authorization": true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"x-gateway-token":     true,
}

// IsSensitiveHeader reports whether a header value must be redacted.
func IsSensitiveHeader(name string) bool {
	return sensitiveHeaders[strings.ToLower(name)] || strings.HasPrefix(strings.ToLower(name), "x-paypal-security-")
}

// SanitizeHeaders flattens headers for storage, redacting sensitive values.
func SanitizeHeaders(headers map[string][]string) map[string]interface{} {
	if headers == nil {
		return nil
	}

	sanitized := make(map[string]interface{}, len(headers))
	for key, values := range headers {
		switch {
		case IsSensitiveHeader(key):
			sanitized[key] = "[REDACTED]"
		case len(values) == 1:
			sanitized[key] = values[0]
		default:
			sanitized[key] = values
		}
	}
	return sanitized
}

// TruncateBody truncates request/response body if too large
func TruncateBody(body string, maxLength int) string {
	if maxLength <= 0 || len(body) <= maxLength {
		return body
	}
	return body[:maxLength] + "... [truncated]"
}

// NewCallLog creates a new call log with default values
func NewCallLog() *CallLog {
	now := time.Now().UTC()
	return &CallLog{
		ID:        uuid.New(),
		RequestID: uuid.New(),
		Timestamp: now,
		CreatedAt: now,
	}
}

func marshalJSON(v map[string]interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalJSON(data []byte, v *map[string]interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
