package logger

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultMaskValue replaces sensitive values in log output
	DefaultMaskValue = "***"

	// DefaultMaxDepth bounds recursion into nested maps and slices
	DefaultMaxDepth = 8

	bearerPrefix = "bearer "
)

// FilterConfig defines which fields are treated as sensitive
type FilterConfig struct {
	// SensitiveFields are matched case-insensitively as substrings of the field name
	SensitiveFields []string
	// MaskValue replaces sensitive data (default: "***")
	MaskValue string
}

// DefaultFilterConfig returns the field list covering credentials handled by the client
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"password", "passwd", "secret",
			"token", "access_token", "refresh_token",
			"authorization", "cookie",
			"api_key", "apikey", "credential",
		},
		MaskValue: DefaultMaskValue,
	}
}

// SensitiveDataFilter masks values of sensitive fields before they reach the log sink
type SensitiveDataFilter struct {
	config *FilterConfig
}

// NewSensitiveDataFilter creates a filter; a nil config means DefaultFilterConfig
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	if config.MaskValue == "" {
		config.MaskValue = DefaultMaskValue
	}
	return &SensitiveDataFilter{config: config}
}

// FilterString masks value when key is sensitive
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if f.isSensitiveField(key) {
		return f.maskString(value)
	}
	return value
}

// FilterValue masks value when key is sensitive and walks maps, headers and slices
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	return f.filterValue(key, value, DefaultMaxDepth)
}

// FilterFields filters a map of fields for sensitive data
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	filtered := make(map[string]any, len(fields))
	for key, value := range fields {
		filtered[key] = f.FilterValue(key, value)
	}
	return filtered
}

func (f *SensitiveDataFilter) filterValue(key string, value any, depth int) any {
	if value == nil {
		return nil
	}
	if f.isSensitiveField(key) {
		if s, ok := value.(string); ok {
			return f.maskString(s)
		}
		return f.config.MaskValue
	}
	if depth <= 0 {
		return value
	}

	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = f.filterValue(k, item, depth-1)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = f.FilterString(k, item)
		}
		return out
	case http.Header:
		out := make(map[string]string, len(v))
		for k := range v {
			out[k] = f.FilterString(k, v.Get(k))
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = f.filterValue(key, item, depth-1)
		}
		return out
	default:
		return value
	}
}

// isSensitiveField treats '-' and '_' alike so header names match field names
func (f *SensitiveDataFilter) isSensitiveField(fieldName string) bool {
	name := normalizeFieldName(fieldName)
	for _, sensitive := range f.config.SensitiveFields {
		if strings.Contains(name, normalizeFieldName(sensitive)) {
			return true
		}
	}
	return false
}

func normalizeFieldName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "_")
}

// maskString keeps the auth scheme and URL structure while hiding the secret part
func (f *SensitiveDataFilter) maskString(value string) string {
	if value == "" {
		return value
	}
	if len(value) > len(bearerPrefix) && strings.EqualFold(value[:len(bearerPrefix)], bearerPrefix) {
		return value[:len(bearerPrefix)] + f.config.MaskValue
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") ||
		strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://") {
		return f.maskURL(value)
	}
	return f.config.MaskValue
}

func (f *SensitiveDataFilter) maskURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return f.config.MaskValue
	}
	if parsed.User == nil {
		return raw
	}
	if _, hasPassword := parsed.User.Password(); !hasPassword {
		return raw
	}
	parsed.User = url.UserPassword(parsed.User.Username(), "MASKED")
	return strings.Replace(parsed.String(), "MASKED", f.config.MaskValue, 1)
}
