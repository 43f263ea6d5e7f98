package common

import (
	"fmt"
	"regexp"
	"strings"
)

const maskedValue = "***MASKED***"

// SensitivePattern represents a pattern to detect and mask sensitive information
type SensitivePattern struct {
	Name        string         // Pattern name (e.g., "password", "cookie")
	Regex       *regexp.Regexp // Regular expression to match sensitive data
	Replacement string         // Replacement string
	Keys        []string       // Specific keys to mask (case-insensitive)
}

// DefaultSensitivePatterns covers credentials that typically travel through a
// simulated request: form passwords, auth headers turned into CGI variables and
// session cookies.
var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "password",
		Regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)(["'\s]*[:=]["'\s]*)([^"'&,}\]\s]+)`),
		Replacement: "${1}${2}" + maskedValue,
		Keys:        []string{"password", "passwd", "pwd"},
	},
	{
		Name:        "token",
		Regex:       regexp.MustCompile(`(?i)(access[_-]?token|auth[_-]?token|token)(["'\s]*[:=]["'\s]*)([^"'&,}\]\s]+)`),
		Replacement: "${1}${2}" + maskedValue,
		Keys:        []string{"token", "access_token", "auth_token"},
	},
	{
		Name:        "secret",
		Regex:       regexp.MustCompile(`(?i)(client[_-]?secret|secret)(["'\s]*[:=]["'\s]*)([^"'&,}\]\s]+)`),
		Replacement: "${1}${2}" + maskedValue,
		Keys:        []string{"secret", "client_secret"},
	},
	{
		Name:        "authorization",
		Regex:       regexp.MustCompile(`(?i)(HTTP_AUTHORIZATION|authorization)(\s*[:=]\s*')([^']*)(')`),
		Replacement: "${1}${2}" + maskedValue + "${4}",
		Keys:        []string{"authorization", "http_authorization"},
	},
	{
		Name:        "cookie",
		Regex:       regexp.MustCompile(`(?i)(HTTP_COOKIE)(\s*=\s*')([^']*)(')`),
		Replacement: "${1}${2}" + maskedValue + "${4}",
		Keys:        []string{"cookie", "http_cookie"},
	},
	{
		Name:        "bearer_token",
		Regex:       regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		Replacement: "Bearer " + maskedValue,
	},
	{
		Name:        "basic_auth",
		Regex:       regexp.MustCompile(`(?i)Basic\s+[A-Za-z0-9+/]+=*`),
		Replacement: "Basic " + maskedValue,
	},
}

// Masker handles masking of sensitive information in logs
type Masker struct {
	patterns []SensitivePattern
	enabled  bool
}

// NewMasker creates a new masker with default patterns
func NewMasker() *Masker {
	return &Masker{
		patterns: DefaultSensitivePatterns,
		enabled:  true,
	}
}

// NewMaskerWithPatterns creates a new masker with custom patterns
func NewMaskerWithPatterns(patterns []SensitivePattern) *Masker {
	return &Masker{
		patterns: patterns,
		enabled:  true,
	}
}

// SetEnabled enables or disables masking
func (m *Masker) SetEnabled(enabled bool) {
	m.enabled = enabled
}

// IsEnabled returns whether masking is enabled
func (m *Masker) IsEnabled() bool {
	return m.enabled
}

// AddPattern adds a new sensitive pattern. A pattern without Regex gets one
// built from its Keys.
func (m *Masker) AddPattern(pattern SensitivePattern) {
	if pattern.Regex == nil && len(pattern.Keys) > 0 {
		keyPattern := strings.Join(pattern.Keys, "|")
		pattern.Regex = regexp.MustCompile(fmt.Sprintf(`(?i)\b(%s)(\s*[:=]\s*['"]?)([^'"&,\s}\]]+)`, keyPattern))
		if pattern.Replacement == "" {
			pattern.Replacement = "${1}${2}" + maskedValue
		}
	}
	if pattern.Regex == nil {
		return
	}
	m.patterns = append(m.patterns, pattern)
}

// MaskString masks sensitive information in a string
func (m *Masker) MaskString(input string) string {
	if !m.enabled {
		return input
	}
	result := input
	for _, pattern := range m.patterns {
		if pattern.Regex == nil {
			continue
		}
		result = pattern.Regex.ReplaceAllString(result, pattern.Replacement)
	}
	return result
}

// IsSensitiveKey reports whether key names a value that must never be logged.
func (m *Masker) IsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(strings.TrimSpace(key))
	for _, pattern := range m.patterns {
		for _, sensitiveKey := range pattern.Keys {
			if lowerKey == sensitiveKey {
				return true
			}
		}
	}
	return false
}

// MaskValue masks sensitive information based on key-value context
func (m *Masker) MaskValue(key string, value interface{}) interface{} {
	if !m.enabled {
		return value
	}
	if m.IsSensitiveKey(key) {
		return maskedValue
	}
	strValue, ok := value.(string)
	if !ok {
		return value
	}
	return m.MaskString(strValue)
}

// MaskEnv returns a copy of a CGI variable map with sensitive values replaced.
func (m *Masker) MaskEnv(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		if m.enabled && m.IsSensitiveKey(k) {
			out[k] = maskedValue
			continue
		}
		out[k] = v
	}
	return out
}

// MaskKeyValuePairs masks sensitive information in slog-style key-value pairs
func (m *Masker) MaskKeyValuePairs(pairs ...any) []any {
	if !m.enabled {
		return pairs
	}
	result := make([]any, len(pairs))
	for i := 0; i < len(pairs); i += 2 {
		if i+1 >= len(pairs) {
			result[i] = pairs[i]
			break
		}
		key := pairs[i]
		result[i] = key
		if keyStr, ok := key.(string); ok {
			result[i+1] = m.MaskValue(keyStr, pairs[i+1])
		} else {
			result[i+1] = pairs[i+1]
		}
	}
	return result
}

// Global masker instance
var globalMasker = NewMasker()

// SetGlobalMasker sets the global masker instance
func SetGlobalMasker(masker *Masker) {
	globalMasker = masker
}

// GetGlobalMasker returns the global masker instance
func GetGlobalMasker() *Masker {
	return globalMasker
}

// MaskSensitiveData masks sensitive data using the global masker
func MaskSensitiveData(input string) string {
	return globalMasker.MaskString(input)
}

// EnableMasking enables/disables global masking
func EnableMasking(enabled bool) {
	globalMasker.SetEnabled(enabled)
}

// IsMaskingEnabled returns whether global masking is enabled
func IsMaskingEnabled() bool {
	return globalMasker.IsEnabled()
}
