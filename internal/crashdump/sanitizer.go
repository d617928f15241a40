package crashdump

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/smykla-skalski/hookgate/pkg/config"
)

const (
	redactedValue   = "[REDACTED]"
	minSecretLength = 16
)

// sensitiveKey matches map keys whose values never belong in a dump. Hook
// env maps are the usual carrier.
var sensitiveKey = regexp.MustCompile(`(?i)token|secret|password|passwd|credential|auth|api[-_]?key|private[-_]?key`)

var secretPrefixes = []string{
	"sk-",
	"ghp_", "gho_", "ghs_", "ghr_", "github_pat_",
	"AKIA",
	"xoxb-", "xoxp-",
	"Bearer ",
}

// Sanitizer strips secrets from configuration snapshots.
type Sanitizer struct{}

// NewSanitizer creates a Sanitizer.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// SanitizeConfig converts cfg to a generic map and redacts sensitive values.
func (s *Sanitizer) SanitizeConfig(cfg *config.Config) map[string]any {
	if cfg == nil {
		return nil
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return map[string]any{"error": "failed to serialize config"}
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return map[string]any{"error": "failed to deserialize config"}
	}

	s.sanitizeMap(result)

	return result
}

func (s *Sanitizer) sanitizeMap(m map[string]any) {
	for key, value := range m {
		if sensitiveKey.MatchString(key) {
			m[key] = redactedValue

			continue
		}

		m[key] = s.sanitizeValue(value)
	}
}

func (s *Sanitizer) sanitizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		s.sanitizeMap(v)
	case []any:
		for i := range v {
			v[i] = s.sanitizeValue(v[i])
		}
	case string:
		if looksLikeSecret(v) {
			return redactedValue
		}
	}

	return value
}

func looksLikeSecret(value string) bool {
	if len(value) < minSecretLength {
		return false
	}

	for _, prefix := range secretPrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}

	return false
}
