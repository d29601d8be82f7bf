package config

import (
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv and allows tests to inject environments.
type LookupFunc func(key string) (string, bool)

// ApplyEnvOverrides applies per-provider environment overrides on top of the
// YAML values. Keys follow the `{PROVIDER}_...` convention with the provider
// name upper-cased and dashes replaced by underscores, e.g. for a provider
// named "odds-api":
//
//	ODDS_API_RATE_LIMIT_MINUTE / _HOUR / _DAY
//	ODDS_API_COOLDOWN_MS
//	ODDS_API_RETRY_DELAY_MS
//	ODDS_API_CIRCUIT_THRESHOLD
//	ODDS_API_CIRCUIT_TIMEOUT_MS
//	ODDS_API_API_KEY  (comma-separated credential list)
func ApplyEnvOverrides(p *ProviderConfig, lookup LookupFunc) {
	prefix := EnvPrefix(p.Name)

	if v, ok := lookupInt(lookup, prefix+"_RATE_LIMIT_MINUTE"); ok {
		p.RequestsPerMinute = v
	}
	if v, ok := lookupInt(lookup, prefix+"_RATE_LIMIT_HOUR"); ok {
		p.RequestsPerHour = v
	}
	if v, ok := lookupInt(lookup, prefix+"_RATE_LIMIT_DAY"); ok {
		p.RequestsPerDay = v
	}
	if v, ok := lookupInt(lookup, prefix+"_COOLDOWN_MS"); ok {
		p.Cooldown = time.Duration(v) * time.Millisecond
	}
	if v, ok := lookupInt(lookup, prefix+"_RETRY_DELAY_MS"); ok {
		p.RetryDelay = time.Duration(v) * time.Millisecond
	}
	if v, ok := lookupInt(lookup, prefix+"_CIRCUIT_THRESHOLD"); ok {
		p.CircuitBreakerThreshold = v
	}
	if v, ok := lookupInt(lookup, prefix+"_CIRCUIT_TIMEOUT_MS"); ok {
		p.CircuitBreakerTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := lookup(prefix + "_API_KEY"); ok && v != "" {
		p.APIKeys = splitKeys(v)
	}
}

// EnvPrefix converts a provider name into its environment variable prefix.
func EnvPrefix(name string) string {
	upper := strings.ToUpper(name)
	upper = strings.ReplaceAll(upper, "-", "_")
	return strings.ReplaceAll(upper, ".", "_")
}

func lookupInt(lookup LookupFunc, key string) (int, bool) {
	raw, ok := lookup(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}

func splitKeys(raw string) []string {
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}
