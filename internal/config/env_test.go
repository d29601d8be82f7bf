package config

import (
	"reflect"
	"testing"
	"time"
)

func envLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestEnvPrefix(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"balldontlie", "BALLDONTLIE"},
		{"odds-api", "ODDS_API"},
		{"api.sports", "API_SPORTS"},
	}
	for _, tt := range tests {
		if got := EnvPrefix(tt.name); got != tt.want {
			t.Errorf("EnvPrefix(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	p := DefaultProviderConfig()
	p.Name = "odds-api"
	p.RequestsPerMinute = 30
	p.APIKeys = []string{"from-yaml"}

	ApplyEnvOverrides(&p, envLookup(map[string]string{
		"ODDS_API_RATE_LIMIT_MINUTE":  "10",
		"ODDS_API_RATE_LIMIT_DAY":     "16",
		"ODDS_API_COOLDOWN_MS":        "1500",
		"ODDS_API_RETRY_DELAY_MS":     "250",
		"ODDS_API_CIRCUIT_THRESHOLD":  "3",
		"ODDS_API_CIRCUIT_TIMEOUT_MS": "30000",
		"ODDS_API_API_KEY":            "key-a, key-b,key-c",
	}))

	if p.RequestsPerMinute != 10 {
		t.Errorf("RequestsPerMinute = %d, want 10", p.RequestsPerMinute)
	}
	if p.RequestsPerDay != 16 {
		t.Errorf("RequestsPerDay = %d, want 16", p.RequestsPerDay)
	}
	if p.Cooldown != 1500*time.Millisecond {
		t.Errorf("Cooldown = %v", p.Cooldown)
	}
	if p.RetryDelay != 250*time.Millisecond {
		t.Errorf("RetryDelay = %v", p.RetryDelay)
	}
	if p.CircuitBreakerThreshold != 3 {
		t.Errorf("CircuitBreakerThreshold = %d", p.CircuitBreakerThreshold)
	}
	if p.CircuitBreakerTimeout != 30*time.Second {
		t.Errorf("CircuitBreakerTimeout = %v", p.CircuitBreakerTimeout)
	}
	if want := []string{"key-a", "key-b", "key-c"}; !reflect.DeepEqual(p.APIKeys, want) {
		t.Errorf("APIKeys = %v, want %v", p.APIKeys, want)
	}
}

func TestApplyEnvOverrides_IgnoresUnsetAndInvalid(t *testing.T) {
	p := DefaultProviderConfig()
	p.Name = "prov"
	p.RequestsPerHour = 100
	p.APIKeys = []string{"from-yaml"}

	ApplyEnvOverrides(&p, envLookup(map[string]string{
		"PROV_RATE_LIMIT_HOUR": "not-a-number",
		"PROV_API_KEY":         "",
	}))

	if p.RequestsPerHour != 100 {
		t.Errorf("RequestsPerHour = %d, invalid values must not override", p.RequestsPerHour)
	}
	if !reflect.DeepEqual(p.APIKeys, []string{"from-yaml"}) {
		t.Errorf("APIKeys = %v, empty override must not clear the pool", p.APIKeys)
	}
}
