package config

import (
	"fmt"
	"time"
)

// OptString returns the string option key of e, or "".
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptFloat returns the numeric option key of e, or def when absent or not a
// number.
func (e ProviderEntry) OptFloat(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return def
}

// OptInt returns the integer option key of e, or def.
func (e ProviderEntry) OptInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// OptBool returns the boolean option key of e, or def.
func (e ProviderEntry) OptBool(key string, def bool) bool {
	if v, ok := e.Options[key].(bool); ok {
		return v
	}
	return def
}

// OptDuration returns the duration option key of e, parsed from a string such
// as "30s", or def.
func (e ProviderEntry) OptDuration(key string, def time.Duration) time.Duration {
	s := e.OptString(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func fmtAny(v any) string {
	return fmt.Sprintf("%v", v)
}
