// Package util provides shared helpers for backend implementations,
// chiefly the JSON configuration handling that lets every backend accept a
// configuration document, fill in its defaults and echo the effective
// configuration back, unknown keys included.
package util

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Configuration Documents
// --------------------------------------------------------------------------

// ParseConfig parses a JSON configuration string into a generic document.
// An empty string is treated as an empty object. Unknown keys are kept so
// the backend can echo them back.
func ParseConfig(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(s), &cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration document: %w", err)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	return cfg, nil
}

// DumpConfig serializes the effective configuration document.
func DumpConfig(cfg map[string]any) string {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// BoolOption reads a boolean option, writing the default back into the
// document when absent.
func BoolOption(cfg map[string]any, key string, def bool) (bool, error) {
	v, ok := cfg[key]
	if !ok {
		cfg[key] = def
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("option %q: expected boolean, got %T", key, v)
	}
	return b, nil
}

// UintOption reads an unsigned integer option, writing the default back
// into the document when absent. JSON numbers arrive as float64.
func UintOption(cfg map[string]any, key string, def uint64) (uint64, error) {
	v, ok := cfg[key]
	if !ok {
		cfg[key] = def
		return def, nil
	}
	f, ok := v.(float64)
	if !ok || f < 0 || f != float64(uint64(f)) {
		return 0, fmt.Errorf("option %q: expected unsigned integer, got %v", key, v)
	}
	return uint64(f), nil
}

// StringOption reads a string option, writing the default back into the
// document when absent.
func StringOption(cfg map[string]any, key string, def string) (string, error) {
	v, ok := cfg[key]
	if !ok {
		cfg[key] = def
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %q: expected string, got %T", key, v)
	}
	return s, nil
}

// ObjectOption reads a nested configuration object, writing an empty object
// back into the document when absent. The returned map is the one stored in
// the document, so defaults filled into it are echoed too.
func ObjectOption(cfg map[string]any, key string) (map[string]any, error) {
	v, ok := cfg[key]
	if !ok {
		sub := map[string]any{}
		cfg[key] = sub
		return sub, nil
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("option %q: expected object, got %T", key, v)
	}
	return sub, nil
}
