package util

import (
	"encoding/json"
	"testing"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig("")
	if err != nil || len(cfg) != 0 {
		t.Errorf("ParseConfig(\"\") = (%v, %v)", cfg, err)
	}
	if _, err := ParseConfig("not json"); err == nil {
		t.Error("invalid JSON accepted")
	}
	cfg, err = ParseConfig(`{"a": 1, "nested": {"b": true}}`)
	if err != nil {
		t.Fatal(err)
	}
	if cfg["a"] != float64(1) {
		t.Errorf("a = %v", cfg["a"])
	}
}

func TestOptionsFillDefaults(t *testing.T) {
	cfg := map[string]any{}

	b, err := BoolOption(cfg, "flag", true)
	if err != nil || !b {
		t.Errorf("BoolOption default = (%v, %v)", b, err)
	}
	u, err := UintOption(cfg, "count", 23)
	if err != nil || u != 23 {
		t.Errorf("UintOption default = (%d, %v)", u, err)
	}
	s, err := StringOption(cfg, "name", "default")
	if err != nil || s != "default" {
		t.Errorf("StringOption default = (%q, %v)", s, err)
	}
	sub, err := ObjectOption(cfg, "nested")
	if err != nil || sub == nil {
		t.Errorf("ObjectOption default = (%v, %v)", sub, err)
	}

	// The defaults are echoed in the serialized document.
	var echoed map[string]any
	if err := json.Unmarshal([]byte(DumpConfig(cfg)), &echoed); err != nil {
		t.Fatal(err)
	}
	if echoed["flag"] != true || echoed["count"] != float64(23) || echoed["name"] != "default" {
		t.Errorf("defaults not echoed: %v", echoed)
	}
}

func TestOptionsTypeErrors(t *testing.T) {
	cfg := map[string]any{
		"flag":   "yes",
		"count":  -1.0,
		"frac":   1.5,
		"name":   42.0,
		"nested": []any{},
	}
	if _, err := BoolOption(cfg, "flag", false); err == nil {
		t.Error("string accepted as bool")
	}
	if _, err := UintOption(cfg, "count", 0); err == nil {
		t.Error("negative number accepted as uint")
	}
	if _, err := UintOption(cfg, "frac", 0); err == nil {
		t.Error("fractional number accepted as uint")
	}
	if _, err := StringOption(cfg, "name", ""); err == nil {
		t.Error("number accepted as string")
	}
	if _, err := ObjectOption(cfg, "nested"); err == nil {
		t.Error("array accepted as object")
	}
}
