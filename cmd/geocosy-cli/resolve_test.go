package main

import (
	"testing"

	"github.com/joshp123/geocosy/plugins/cosy"
)

func TestResolvePreset(t *testing.T) {
	cases := map[string]cosy.Preset{
		"comfy": cosy.PresetComfy,
		"Cosy":  cosy.PresetCosy,
		"slu":   cosy.PresetSlumber,
		"hib":   cosy.PresetHibernate,
		"off":   cosy.PresetHibernate,
		" com ": cosy.PresetComfy,
	}
	for input, want := range cases {
		got, err := resolvePreset(input)
		if err != nil {
			t.Fatalf("resolvePreset(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("resolvePreset(%q) = %s, expected %s", input, got, want)
		}
	}

	for _, input := range []string{"co", "boost", ""} {
		if _, err := resolvePreset(input); err == nil {
			t.Fatalf("resolvePreset(%q): expected error", input)
		}
	}
}

func TestPortOf(t *testing.T) {
	if got := portOf("0.0.0.0:8080"); got != ":8080" {
		t.Fatalf("unexpected port %q", got)
	}
}
