package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joshp123/geocosy/plugins/cosy"
)

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	replacer := strings.NewReplacer(" ", "_", "-", "_", "__", "_")
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

// resolvePreset matches a preset by name or by a unique prefix.
func resolvePreset(input string) (cosy.Preset, error) {
	if preset, err := cosy.ParsePreset(input); err == nil {
		return preset, nil
	}

	needle := normalizeName(input)
	var matches []cosy.Preset
	for _, preset := range cosy.NamedPresets() {
		if needle != "" && strings.HasPrefix(string(preset), needle) {
			matches = append(matches, preset)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	available := make([]string, 0, len(cosy.NamedPresets()))
	for _, preset := range cosy.NamedPresets() {
		available = append(available, string(preset))
	}
	sort.Strings(available)
	return cosy.PresetUnknown, fmt.Errorf("preset %q not found. Available: %s", input, strings.Join(available, ", "))
}
