package cosy

import (
	"fmt"
	"strings"
)

// Preset is a named operating mode of the Cosy controller.
type Preset string

const (
	PresetHibernate Preset = "hibernate"
	PresetSlumber   Preset = "slumber"
	PresetComfy     Preset = "comfy"
	PresetCosy      Preset = "cosy"
	PresetUnknown   Preset = "unknown"
)

// presetCodes is the vendor's mode table. It must match the API exactly.
var presetCodes = map[Preset]int{
	PresetHibernate: 0,
	PresetSlumber:   1,
	PresetComfy:     2,
	PresetCosy:      3,
}

// NamedPresets lists the presets in vendor code order.
func NamedPresets() []Preset {
	return []Preset{PresetHibernate, PresetSlumber, PresetComfy, PresetCosy}
}

// Code returns the vendor mode code. ok is false for PresetUnknown.
func (p Preset) Code() (code int, ok bool) {
	code, ok = presetCodes[p]
	return code, ok
}

// Known reports whether p is one of the four named presets.
func (p Preset) Known() bool {
	_, ok := presetCodes[p]
	return ok
}

func (p Preset) String() string {
	return string(p)
}

// setpointKey is the temperatureSetPoints field for the preset.
func (p Preset) setpointKey() string {
	return string(p) + "Temperature"
}

// PresetFromCode maps a vendor mode code to its preset. Codes outside the
// table resolve to PresetUnknown.
func PresetFromCode(code int) Preset {
	for preset, c := range presetCodes {
		if c == code {
			return preset
		}
	}
	return PresetUnknown
}

// ParsePreset accepts a preset name case-insensitively. "off" is an alias
// for hibernate.
func ParsePreset(name string) (Preset, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "off" {
		return PresetHibernate, nil
	}
	preset := Preset(normalized)
	if !preset.Known() {
		return PresetUnknown, fmt.Errorf("%w: %q", ErrUnsupportedPreset, name)
	}
	return preset, nil
}

// Mode is the controller's current mode as reported by the vendor. The raw
// code is kept so unsupported codes stay distinguishable from hibernate.
type Mode struct {
	Code int
}

// Preset maps the raw code through the mode table.
func (m Mode) Preset() Preset {
	return PresetFromCode(m.Code)
}

func (m Mode) String() string {
	preset := m.Preset()
	if preset == PresetUnknown {
		return fmt.Sprintf("unknown(%d)", m.Code)
	}
	return string(preset)
}
