package cosy

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LiveState is one read of the live-data endpoint. TemperatureCelsius is nil
// when the vendor returned no temperature.
type LiveState struct {
	TemperatureCelsius *float64
	Mode               Mode
}

// Setpoints is the vendor's temperatureSetPoints object. Fields are kept as
// raw JSON so a write sends back exactly what was read, apart from the one
// key being changed.
type Setpoints struct {
	fields map[string]json.RawMessage
}

func newSetpoints(raw json.RawMessage) (Setpoints, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Setpoints{}, fmt.Errorf("decode temperatureSetPoints: %w", err)
	}
	return Setpoints{fields: fields}, nil
}

// Get returns the setpoint for the preset.
func (s Setpoints) Get(preset Preset) (float64, bool) {
	raw, ok := s.fields[preset.setpointKey()]
	if !ok {
		return 0, false
	}
	var value *float64
	if err := json.Unmarshal(raw, &value); err != nil || value == nil {
		return 0, false
	}
	return *value, true
}

// With returns a copy of s with the preset's setpoint replaced. s is left
// unchanged on error.
func (s Setpoints) With(preset Preset, celsius float64) (Setpoints, error) {
	encoded, err := json.Marshal(celsius)
	if err != nil {
		return Setpoints{}, fmt.Errorf("encode %s: %w", preset.setpointKey(), err)
	}
	fields := make(map[string]json.RawMessage, len(s.fields)+1)
	for key, value := range s.fields {
		fields[key] = value
	}
	fields[preset.setpointKey()] = encoded
	return Setpoints{fields: fields}, nil
}

// ByPreset returns every named preset that has a numeric setpoint.
func (s Setpoints) ByPreset() map[Preset]float64 {
	out := make(map[Preset]float64)
	for _, preset := range NamedPresets() {
		if value, ok := s.Get(preset); ok {
			out[preset] = value
		}
	}
	return out
}

// Keys returns the raw field names in sorted order.
func (s Setpoints) Keys() []string {
	keys := make([]string, 0, len(s.fields))
	for key := range s.fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s Setpoints) MarshalJSON() ([]byte, error) {
	if s.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.fields)
}

// State is the thermostat snapshot served to hosts.
type State struct {
	UniqueID           string   `json:"unique_id"`
	TemperatureCelsius *float64 `json:"temperature_celsius"`
	Preset             Preset   `json:"preset"`
	ModeCode           int      `json:"mode_code"`
	Mode               string   `json:"mode"`
}

func newState(uniqueID string, live LiveState) State {
	return State{
		UniqueID:           uniqueID,
		TemperatureCelsius: live.TemperatureCelsius,
		Preset:             live.Mode.Preset(),
		ModeCode:           live.Mode.Code,
		Mode:               live.Mode.String(),
	}
}
