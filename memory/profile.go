package memory

import (
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Profile describes the intended reader of explanations.
type Profile struct {
	Tone  string `json:"tone"`
	Style string `json:"style"`
}

// DefaultProfile is used when no profile file exists.
func DefaultProfile() Profile {
	return Profile{Tone: "non-technical", Style: "concise"}
}

// Mappings carries domain vocabulary.
type Mappings struct {
	// OutputLabels explains what output values mean (e.g. DENY).
	OutputLabels map[string]string `json:"output_labels"`
	// FieldDefinitions explains input fields (e.g. applicant.age).
	FieldDefinitions map[string]string `json:"field_definitions"`
}

// Memory is the long-term context loaded at the start of a run.
type Memory struct {
	Profile  Profile  `json:"profile"`
	Mappings Mappings `json:"mappings"`
}

// Load reads <dir>/user_profile.json and <dir>/mappings.json.
// Missing or malformed files fall back to defaults; Load never fails.
func Load(dir string) Memory {
	if dir == "" {
		dir = DefaultDir
	}
	m := Memory{
		Profile:  DefaultProfile(),
		Mappings: Mappings{OutputLabels: map[string]string{}, FieldDefinitions: map[string]string{}},
	}
	if p, ok := readJSON[Profile](filepath.Join(dir, ProfileFile)); ok {
		m.Profile = p
	}
	if mp, ok := readJSON[Mappings](filepath.Join(dir, MappingsFile)); ok {
		if mp.OutputLabels == nil {
			mp.OutputLabels = map[string]string{}
		}
		if mp.FieldDefinitions == nil {
			mp.FieldDefinitions = map[string]string{}
		}
		m.Mappings = mp
	}
	return m
}

// FormatContext renders the mappings as prompt context:
//
//	Field definitions:
//	- <field>: <definition>
//	Output label meanings:
//	- <label>: <meaning>
//
// Keys are sorted; empty sections are omitted.
func FormatContext(m Memory) string {
	var parts []string
	if len(m.Mappings.FieldDefinitions) > 0 {
		parts = append(parts, "Field definitions:")
		parts = append(parts, bullets(m.Mappings.FieldDefinitions)...)
	}
	if len(m.Mappings.OutputLabels) > 0 {
		parts = append(parts, "Output label meanings:")
		parts = append(parts, bullets(m.Mappings.OutputLabels)...)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func bullets(m map[string]string) []string {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, "- "+k+": "+m[k])
	}
	return out
}

func readJSON[T any](path string) (T, bool) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}
