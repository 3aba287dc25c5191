package persona

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultID 是兼容旧版 /transcribe 接口时使用的人设。
const DefaultID = "tyler"

//go:embed personas.yaml
var builtinCatalogue []byte

// Persona captures the simulated prospect a salesperson practices against.
type Persona struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title" yaml:"title"`
	Tone        string `json:"tone" yaml:"tone"`
	Prompt      string `json:"-" yaml:"prompt"`
	OpeningLine string `json:"openingLine" yaml:"openingLine"`
	VoiceID     string `json:"voiceId,omitempty" yaml:"voiceId"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Seed returns the personas bundled with the binary.
func Seed() ([]Persona, error) {
	return Parse(builtinCatalogue)
}

// LoadFile reads a persona catalogue from a YAML file on disk.
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML list of personas and checks ids are present and unique.
func Parse(data []byte) ([]Persona, error) {
	var items []Persona
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal persona catalogue: %w", err)
	}

	seen := make(map[string]struct{}, len(items))
	for i := range items {
		items[i].ID = strings.TrimSpace(items[i].ID)
		if items[i].ID == "" {
			return nil, fmt.Errorf("persona #%d has no id", i)
		}
		if _, dup := seen[items[i].ID]; dup {
			return nil, fmt.Errorf("duplicate persona id %q", items[i].ID)
		}
		seen[items[i].ID] = struct{}{}
	}
	return items, nil
}
