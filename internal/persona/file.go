package persona

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type populationFile struct {
	Name     string    `yaml:"name"`
	Personas []Persona `yaml:"personas"`
}

// LoadFile reads a population from YAML. The file holds either a bare list
// of personas or a mapping with "name" and "personas".
func LoadFile(path string) (Population, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Population{}, fmt.Errorf("read population %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Population, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Population{}, nil
	}
	if trimmed[0] == '-' || trimmed[0] == '[' {
		var list []Persona
		if err := yaml.Unmarshal(trimmed, &list); err != nil {
			return Population{}, fmt.Errorf("parse population list: %w", err)
		}
		return Population{Personas: list}, nil
	}
	var file populationFile
	if err := yaml.Unmarshal(trimmed, &file); err != nil {
		return Population{}, fmt.Errorf("parse population: %w", err)
	}
	return Population{Name: file.Name, Personas: file.Personas}, nil
}
