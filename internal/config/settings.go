package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// SettingsFile seeds per-organization agent settings at startup. Orgs not
// listed fall back to models.DefaultAgentSettings; the org record in the
// store overrides the file once set through the API.
type SettingsFile struct {
	Organizations map[string]models.AgentSettings `yaml:"organizations"`
}

// LoadSettings parses the YAML settings file at path.
func LoadSettings(path string) (*SettingsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	var sf SettingsFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return &sf, nil
}

// For returns the settings for orgID, falling back to defaults.
func (sf *SettingsFile) For(orgID string) models.AgentSettings {
	if sf != nil {
		if s, ok := sf.Organizations[orgID]; ok {
			return s
		}
	}
	return models.DefaultAgentSettings()
}
