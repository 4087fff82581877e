package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// descriptor mirrors the on-disk YAML shape of a profile file.
type descriptor struct {
	Identifier         string            `yaml:"identifier"`
	Version            string            `yaml:"version"`
	Description        string            `yaml:"description"`
	SupportedPlatforms []string          `yaml:"supportedPlatforms"`
	Mountpoints        map[string]string `yaml:"mountpoints"`
	Channels           map[string]string `yaml:"channels"`
	AudioProviders     map[string]string `yaml:"audioProviders"`
	Recordings         map[string]string `yaml:"recordings"`
}

// LoadDirectory loads every `*.yaml`/`*.yml` profile descriptor in dir,
// validating each. A single malformed descriptor fails the whole load
// with MalformedError, matching the all-or-nothing start-up contract.
func LoadDirectory(dir string) ([]Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("profile: read directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	profiles := make([]Profile, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		p, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func loadFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: read %s: %w", path, err)
	}

	var d descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Profile{}, &MalformedError{File: path, Reason: err.Error()}
	}

	if d.Identifier == "" {
		return Profile{}, &MalformedError{File: path, Reason: "identifier is required"}
	}
	if d.Version == "" {
		return Profile{}, &MalformedError{File: path, Reason: "version is required"}
	}
	if len(d.SupportedPlatforms) == 0 {
		return Profile{}, &MalformedError{File: path, Reason: "supportedPlatforms must not be empty"}
	}

	p := Profile{
		Identifier:         d.Identifier,
		Version:            d.Version,
		Description:        d.Description,
		SupportedPlatforms: d.SupportedPlatforms,
		Channels:           d.Channels,
		Mountpoints:        d.Mountpoints,
		AudioProviders:     d.AudioProviders,
		Recordings:         d.Recordings,
	}

	return p, nil
}
