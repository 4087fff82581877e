package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads, strictly decodes, and validates the configuration file at
// path. Environment variables prefixed VMP_ override the corresponding
// file value for the handful of fields operators commonly want to inject
// at deploy time without editing the file (HTTP credentials, HTTP port).
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment lookup, for tests.
func LoadWithEnv(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := decodeStrict(data)
	if err != nil {
		return nil, err
	}

	applyEnvOverlay(cfg, lookupEnv)

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.NotifyBeforeStart <= 0 {
		cfg.NotifyBeforeStart = defaultNotifyBeforeStart
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decodeStrict parses data as YAML, rejecting unknown top-level keys and
// trailing documents.
func decodeStrict(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		if err == io.EOF {
			return &Config{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %s", ErrUnknownConfigField, err.Error())
		}
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if err := dec.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("config: file contains multiple documents")
	}

	return &cfg, nil
}

// applyEnvOverlay lets VMP_HTTP_USERNAME, VMP_HTTP_PASSWORD, and
// VMP_HTTP_PORT override the file-supplied values.
func applyEnvOverlay(cfg *Config, lookupEnv func(string) (string, bool)) {
	if v, ok := lookupEnv("VMP_HTTP_USERNAME"); ok && v != "" {
		cfg.HTTPUsername = v
	}
	if v, ok := lookupEnv("VMP_HTTP_PASSWORD"); ok && v != "" {
		cfg.HTTPPassword = v
	}
	if v, ok := lookupEnv("VMP_HTTP_PORT"); ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = port
		}
	}
}

// validate enforces the required-key set. A missing or invalid key is
// reported as a MissingKeyError/InvalidValueError, which the daemon
// entrypoint maps to exit code 1.
func validate(cfg *Config) error {
	if cfg.Name == "" {
		return &MissingKeyError{Key: "name"}
	}
	if cfg.ProfileDirectory == "" {
		return &MissingKeyError{Key: "profileDirectory"}
	}
	if cfg.ScratchDirectory == "" {
		return &MissingKeyError{Key: "scratchDirectory"}
	}
	if cfg.ICalURL == "" {
		return &MissingKeyError{Key: "icalURL"}
	}
	if cfg.RecordingVideoChannel == "" {
		return &MissingKeyError{Key: "recordingVideoChannel"}
	}
	if cfg.RTSPAddress == "" {
		return &MissingKeyError{Key: "rtspAddress"}
	}
	if cfg.RTSPPort <= 0 {
		return &InvalidValueError{Key: "rtspPort", Reason: "must be a positive port number"}
	}
	if cfg.HTTPPort < 0 {
		return &InvalidValueError{Key: "httpPort", Reason: "must not be negative"}
	}
	if cfg.HTTPAuth {
		if cfg.HTTPUsername == "" {
			return &MissingKeyError{Key: "httpUsername"}
		}
		if cfg.HTTPPassword == "" {
			return &MissingKeyError{Key: "httpPassword"}
		}
	}

	seen := make(map[string]struct{}, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch.Name == "" {
			return &InvalidValueError{Key: "channels", Reason: "channel name must not be empty"}
		}
		if _, dup := seen[ch.Name]; dup {
			return &InvalidValueError{Key: "channels", Reason: fmt.Sprintf("duplicate channel name %q", ch.Name)}
		}
		seen[ch.Name] = struct{}{}
	}

	return nil
}
