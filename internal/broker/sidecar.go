package broker

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// sidecarMetadata is serialised next to the recording file, under the
// recording's path with its extension replaced by .json (for a derived
// path, {UID}.json in the scratch directory), so an operator inspecting a crashed daemon's
// scratch directory can tell what a stray recording file was for.
type sidecarMetadata struct {
	UID         string    `json:"uid"`
	Path        string    `json:"path"`
	Deadline    time.Time `json:"deadline"`
	ProfileType string    `json:"profileType"`
}

// writeSidecar atomically writes the .json metadata file alongside
// path, via renameio so a crash mid-write never leaves a half-written
// sidecar next to a valid recording.
func writeSidecar(path, uid, profileType string, deadline time.Time) error {
	meta := sidecarMetadata{UID: uid, Path: path, Deadline: deadline, ProfileType: profileType}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("broker: marshal sidecar for %s: %w", uid, err)
	}

	sidecarPath := sidecarPathFor(path)
	if err := renameio.WriteFile(sidecarPath, data, 0o644); err != nil {
		return fmt.Errorf("broker: write sidecar %s: %w", sidecarPath, err)
	}
	return nil
}

func sidecarPathFor(recordingPath string) string {
	ext := filepath.Ext(recordingPath)
	base := strings.TrimSuffix(recordingPath, ext)
	return base + ".json"
}
