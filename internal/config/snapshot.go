package config

const redacted = "***"

// Snapshot returns a copy of cfg with httpPassword masked, for the
// GET /api/v1/config diagnostic endpoint. Every other field is reproduced
// verbatim.
func (c Config) Snapshot() Config {
	out := c
	if out.HTTPPassword != "" {
		out.HTTPPassword = redacted
	}
	out.Channels = append([]ChannelConfig(nil), c.Channels...)
	out.Mountpoints = append([]MountpointConfig(nil), c.Mountpoints...)
	out.Locations = append([]string(nil), c.Locations...)
	return out
}
