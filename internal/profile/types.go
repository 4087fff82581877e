// Package profile loads pipeline-template profiles from a directory,
// scores them against the runtime platform, and exposes the winner's
// templates for expansion by internal/template.
package profile

// Kind names one of the four template mappings a Profile carries.
type Kind string

const (
	KindChannels       Kind = "channels"
	KindMountpoints    Kind = "mountpoints"
	KindAudioProviders Kind = "audioProviders"
	KindRecordings     Kind = "recordings"
)

// AllWildcard is the supportedPlatforms entry matching any runtime platform.
const AllWildcard = "all"

// Profile is a named, platform-scored bundle of pipeline templates.
// Profiles are immutable after LoadDirectory returns; nothing in this package
// mutates a Profile's fields post-construction.
type Profile struct {
	Identifier         string
	Version            string
	Description        string
	SupportedPlatforms []string

	Channels       map[string]string
	Mountpoints    map[string]string
	AudioProviders map[string]string
	Recordings     map[string]string
}

func (p Profile) mapping(kind Kind) (map[string]string, bool) {
	switch kind {
	case KindChannels:
		return p.Channels, true
	case KindMountpoints:
		return p.Mountpoints, true
	case KindAudioProviders:
		return p.AudioProviders, true
	case KindRecordings:
		return p.Recordings, true
	default:
		return nil, false
	}
}

// supportsPlatform reports whether platform p or the wildcard appears in
// SupportedPlatforms.
func (p Profile) supportsPlatform(platform string) (exact, wildcard bool) {
	for _, sp := range p.SupportedPlatforms {
		if sp == platform {
			exact = true
		}
		if sp == AllWildcard {
			wildcard = true
		}
	}
	return exact, wildcard
}

// Score computes the profile's compatibility score for the given runtime
// platform tag, per the registry's scoring rule: -1 if the profile
// supports neither the platform nor the wildcard, otherwise
// 10*matchesPlatform + 1*matchesWildcard.
func (p Profile) Score(platform string) int {
	exact, wildcard := p.supportsPlatform(platform)
	if !exact && !wildcard {
		return -1
	}
	score := 0
	if exact {
		score += 10
	}
	if wildcard {
		score += 1
	}
	return score
}
