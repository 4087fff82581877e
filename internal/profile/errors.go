package profile

import "fmt"

// MalformedError reports a profile descriptor that failed validation on
// load: a missing identifier/version, an empty supportedPlatforms list,
// or a template mapping whose values are not all strings.
type MalformedError struct {
	File   string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("profile: malformed descriptor %s: %s", e.File, e.Reason)
}

// NoCompatibleProfileError is returned by Select when every loaded
// profile scores below zero for the runtime platform.
type NoCompatibleProfileError struct {
	Platform string
}

func (e *NoCompatibleProfileError) Error() string {
	return fmt.Sprintf("profile: no compatible profile for platform %q", e.Platform)
}

// TemplateNotFoundError is returned by PipelineFor when (kind, type) has
// no entry in the active profile.
type TemplateNotFoundError struct {
	Kind Kind
	Type string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("profile: no template for kind=%s type=%q", e.Kind, e.Type)
}
