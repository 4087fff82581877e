package daemon

import "errors"

// Sentinel stage errors let cmd/vmpd map a Bootstrap failure to an exit
// code (1 configuration, 2 profile, 3 runtime start) without cmd/vmpd
// needing to know which internal step failed.
var (
	// ErrConfig wraps a failure loading or validating the configuration file.
	ErrConfig = errors.New("daemon: configuration error")
	// ErrProfile wraps a failure resolving the active profile set.
	ErrProfile = errors.New("daemon: profile error")
	// ErrRuntimeStart wraps a failure bringing up the media runtime, RTSP
	// runtime, or control-plane HTTP listener.
	ErrRuntimeStart = errors.New("daemon: runtime start failure")
)
