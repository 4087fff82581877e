// Package rtsp defines the narrow facade internal/rtsp's Binder programs
// against and binds per-channel pipeline descriptions to RTSP
// mountpoints. The RTSP runtime itself — session handling, SDP
// negotiation, transport — lives outside this package; it only needs to
// register a (path, description) pair and learn when the
// runtime first materialises that pipeline for a client.
package rtsp

// ConstructHook is invoked by the MountpointRuntime each time it
// materialises a mountpoint's pipeline for a connecting client. dotGraph
// is the runtime's introspection dump at that moment.
type ConstructHook func(path string, dotGraph []byte)

// MountpointRuntime is the restricted surface the Binder needs from the
// real RTSP server — modelled on the restricted-interface pattern seen
// in the pack's MediaMTX controller API (expose only what the caller
// needs, not the full backend surface).
type MountpointRuntime interface {
	// Register binds description to path. hook is invoked once per
	// client-triggered (re)materialisation, not once per Register call.
	Register(path, description string, hook ConstructHook) error
	Unregister(path string) error
}
