// Package supervisor owns one media pipeline: it parses a pipeline
// description through a media runtime, drives the pipeline's lifecycle
// state, reports bus events and state changes to a delegate, and
// exposes dot-graph introspection. The media runtime itself (GStreamer
// or any other backend) is out of scope; this package programs against
// a narrow Runtime/Pipeline facade.
package supervisor

// RuntimeState is the pipeline state requested from the media runtime.
// It is distinct from the supervisor's own State: the runtime only ever
// sees Playing or Null.
type RuntimeState string

const (
	RuntimeStatePlaying RuntimeState = "Playing"
	RuntimeStateNull    RuntimeState = "Null"
)

// BusMessageKind classifies a message observed on a pipeline's bus.
type BusMessageKind string

const (
	BusEOS   BusMessageKind = "eos"
	BusError BusMessageKind = "error"
	BusOther BusMessageKind = "other"
)

// BusMessage is one message read from a Pipeline's bus channel.
type BusMessage struct {
	Kind BusMessageKind
	Text string
}

// Runtime parses a pipeline description into a live Pipeline handle.
type Runtime interface {
	Parse(description string) (Pipeline, error)
}

// Pipeline is the narrow handle a Supervisor drives. Implementations
// must make Bus's channel safe to range over until Close is called.
type Pipeline interface {
	SetState(state RuntimeState) error
	// SendEOS requests an end-of-stream event inside the pipeline without
	// changing its runtime state, so a file sink can finalise headers
	// before the caller later requests Null. Used by the recording
	// supervisor's deadline handling.
	SendEOS() error
	Bus() <-chan BusMessage
	DotGraph() []byte
	Close() error
}
