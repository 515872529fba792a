package emit

// Emitter receives and processes observability events from run execution.
//
// Emitters enable pluggable observability backends:
//   - Logging: stdout, files
//   - Distributed tracing: OpenTelemetry
//   - Live subscription: Broker
//
// Implementations should be:
//   - Non-blocking: a slow emitter must not slow down run execution
//   - Thread-safe: may be called concurrently from multiple run fibers
//   - Resilient: handle backend failures without crashing the run
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	//
	// Emit must not block run execution: if the backend is unavailable
	// or slow, events should be buffered, dropped, or sent
	// asynchronously. Emit should not panic; errors are handled
	// internally.
	Emit(event Event)
}

// Multi fans a single event stream out to several emitters in order.
//
// Example:
//
//	emitter := emit.Multi{
//	    emit.NewLogEmitter(os.Stdout, false),
//	    broker,
//	}
type Multi []Emitter

// Emit delivers the event to every emitter in the group.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
