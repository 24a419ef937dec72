package provisioning

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-logr/logr"
)

// Observer receives structured provisioning events.
type Observer interface {
	// Event emits a structured event
	Event(event Event)

	// Progress reports polling progress for a phase
	Progress(phase string, current, total int)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // State or operation name
	Message   string            // Human-readable message
	Resource  string            // Instance or deployment id if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	// EventStateEntered indicates the attempt moved to a new state.
	EventStateEntered EventType = "state.entered"
	// EventStateFailed indicates the attempt failed.
	EventStateFailed EventType = "state.failed"

	// EventResourceCreated indicates an instance or record was created.
	EventResourceCreated EventType = "resource.created"
	// EventResourceExists indicates an existing instance was reused.
	EventResourceExists EventType = "resource.exists"
	// EventResourceDeleting indicates an instance is being terminated.
	EventResourceDeleting EventType = "resource.deleting"
	// EventResourceDeleted indicates an instance was terminated.
	EventResourceDeleted EventType = "resource.deleted"

	// EventValidationWarning indicates a non-fatal check failed.
	EventValidationWarning EventType = "validation.warning"

	// EventProgress indicates progress in a polling loop.
	EventProgress EventType = "progress"
)

// LogObserver implements Observer on a logr.Logger.
type LogObserver struct {
	logger        logr.Logger
	contextFields map[string]string
}

// NewLogObserver creates an observer writing to logger.
func NewLogObserver(logger logr.Logger) *LogObserver {
	return &LogObserver{
		logger:        logger,
		contextFields: make(map[string]string),
	}
}

// Event implements Observer interface.
func (o *LogObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	kv := []any{"event", string(event.Type)}
	if event.Phase != "" {
		kv = append(kv, "phase", event.Phase)
	}
	if event.Resource != "" {
		kv = append(kv, "resource", event.Resource)
	}
	kv = append(kv, o.fieldValues(event.Fields)...)

	if event.Type == EventStateFailed || event.Type == EventValidationWarning {
		o.logger.Info(event.Message, kv...)
		return
	}
	o.logger.V(1).Info(event.Message, kv...)
}

// Progress implements Observer interface.
func (o *LogObserver) Progress(phase string, current, total int) {
	kv := append([]any{"phase", phase, "current", current, "total", total}, o.fieldValues(nil)...)
	o.logger.V(1).Info("progress", kv...)
}

// WithFields implements Observer interface.
func (o *LogObserver) WithFields(fields map[string]string) Observer {
	newFields := make(map[string]string, len(o.contextFields)+len(fields))
	maps.Copy(newFields, o.contextFields)
	maps.Copy(newFields, fields)
	return &LogObserver{
		logger:        o.logger,
		contextFields: newFields,
	}
}

// fieldValues merges context fields under event fields as sorted
// key/value pairs.
func (o *LogObserver) fieldValues(fields map[string]string) []any {
	merged := make(map[string]string, len(o.contextFields)+len(fields))
	maps.Copy(merged, o.contextFields)
	maps.Copy(merged, fields)

	kv := make([]any, 0, 2*len(merged))
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		kv = append(kv, k, merged[k])
	}
	return kv
}

// Helper functions for common events

// LogTransition logs a state transition.
func LogTransition(observer Observer, from, to State, resource string) {
	observer.Event(Event{
		Type:     EventStateEntered,
		Phase:    string(to),
		Resource: resource,
		Message:  fmt.Sprintf("%s -> %s", from, to),
		Fields:   map[string]string{"from": string(from)},
	})
}

// LogFailure logs a failed attempt.
func LogFailure(observer Observer, state State, resource string, err error) {
	observer.Event(Event{
		Type:     EventStateFailed,
		Phase:    string(state),
		Resource: resource,
		Message:  fmt.Sprintf("failed: %v", err),
	})
}

// LogWarning logs a non-fatal check failure.
func LogWarning(observer Observer, phase, resource, message string) {
	observer.Event(Event{
		Type:     EventValidationWarning,
		Phase:    phase,
		Resource: resource,
		Message:  message,
	})
}

// LogResourceCreated logs a created instance or record.
func LogResourceCreated(observer Observer, phase, resourceType, resourceID string) {
	observer.Event(Event{
		Type:     EventResourceCreated,
		Phase:    phase,
		Resource: resourceID,
		Message:  fmt.Sprintf("%s created", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogResourceExists logs a reused instance.
func LogResourceExists(observer Observer, phase, resourceType, resourceID string) {
	observer.Event(Event{
		Type:     EventResourceExists,
		Phase:    phase,
		Resource: resourceID,
		Message:  fmt.Sprintf("%s already exists", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogResourceDeleting logs the start of a termination.
func LogResourceDeleting(observer Observer, phase, resourceType, resourceID string) {
	observer.Event(Event{
		Type:     EventResourceDeleting,
		Phase:    phase,
		Resource: resourceID,
		Message:  fmt.Sprintf("deleting %s", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogResourceDeleted logs a completed termination.
func LogResourceDeleted(observer Observer, phase, resourceType, resourceID string) {
	observer.Event(Event{
		Type:     EventResourceDeleted,
		Phase:    phase,
		Resource: resourceID,
		Message:  fmt.Sprintf("%s deleted", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}
