// Package observability implements structured logging, the progress-event
// broadcast fanout, and slow-query logging, with the same logrus.Fields
// usage as internal/repository and internal/sources.
package observability

import (
	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Logger and enforces the component/event_type/
// correlation_id field triplet carried on every structured
// log line emitted by the pipeline.
type Logger struct {
	base *logrus.Logger
}

// NewLogger wraps base. base is typically the process-wide logrus.Logger
// config.Manager or cmd/ingestd already constructed.
func NewLogger(base *logrus.Logger) *Logger {
	return &Logger{base: base}
}

// WithComponent returns an entry scoped to one component name (e.g.
// "ingestion.orchestrator", "network.service"), the first of the three
// required fields.
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.base.WithField("component", component)
}

// Event logs one structured line carrying all three required fields.
// correlationID is typically a run id or request id; it may be empty for
// log lines outside any tracked run.
func (l *Logger) Event(component, eventType, correlationID string) *logrus.Entry {
	fields := logrus.Fields{
		"component":  component,
		"event_type": eventType,
	}
	if correlationID != "" {
		fields["correlation_id"] = correlationID
	}
	return l.base.WithFields(fields)
}
