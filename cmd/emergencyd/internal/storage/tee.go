package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/core"
)

// NamedSink labels a sink for error reporting.
type NamedSink struct {
	Name string
	Sink core.AuditSink
}

// Tee appends every record to all sinks. A failing sink does not stop the
// others; the failures are joined into the returned error.
type Tee struct {
	Sinks []NamedSink
}

// SinkError reports which sink dropped a record.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("audit sink %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func (t *Tee) Append(ctx context.Context, rec core.AuditRecord) error {
	var errs []error
	for _, s := range t.Sinks {
		if err := s.Sink.Append(ctx, rec); err != nil {
			errs = append(errs, &SinkError{Sink: s.Name, Err: err})
		}
	}
	return errors.Join(errs...)
}

// FailedSinks lists the sink names found in err, or "audit" when err carries
// no SinkError.
func FailedSinks(err error) []string {
	if err == nil {
		return nil
	}
	var names []string
	var walk func(error)
	walk = func(e error) {
		switch v := e.(type) {
		case *SinkError:
			names = append(names, v.Sink)
		case interface{ Unwrap() []error }:
			for _, inner := range v.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	if len(names) == 0 {
		return []string{"audit"}
	}
	return names
}
