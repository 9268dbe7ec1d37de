package surge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/surge-dashboard/internal/models"
	"github.com/example/surge-dashboard/internal/observability"
)

// Sink receives a point-in-time snapshot of surge records.
type Sink interface {
	Record(ctx context.Context, recs []models.SurgeRecord) error
}

type SinkFunc func(ctx context.Context, recs []models.SurgeRecord) error

func (f SinkFunc) Record(ctx context.Context, recs []models.SurgeRecord) error { return f(ctx, recs) }

type namedSink struct {
	name string
	sink Sink
}

// Recorder fans snapshots out to every configured sink. A failing sink does
// not stop the others.
type Recorder struct {
	logger *slog.Logger
	sinks  []namedSink
}

func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger}
}

func (r *Recorder) Add(name string, s Sink) *Recorder {
	r.sinks = append(r.sinks, namedSink{name: name, sink: s})
	return r
}

func (r *Recorder) Sinks() []string {
	names := make([]string, 0, len(r.sinks))
	for _, s := range r.sinks {
		names = append(names, s.name)
	}
	return names
}

func (r *Recorder) Record(ctx context.Context, recs []models.SurgeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	observability.SnapshotsRecorded.Add(float64(len(recs)))
	var errs []error
	for _, s := range r.sinks {
		if err := s.sink.Record(ctx, recs); err != nil {
			r.logger.Error("surge snapshot sink failed", "sink", s.name, "records", len(recs), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
