package core

import (
	"context"
	"errors"
)

// MultiRecorder fans one attempt out to every recorder and joins their errors.
type MultiRecorder struct {
	recorders []DeliveryRecorder
}

// NewMultiRecorder returns nil when no recorder is given and the recorder
// itself when only one is given.
func NewMultiRecorder(recorders ...DeliveryRecorder) DeliveryRecorder {
	filtered := make([]DeliveryRecorder, 0, len(recorders))
	for _, recorder := range recorders {
		if recorder != nil {
			filtered = append(filtered, recorder)
		}
	}
	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	default:
		return &MultiRecorder{recorders: filtered}
	}
}

func (m *MultiRecorder) RecordAttempt(ctx context.Context, attempt DeliveryAttempt) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, recorder := range m.recorders {
		if err := recorder.RecordAttempt(ctx, attempt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeliveryRecorderFunc adapts a function to DeliveryRecorder.
type DeliveryRecorderFunc func(ctx context.Context, attempt DeliveryAttempt) error

func (f DeliveryRecorderFunc) RecordAttempt(ctx context.Context, attempt DeliveryAttempt) error {
	if f == nil {
		return nil
	}
	return f(ctx, attempt)
}

// Recorders returns a copy of the fanned-out recorders.
func (m *MultiRecorder) Recorders() []DeliveryRecorder {
	if m == nil {
		return nil
	}
	return append([]DeliveryRecorder(nil), m.recorders...)
}
