package diagnostics

import (
	"context"
	"errors"
)

// DiagnosticReportRepository stores reports. GetByUUID returns (nil, nil) for
// unknown or voided reports; Delete reports whether a report was voided.
type DiagnosticReportRepository interface {
	GetByUUID(ctx context.Context, uuid string) (*DiagnosticReport, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*DiagnosticReport, int, error)
	Create(ctx context.Context, r *DiagnosticReport) error
	Update(ctx context.Context, r *DiagnosticReport) error
	Delete(ctx context.Context, uuid string) (bool, error)
}

var ErrNotFound = errors.New("diagnostic report not found")
