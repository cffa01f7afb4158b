package port

import (
	"context"

	"github.com/campuslink/campus-iam/internal/core/domain"
)

// AuditSink journals terminal security events. Recording is fire-and-forget:
// implementations log failures internally and never propagate them.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent)
}
