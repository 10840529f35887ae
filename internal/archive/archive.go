package archive

import (
	"context"

	"github.com/meetingwhisperer/server/internal/session"
)

// Archiver persists meeting state incrementally as it flows through the
// pipeline. Archiving is best-effort collaboration with an external store;
// a failed write is logged by the caller and never stops ingestion.
type Archiver interface {
	AppendLine(ctx context.Context, sessionID string, line session.TranscriptLine) error
	StoreActionItems(ctx context.Context, sessionID string, items []session.ActionItem) error
	StoreFinal(ctx context.Context, sessionID string, final interface{}) error
}

// Noop discards everything, for deployments without a store.
type Noop struct{}

func (Noop) AppendLine(context.Context, string, session.TranscriptLine) error     { return nil }
func (Noop) StoreActionItems(context.Context, string, []session.ActionItem) error { return nil }
func (Noop) StoreFinal(context.Context, string, interface{}) error                { return nil }
