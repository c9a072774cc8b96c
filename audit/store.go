package audit

import "context"

// Store is the append-only persistence contract. Entries are never updated
// or deleted.
type Store interface {
	AppendAudit(ctx context.Context, e *Entry) error
	ListAudit(ctx context.Context, opts ListOpts) ([]*Entry, error)
}

// Recorder records an entry on its own, outside of any state transition.
// Transitional entries travel with the store's compound write instead.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// RecorderFunc adapts a plain function to the Recorder interface.
type RecorderFunc func(ctx context.Context, e *Entry) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, e *Entry) error {
	return f(ctx, e)
}
