package daybook

import (
	"context"

	"github.com/google/uuid"

	"github.com/xraph/daybook/audit"
)

type originKey struct{}

// WithOrigin attaches request metadata to ctx. Audit entries written under
// ctx carry it.
func WithOrigin(ctx context.Context, o audit.Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFrom returns the request metadata attached to ctx. When no
// correlation id is present a fresh one is generated.
func OriginFrom(ctx context.Context) audit.Origin {
	o, _ := ctx.Value(originKey{}).(audit.Origin)
	if o.CorrelationID == "" {
		o.CorrelationID = uuid.NewString()
	}
	return o
}
