package httpapi

import (
	"context"

	"github.com/google/uuid"
)

type actorContextKey string

const actorKey actorContextKey = "actor"

func withActor(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey, id)
}

// actorFromContext returns the acting user set by requireActor.
func actorFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(actorKey).(uuid.UUID)
	return id, ok
}
