package util

import (
	"context"

	"github.com/google/uuid"
)

type runIdKey struct{}

// WithRunId tags ctx with a fresh id so that log lines of one check or
// rebuild invocation can be correlated.
func WithRunId(ctx context.Context) context.Context {
	return context.WithValue(ctx, runIdKey{}, uuid.New().String())
}

func GetRunId(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIdKey{}).(string)
	return id
}
