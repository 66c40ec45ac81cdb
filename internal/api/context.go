package api

import (
	"context"
	"net/http"
)

type contextKey int

const ownerContextKey contextKey = iota

func withOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerContextKey, owner)
}

func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerContextKey).(string)
	return owner
}
