package testutil

import (
	"net/http"
	"time"

	"sharepairs/pkg/requestcontext"
)

// WithUserID stamps an authenticated user onto the request context, simulating
// what the auth middleware does.
func WithUserID(req *http.Request, userID string) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithAdmin stamps an authenticated admin onto the request context.
func WithAdmin(req *http.Request, userID string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithAdmin(ctx, true)
	return req.WithContext(ctx)
}

// WithTime pins the request clock so handlers observe a deterministic now.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
