package common

import (
	"context"
	"strings"
)

// RequestContext holds per-request overrides injected via HTTP headers.
// When absent (nil), handlers use the view's own settings.
type RequestContext struct {
	DisplayCurrency string
}

type contextKey int

const requestContextKey contextKey = iota

// WithRequestContext stores a RequestContext in the request context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// RequestContextFromContext retrieves the RequestContext, or nil if absent.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey).(*RequestContext)
	return rc
}

// ResolveDisplayCurrency returns the request's display-currency
// override when one looks like an ISO code, otherwise the fallback.
func ResolveDisplayCurrency(ctx context.Context, fallback string) string {
	rc := RequestContextFromContext(ctx)
	if rc == nil || rc.DisplayCurrency == "" {
		return fallback
	}
	code := strings.ToUpper(strings.TrimSpace(rc.DisplayCurrency))
	if len(code) != 3 {
		return fallback
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fallback
		}
	}
	return code
}
