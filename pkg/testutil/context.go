package testutil

import (
	"net/http"

	"piiguard/pkg/requestcontext"
)

// WithClientMetadata sets the client address and User-Agent both on the
// request and in its context, so handlers behave the same with or without the
// metadata middleware.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	req.RemoteAddr = clientIP + ":40000"
	req.Header.Set("User-Agent", userAgent)
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}
