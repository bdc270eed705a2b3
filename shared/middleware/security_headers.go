package middleware

import (
	"net/http"
)

// APICSP is the policy for JSON and websocket responses: they never load
// subresources and must not be framed.
const APICSP = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"

type SecurityOptions struct {
	HTTPS bool   // adds Strict-Transport-Security
	CSP   string // empty means no Content-Security-Policy header
	// NoStore marks responses uncacheable. Session state changes on every request.
	NoStore bool
}

// SecurityHeaders sets the response headers every view service reply carries.
func SecurityHeaders(opts SecurityOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers := w.Header()

			headers.Set("X-Frame-Options", "DENY")
			headers.Set("X-Content-Type-Options", "nosniff")
			headers.Set("Referrer-Policy", "no-referrer")
			// the client page lives on another domain and reads these replies through CORS
			headers.Set("Cross-Origin-Resource-Policy", "cross-origin")

			if opts.CSP != "" {
				headers.Set("Content-Security-Policy", opts.CSP)
			}
			if opts.NoStore {
				headers.Set("Cache-Control", "no-store")
			}
			if opts.HTTPS {
				headers.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
