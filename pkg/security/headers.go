package security

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strconv"
)

// SecureHeadersConfig configures security headers.
type SecureHeadersConfig struct {
	// FrameOptions controls X-Frame-Options. Default: "DENY".
	FrameOptions string

	// ContentTypeNosniff enables X-Content-Type-Options: nosniff.
	ContentTypeNosniff bool

	// ReferrerPolicy sets the Referrer-Policy header.
	ReferrerPolicy string

	// PermissionsPolicy sets the Permissions-Policy header.
	PermissionsPolicy string

	// HSTSEnabled adds Strict-Transport-Security on HTTPS requests.
	HSTSEnabled bool
	HSTSMaxAge  int

	// ContentSecurityPolicy overrides the generated policy.
	ContentSecurityPolicy string

	// CSPNonceEnabled generates a per-request nonce for scripts and styles.
	CSPNonceEnabled bool
}

// DefaultSecureHeadersConfig returns the kiosk's defaults.
func DefaultSecureHeadersConfig() SecureHeadersConfig {
	return SecureHeadersConfig{
		FrameOptions:       "DENY",
		ContentTypeNosniff: true,
		ReferrerPolicy:     "no-referrer",
		PermissionsPolicy:  "geolocation=(), microphone=(), camera=()",
		HSTSEnabled:        true,
		HSTSMaxAge:         31536000,
		CSPNonceEnabled:    true,
	}
}

type cspNonceKey struct{}

// CSPNonce returns the request's nonce, or "" outside SecureHeaders.
func CSPNonce(ctx context.Context) string {
	nonce, _ := ctx.Value(cspNonceKey{}).(string)
	return nonce
}

// WithCSPNonce stores nonce in ctx.
func WithCSPNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, cspNonceKey{}, nonce)
}

func generateNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.StdEncoding.EncodeToString(b)
}

// ContentSecurityPolicy builds the default policy for nonce. Signature
// previews are PNG data URLs, so img-src allows data:.
func ContentSecurityPolicy(nonce string) string {
	return "default-src 'self'; " +
		"script-src 'self' 'nonce-" + nonce + "'; " +
		"style-src 'self' 'nonce-" + nonce + "'; " +
		"img-src 'self' data:; " +
		"connect-src 'self' ws: wss:; " +
		"font-src 'self'; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"
}

// SecureHeaders adds security headers using the default config.
func SecureHeaders() func(http.Handler) http.Handler {
	return SecureHeadersWithConfig(DefaultSecureHeadersConfig())
}

// SecureHeadersWithConfig creates middleware with a custom config.
func SecureHeadersWithConfig(config SecureHeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if config.FrameOptions != "" {
				h.Set("X-Frame-Options", config.FrameOptions)
			}
			if config.ContentTypeNosniff {
				h.Set("X-Content-Type-Options", "nosniff")
			}
			if config.ReferrerPolicy != "" {
				h.Set("Referrer-Policy", config.ReferrerPolicy)
			}
			if config.PermissionsPolicy != "" {
				h.Set("Permissions-Policy", config.PermissionsPolicy)
			}
			if config.HSTSEnabled && (r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https") {
				h.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(config.HSTSMaxAge))
			}

			ctx := r.Context()
			switch {
			case config.CSPNonceEnabled:
				nonce := generateNonce()
				ctx = WithCSPNonce(ctx, nonce)
				csp := config.ContentSecurityPolicy
				if csp == "" {
					csp = ContentSecurityPolicy(nonce)
				}
				h.Set("Content-Security-Policy", csp)
			case config.ContentSecurityPolicy != "":
				h.Set("Content-Security-Policy", config.ContentSecurityPolicy)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
