// Package urlutil provides feed URL helpers.
package urlutil

import (
	"net/url"
	"strings"
)

// URL scheme constants.
const (
	SchemeWS    = "ws"
	SchemeWSS   = "wss"
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// Redacted replaces secret values in redacted URLs.
const Redacted = "REDACTED"

var sensitiveParams = []string{"token", "key", "secret", "password", "auth", "signature"}

// NormalizeFeedURL trims whitespace and maps the URL onto a websocket scheme:
//
//	"camera.local/feed"       -> "ws://camera.local/feed"
//	"http://camera.local/feed"  -> "ws://camera.local/feed"
//	"https://camera.local/feed" -> "wss://camera.local/feed"
//
// Other schemes are returned unchanged for the caller to reject.
func NormalizeFeedURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(raw, SchemeHTTPS+"://"):
		return SchemeWSS + strings.TrimPrefix(raw, SchemeHTTPS)
	case strings.HasPrefix(raw, SchemeHTTP+"://"):
		return SchemeWS + strings.TrimPrefix(raw, SchemeHTTP)
	case !strings.Contains(raw, "://"):
		return SchemeWS + "://" + raw
	}
	return raw
}

// IsSecure reports whether the URL uses TLS.
func IsSecure(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == SchemeWSS || u.Scheme == SchemeHTTPS
}

// Redact hides the userinfo password and the values of credential-like
// query parameters. Unparseable input is replaced entirely.
func Redact(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Redacted
	}

	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), Redacted)
		}
	}

	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if isSensitive(name) {
				q.Set(name, Redacted)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String()
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range sensitiveParams {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
