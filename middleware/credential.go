package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/KanavDutta/keyfence/keys"
)

// APIKeyHeader is the alternative header carrying "<keyId>.<secret>".
const APIKeyHeader = "X-API-Key"

// CredentialExtractor returns the raw credential presented by a request, or "".
type CredentialExtractor func(*http.Request) string

// ExtractCredential reads "Authorization: ApiKey <keyId>.<secret>" and falls
// back to the X-API-Key header. Other Authorization schemes are ignored.
func ExtractCredential() CredentialExtractor {
	return FirstOf(ExtractAuthorization(keys.Scheme), ExtractHeader(APIKeyHeader))
}

// ExtractAuthorization returns the Authorization value when it uses scheme.
func ExtractAuthorization(scheme string) CredentialExtractor {
	return func(r *http.Request) string {
		auth := r.Header.Get("Authorization")
		prefix, rest, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(prefix, scheme) {
			return ""
		}
		return strings.TrimSpace(rest)
	}
}

// ExtractHeader returns the trimmed value of header name.
func ExtractHeader(name string) CredentialExtractor {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(name))
	}
}

// FirstOf returns the first non-empty credential found by extractors.
func FirstOf(extractors ...CredentialExtractor) CredentialExtractor {
	return func(r *http.Request) string {
		for _, extract := range extractors {
			if cred := extract(r); cred != "" {
				return cred
			}
		}
		return ""
	}
}

// ClientIP returns the caller address, preferring the first X-Forwarded-For
// entry, then X-Real-IP, then the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
