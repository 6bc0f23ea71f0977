package keys

import "strings"

// Scheme is the Authorization header scheme for API keys.
const Scheme = "ApiKey"

// ParseCredential splits "<keyId>.<secret>" on the first dot only, so the
// secret may itself contain dots. A leading "ApiKey " scheme is stripped.
// ok is false only when the credential is empty; a missing secret yields
// an empty secret.
func ParseCredential(raw string) (keyID, secret string, ok bool) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, Scheme) {
		return "", "", false
	}
	if scheme, rest, found := strings.Cut(raw, " "); found && strings.EqualFold(scheme, Scheme) {
		raw = strings.TrimSpace(rest)
	}
	if raw == "" {
		return "", "", false
	}

	keyID, secret, _ = strings.Cut(raw, ".")
	return keyID, secret, true
}

// FormatCredential joins a key id and secret into the credential clients send.
func FormatCredential(keyID, secret string) string {
	return keyID + "." + secret
}
