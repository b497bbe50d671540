package domain

import "strings"

// NormalizeID canonicalizes an actor or conversation identifier.
// Device suffixes (":12") and server suffixes ("@s.example") are dropped
// and the result is lower-cased. NormalizeID(NormalizeID(x)) == NormalizeID(x).
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "@")
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	if i := strings.IndexByte(id, ':'); i >= 0 {
		id = id[:i]
	}
	return strings.ToLower(id)
}
