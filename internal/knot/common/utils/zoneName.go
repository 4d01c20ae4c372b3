package utils

import "strings"

// CanonicalZoneName returns a zone name the way the daemon reports it:
// - Lowercased
// - Trimmed of surrounding whitespace
// - Absolute, with exactly one trailing dot
//
// The root zone is ".". An empty or blank name stays empty.
func CanonicalZoneName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = strings.TrimRight(name, ".")
	return name + "."
}
