package storage

import (
	"path/filepath"
	"strings"
)

// NormalizeIdentifier converts an arbitrary header or file name into a safe
// SQL identifier: lowercase, alphanumerics only, runs of everything else
// collapsed to single underscores. A leading digit gets a "t_" prefix so the
// result is valid unquoted in every supported backend.
func NormalizeIdentifier(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		isWord := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isWord {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}

	out := b.String()
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "t_" + out
	}
	return out
}

// TableNameFromFilename derives the destination table name from the uploaded
// file's name: base name without extension, normalized. Falls back to
// "dataset" when nothing usable survives.
func TableNameFromFilename(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if n := NormalizeIdentifier(base); n != "" {
		return n
	}
	return "dataset"
}
