// Package artifacts reads the JSON evaluation artifacts written by the
// evaluation pipeline and derives the model slug each file belongs to.
package artifacts

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// StampLayout is the timestamp prefix of artifact file names,
// e.g. 2025-01-01T00-00-00+0000.
const StampLayout = "2006-01-02T15-04-05-0700"

// filenamePattern is <prefix>_<rest>.json where prefix holds no underscore.
var filenamePattern = regexp.MustCompile(`^([^_]+)_(.+?)\.json$`)

// DeriveSlug extracts the model slug from an artifact file name.
//
// Grammar: <prefix>_<slug>[_+<marker>].json. The prefix runs up to the first
// underscore and is dropped; one or more underscores followed by marker are
// stripped from the end. When the name does not follow the grammar the name
// without its extension is returned with ok=false.
func DeriveSlug(filename, marker string) (slug string, ok bool) {
	base := filepath.Base(filename)
	m := filenamePattern.FindStringSubmatch(base)
	if m == nil {
		return strings.TrimSuffix(base, filepath.Ext(base)), false
	}
	return stripMarker(m[2], marker), true
}

// Prefix returns the part of an artifact file name before the first
// underscore, or "" when there is none.
func Prefix(filename string) string {
	m := filenamePattern.FindStringSubmatch(filepath.Base(filename))
	if m == nil {
		return ""
	}
	return m[1]
}

// ParseStamp parses the timestamp prefix of an artifact file name
func ParseStamp(prefix string) (time.Time, error) {
	return time.Parse(StampLayout, prefix)
}

func stripMarker(slug, marker string) string {
	if marker == "" {
		return slug
	}
	rest := strings.TrimSuffix(slug, marker)
	if rest == slug || !strings.HasSuffix(rest, "_") {
		return slug
	}
	if rest = strings.TrimRight(rest, "_"); rest == "" {
		return slug
	}
	return rest
}
