package addon

import (
	"net/url"
	"strings"
)

// slugSeparator joins the three slug fields. Addon ids are server-assigned
// UUIDs, catalog types and ids come from manifests where '~' is not in legal
// use, so the separator cannot collide on well-formed inputs.
const slugSeparator = "~"

// EncodeCatalogSlug packs an addon id, catalog type and catalog id into one
// opaque, URL-safe identifier.
func EncodeCatalogSlug(addonID, catalogType, catalogID string) string {
	joined := strings.Join([]string{addonID, catalogType, catalogID}, slugSeparator)
	return url.QueryEscape(joined)
}

// DecodeCatalogSlug reverses EncodeCatalogSlug. It reports ok=false for slugs
// that do not decode to exactly three non-empty parts; it never panics.
func DecodeCatalogSlug(slug string) (addonID, catalogType, catalogID string, ok bool) {
	unescaped, err := url.QueryUnescape(slug)
	if err != nil {
		return "", "", "", false
	}
	parts := strings.Split(unescaped, slugSeparator)
	if len(parts) != 3 {
		return "", "", "", false
	}
	for _, part := range parts {
		if part == "" {
			return "", "", "", false
		}
	}
	return parts[0], parts[1], parts[2], true
}
