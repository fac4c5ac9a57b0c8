package vstore

import "strings"

// CollectionFor maps an entity name to its collection. With per-entity
// routing disabled it returns base unconditionally; otherwise it appends a
// sanitized slug of the entity name. The mapping is deterministic and total
// for any non-empty entity name.
func CollectionFor(base, entity string, perEntity bool) string {
	if !perEntity {
		return base
	}
	slug := slugify(entity)
	if slug == "" {
		// Names made entirely of unsafe characters still need a stable home.
		slug = "entity"
	}
	return base + "_" + slug
}

// slugify lowercases name, maps every character outside [a-z0-9_-] to '_',
// collapses runs of '_', and trims leading/trailing '_'.
func slugify(name string) string {
	lowered := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}
