package cacheengine

import "fmt"

// EntityKey builds the {resource}:{id} cache key.
func EntityKey(resource, id string) string { return fmt.Sprintf("%s:%s", resource, id) }

// ListKey builds the {resource}:list:{queryFp} namespace.
func ListKey(resource, queryFingerprint string) string {
	return fmt.Sprintf("%s:list:%s", resource, queryFingerprint)
}

// ListTag is the list-level tag stamped on every list-query cache entry,
// invalidated whenever any entity of the resource changes.
func ListTag(resource string) string { return fmt.Sprintf("%s:list", resource) }

// StatusTag namespaces cache entries and tags by a status facet.
func StatusTag(resource, status string) string { return fmt.Sprintf("%s:status:%s", resource, status) }

// CategoryTag namespaces cache entries and tags by a category facet.
func CategoryTag(resource, category string) string {
	return fmt.Sprintf("%s:category:%s", resource, category)
}

// EntityTag is the cache tag identifying every entry dependent on one
// specific aggregate instance.
func EntityTag(resource, id string) string { return fmt.Sprintf("%s:entity:%s", resource, id) }
