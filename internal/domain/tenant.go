package domain

import (
	"fmt"
	"regexp"
)

// KeyPrefix namespaces every key evergreen writes into a shared Redis.
const KeyPrefix = "evergreen:"

// NamePrefix prefixes per-tenant FT indexes, graphs and tables.
const NamePrefix = "evergreen_"

var tenantRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateTenant checks that a tenant id can safely name physical collections.
func ValidateTenant(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant id is required: %w", ErrInvalidTenant)
	}
	if len(tenant) > 128 {
		return fmt.Errorf("tenant id too long (max 128): %w", ErrInvalidTenant)
	}
	if !tenantRegex.MatchString(tenant) {
		return fmt.Errorf("tenant id %q must match [a-zA-Z0-9_-]+: %w", tenant, ErrInvalidTenant)
	}
	return nil
}

// CollectionName is the vector collection (FT index or table) of a tenant.
func CollectionName(tenant string) string { return NamePrefix + tenant }

// GraphName is the knowledge graph of a tenant.
func GraphName(tenant string) string { return NamePrefix + tenant }

// ChunkKeyPrefix is the hash key prefix covered by the tenant's FT index.
func ChunkKeyPrefix(tenant string) string { return KeyPrefix + tenant + ":chunk:" }

// DocumentKey is the key of a tenant's ingestion status record.
func DocumentKey(tenant, documentID string) string {
	return KeyPrefix + tenant + ":doc:" + documentID
}
