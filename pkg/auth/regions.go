package auth

import (
	"github.com/platinummonkey/keystone-auth/pkg/identity"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
)

// DefaultServicesRegion picks the services region for catalog: preferred
// when the catalog offers it, otherwise the first region of a non-identity
// endpoint in catalog order. Catalogs that only list identity endpoints
// fall back to those. "" means the catalog names no region at all.
func DefaultServicesRegion(catalog identity.Catalog, preferred string, logger *observability.Logger) string {
	if len(catalog) == 0 {
		return ""
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	available := catalogRegions(catalog, true)
	if len(available) == 0 {
		logger.Warn("No regions could be found excluding identity")
		available = catalogRegions(catalog, false)
		if len(available) == 0 {
			logger.Error("No regions can be found in the service catalog")
			return ""
		}
	}

	if preferred != "" {
		for _, region := range available {
			if region == preferred {
				return preferred
			}
		}
	}
	return available[0]
}

// AvailableServicesRegions lists the distinct non-identity endpoint
// regions of catalog in catalog order.
func AvailableServicesRegions(catalog identity.Catalog) []string {
	return catalogRegions(catalog, true)
}

func catalogRegions(catalog identity.Catalog, skipIdentity bool) []string {
	var regions []string
	seen := make(map[string]bool)
	for _, svc := range catalog {
		if skipIdentity && (svc.Type == "" || svc.Type == identity.ServiceTypeIdentity) {
			continue
		}
		for _, ep := range svc.Endpoints {
			region := ep.RegionName()
			if region == "" || seen[region] {
				continue
			}
			seen[region] = true
			regions = append(regions, region)
		}
	}
	return regions
}
