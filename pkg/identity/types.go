package identity

// Role is a role assignment carried by a token
type Role struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Endpoint is one regional endpoint of a catalog service
type Endpoint struct {
	ID        string `json:"id,omitempty"`
	URL       string `json:"url"`
	Interface string `json:"interface,omitempty"`
	Region    string `json:"region,omitempty"`
	RegionID  string `json:"region_id,omitempty"`
}

// RegionName returns the endpoint region. v3 deprecates "region" in favor
// of "region_id"; this works for both.
func (e Endpoint) RegionName() string {
	if e.RegionID != "" {
		return e.RegionID
	}
	return e.Region
}

// Service is a service catalog entry
type Service struct {
	ID        string     `json:"id,omitempty"`
	Type      string     `json:"type"`
	Name      string     `json:"name,omitempty"`
	Endpoints []Endpoint `json:"endpoints"`
}

// ServiceTypeIdentity is the catalog type of the identity service itself
const ServiceTypeIdentity = "identity"

// Catalog is the service catalog returned with a token, in upstream order
type Catalog []Service

// Project is a project (v2: tenant) a token can be scoped to
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	DomainID    string `json:"domain_id,omitempty"`
	Enabled     bool   `json:"enabled"`
}
