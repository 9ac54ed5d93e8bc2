package auth

// Ref is an id/name pair for the project or domain a token is scoped to
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TokenUser identifies the user a token was issued to
type TokenUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// State is where a User sits in its lifecycle
type State int

const (
	// StateAnonymous is the fallback whenever no valid token exists
	StateAnonymous State = iota
	// StateUnscoped holds a valid token bound to no project
	StateUnscoped
	// StateScoped holds a valid project-scoped token
	StateScoped
)

func (s State) String() string {
	switch s {
	case StateUnscoped:
		return "authenticated-unscoped"
	case StateScoped:
		return "authenticated-scoped"
	default:
		return "anonymous"
	}
}

// Permission namespaces derived from a user's roles and service catalog
const (
	AppLabel          = "openstack"
	RolePermPrefix    = AppLabel + ".roles."
	ServicePermPrefix = AppLabel + ".services."
)

// AdminRole grants superuser status, compared case-insensitively
const AdminRole = "admin"
