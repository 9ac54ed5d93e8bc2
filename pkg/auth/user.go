package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/keystone-auth/pkg/identity"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
	"github.com/platinummonkey/keystone-auth/pkg/projects"
)

// ProjectLister lists the projects a token may be scoped to.
// *projects.Resolver implements it.
type ProjectLister interface {
	List(ctx context.Context, q projects.Query) ([]identity.Project, error)
}

// User is the session-scoped view of an identity-service user. The zero
// value is an anonymous user.
type User struct {
	ID           string
	Username     string
	UserDomainID string
	DomainID     string
	DomainName   string
	// ProjectID is also exposed as TenantID; there is one value.
	ProjectID      string
	ProjectName    string
	Token          *Token
	ServiceCatalog identity.Catalog
	Roles          []identity.Role
	// Endpoint is the identity URL the user authenticated against
	Endpoint string
	Enabled  bool
	// UnscopedToken is the (possibly hashed) id of the token obtained
	// before project scoping, set on fresh logins only.
	UnscopedToken string

	servicesRegion string

	margin time.Duration
	now    func() time.Time
	lister ProjectLister
	logger *observability.Logger

	mu                 sync.Mutex
	authorizedProjects []identity.Project
	projectsLoaded     bool
}

// UserOption configures a User built by CreateUserFromToken
type UserOption func(*User)

// WithTokenMargin shortens the token's usable lifetime by margin
func WithTokenMargin(margin time.Duration) UserOption {
	return func(u *User) { u.margin = margin }
}

// WithClock replaces time.Now for expiry checks
func WithClock(now func() time.Time) UserOption {
	return func(u *User) {
		if now != nil {
			u.now = now
		}
	}
}

// WithProjectLister sets where AuthorizedProjects fetches from
func WithProjectLister(lister ProjectLister) UserOption {
	return func(u *User) { u.lister = lister }
}

// WithUserLogger sets the logger used for degraded lookups
func WithUserLogger(logger *observability.Logger) UserOption {
	return func(u *User) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// CreateUserFromToken builds an enabled User from token. An empty
// servicesRegion selects the catalog default.
func CreateUserFromToken(token *Token, endpoint, servicesRegion string, opts ...UserOption) *User {
	u := &User{
		ID:             token.User.ID,
		Username:       token.User.Name,
		UserDomainID:   token.UserDomainID,
		DomainID:       token.Domain.ID,
		DomainName:     token.Domain.Name,
		ProjectID:      token.Project.ID,
		ProjectName:    token.Project.Name,
		Token:          token,
		ServiceCatalog: token.ServiceCatalog,
		Roles:          token.Roles,
		Endpoint:       endpoint,
		Enabled:        true,
		now:            time.Now,
		logger:         observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if servicesRegion == "" {
		servicesRegion = DefaultServicesRegion(u.ServiceCatalog, "", u.logger)
	}
	u.servicesRegion = servicesRegion
	return u
}

// AnonymousUser returns a user with no token
func AnonymousUser() *User {
	return &User{now: time.Now, logger: observability.NopLogger()}
}

func (u *User) String() string {
	return u.Username
}

func (u *User) clock() time.Time {
	if u.now == nil {
		return time.Now()
	}
	return u.now()
}

// TenantID is the v2.0 name for ProjectID
func (u *User) TenantID() string {
	return u.ProjectID
}

// TenantName is the v2.0 name for ProjectName
func (u *User) TenantName() string {
	return u.ProjectName
}

// IsTokenExpired reports whether the token has expired. ok is false when
// the user has no token.
func (u *User) IsTokenExpired() (expired bool, ok bool) {
	if u.Token == nil {
		return false, false
	}
	return !IsTokenValid(u.Token, u.margin, u.clock()), true
}

// IsAuthenticated reports whether the user holds an unexpired token
func (u *User) IsAuthenticated() bool {
	return u.Token != nil && IsTokenValid(u.Token, u.margin, u.clock())
}

func (u *User) IsAnonymous() bool {
	return !u.IsAuthenticated()
}

func (u *User) IsActive() bool {
	return u.Enabled
}

// IsSuperuser reports whether any role is named "admin", ignoring case
func (u *User) IsSuperuser() bool {
	for _, role := range u.Roles {
		if strings.EqualFold(role.Name, AdminRole) {
			return true
		}
	}
	return false
}

// State classifies the user for the authentication lifecycle
func (u *User) State() State {
	switch {
	case !u.IsAuthenticated():
		return StateAnonymous
	case u.ProjectID == "":
		return StateUnscoped
	default:
		return StateScoped
	}
}

// AllPermissions returns "openstack.roles.<role>" for every role and
// "openstack.services.<type>" for every catalog service, lower-cased and
// sorted. Anonymous users have none.
func (u *User) AllPermissions() []string {
	if u.IsAnonymous() {
		return nil
	}
	set := u.permissionSet()
	perms := make([]string, 0, len(set))
	for perm := range set {
		perms = append(perms, perm)
	}
	sort.Strings(perms)
	return perms
}

func (u *User) permissionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(u.Roles)+len(u.ServiceCatalog))
	for _, role := range u.Roles {
		set[RolePermPrefix+strings.ToLower(role.Name)] = struct{}{}
	}
	for _, svc := range u.ServiceCatalog {
		set[ServicePermPrefix+strings.ToLower(svc.Type)] = struct{}{}
	}
	return set
}

// HasPerm reports whether an active, authenticated user holds perm
func (u *User) HasPerm(perm string) bool {
	if !u.IsActive() || u.IsAnonymous() {
		return false
	}
	_, ok := u.permissionSet()[perm]
	return ok
}

func (u *User) hasFunc() func(string) bool {
	if !u.IsActive() || u.IsAnonymous() {
		return func(string) bool { return false }
	}
	set := u.permissionSet()
	return func(perm string) bool {
		_, ok := set[perm]
		return ok
	}
}

// HasAMatchingPerm reports whether the user holds at least one of perms.
// No perms is satisfied.
func (u *User) HasAMatchingPerm(perms ...string) bool {
	return AnyOf(perms...).satisfied(u.hasFunc())
}

// HasPerms reports whether every requirement is satisfied: all Perm
// entries held and at least one of each AnyOf group. No requirements is
// satisfied.
func (u *User) HasPerms(reqs ...PermRequirement) bool {
	if len(reqs) == 0 {
		return true
	}
	has := u.hasFunc()
	for _, req := range reqs {
		if !req.satisfied(has) {
			return false
		}
	}
	return true
}

// HasModulePerms reports whether the user holds any permission under
// appLabel, such as "openstack".
func (u *User) HasModulePerms(appLabel string) bool {
	if !u.IsActive() {
		return false
	}
	for _, perm := range u.AllPermissions() {
		if label, _, ok := strings.Cut(perm, "."); ok && label == appLabel {
			return true
		}
	}
	return false
}

func (u *User) ServicesRegion() string {
	return u.servicesRegion
}

func (u *User) SetServicesRegion(region string) {
	u.servicesRegion = region
}

// AvailableServicesRegions lists the distinct non-identity regions in the
// user's catalog
func (u *User) AvailableServicesRegions() []string {
	return AvailableServicesRegions(u.ServiceCatalog)
}

// DefaultServicesRegion is the region selected when none was chosen
func (u *User) DefaultServicesRegion() string {
	return DefaultServicesRegion(u.ServiceCatalog, "", u.logger)
}

// AuthorizedProjects returns the projects the user may switch to, fetched
// on first use. Lookup failures are logged and yield an empty list; the
// next call retries.
func (u *User) AuthorizedProjects(ctx context.Context) []identity.Project {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.projectsLoaded || !u.IsAuthenticated() || u.lister == nil {
		return u.authorizedProjects
	}

	list, err := u.lister.List(ctx, projects.Query{
		Token:     u.Token.ID,
		UserID:    u.ID,
		AuthURL:   u.Endpoint,
		Federated: u.Token.Federated,
	})
	if err != nil {
		u.logger.WithError(err).WithField("user_id", u.ID).Error("Unable to retrieve project list")
		return nil
	}
	u.authorizedProjects = list
	u.projectsLoaded = true
	return list
}

// SetAuthorizedProjects replaces the cached project list
func (u *User) SetAuthorizedProjects(list []identity.Project) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.authorizedProjects = list
	u.projectsLoaded = true
}

// AuthorizedTenants is the v2.0 name for AuthorizedProjects
func (u *User) AuthorizedTenants(ctx context.Context) []identity.Project {
	return u.AuthorizedProjects(ctx)
}
