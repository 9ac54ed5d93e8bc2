package auth

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/keystone-auth/pkg/identity"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
	"github.com/platinummonkey/keystone-auth/pkg/projects"
	"github.com/platinummonkey/keystone-auth/pkg/session"
	"github.com/platinummonkey/keystone-auth/pkg/urlutil"
)

// BackendConfig holds the settings the backend consults on every login
type BackendConfig struct {
	// DefaultAuthURL is used when a login names no region
	DefaultAuthURL string
	// DefaultDomain is the user domain for logins that name none
	DefaultDomain string
	// TokenMargin shortens every token's usable lifetime
	TokenMargin time.Duration
	// Now replaces time.Now, for tests
	Now func() time.Time
}

// Credentials is a password login request
type Credentials struct {
	Username string
	Password string
	// Domain is the user domain name (v3); empty uses DefaultDomain
	Domain string
	// AuthURL selects the region's identity endpoint; empty uses
	// DefaultAuthURL
	AuthURL string
}

// Backend authenticates users against the identity service and rebuilds
// them from session state.
type Backend struct {
	client   identity.Client
	projects *projects.Resolver
	cfg      BackendConfig
	logger   *observability.Logger
	metrics  *observability.AuthMetrics
}

// NewBackend creates a backend. A nil resolver gets one backed by an
// in-process LRU.
func NewBackend(client identity.Client, resolver *projects.Resolver, cfg BackendConfig, logger *observability.Logger, metrics *observability.AuthMetrics) *Backend {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if resolver == nil {
		resolver = projects.NewResolver(client, nil, logger, metrics)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultDomain == "" {
		cfg.DefaultDomain = "Default"
	}
	return &Backend{
		client:   client,
		projects: resolver,
		cfg:      cfg,
		logger:   logger.WithComponent("auth_backend"),
		metrics:  metrics,
	}
}

// Version is the identity API version the backend speaks
func (b *Backend) Version() identity.Version {
	return b.client.Version()
}

// Projects returns the authorized-projects resolver
func (b *Backend) Projects() *projects.Resolver {
	return b.projects
}

func (b *Backend) userOptions() []UserOption {
	return []UserOption{
		WithTokenMargin(b.cfg.TokenMargin),
		WithClock(b.cfg.Now),
		WithProjectLister(b.projects),
		WithUserLogger(b.logger),
	}
}

func (b *Backend) authURL(requested string) string {
	if requested == "" {
		requested = b.cfg.DefaultAuthURL
	}
	return urlutil.FixAuthURLVersion(requested, b.client.Version(), b.logger)
}

// CheckAuthExpiry returns ErrTokenExpired when token is not valid
func (b *Backend) CheckAuthExpiry(token *Token) error {
	if IsTokenValid(token, b.cfg.TokenMargin, b.cfg.Now()) {
		return nil
	}
	b.logger.Warn("The authentication token issued by the Identity service appears to have expired before it was issued. This may indicate a problem with either your server or client configuration.")
	return ErrTokenExpired
}

// Authenticate logs a user in with a password. The returned user holds a
// project-scoped token and the unscoped token it was derived from.
func (b *Backend) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	domain := creds.Domain
	if domain == "" {
		domain = b.cfg.DefaultDomain
	}
	logger := b.logger.WithField("username", creds.Username)
	logger.Debug("Beginning user authentication")

	user, err := b.login(ctx, b.authURL(creds.AuthURL), identity.PasswordAuth{
		Username:       creds.Username,
		Password:       creds.Password,
		UserDomainName: domain,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("Authentication completed")
	return user, nil
}

// AuthenticateWithToken logs a user in with an unscoped token issued by
// the identity service after a WebSSO round trip.
func (b *Backend) AuthenticateWithToken(ctx context.Context, token, authURL string) (*User, error) {
	return b.login(ctx, b.authURL(authURL), identity.NewTokenAuth(token, ""), b.logger)
}

func (b *Backend) login(ctx context.Context, authURL string, method identity.AuthMethod, logger *observability.Logger) (*User, error) {
	ctx, span := observability.StartSpan(ctx, "auth.login")
	defer span.End()

	unscoped, err := b.client.Authenticate(ctx, authURL, method)
	if err != nil {
		logger.WithError(err).Debug("Authentication request failed")
		if identity.IsCredentialError(err) {
			b.metrics.RecordLogin(observability.LoginInvalid)
			return nil, wrapAuthError(ErrInvalidCredentials, err)
		}
		b.metrics.RecordLogin(observability.LoginError)
		return nil, wrapAuthError(ErrAuthServiceFailure, err)
	}

	unscopedToken := NewToken(unscoped)
	if err := b.CheckAuthExpiry(unscopedToken); err != nil {
		b.metrics.RecordLogin(observability.LoginExpired)
		return nil, err
	}

	var (
		scoped     identity.AccessInfo
		authorized []identity.Project
	)
	if unscoped.ProjectScoped() {
		// The identity service scoped to the user's default project.
		scoped = unscoped
	} else {
		// Cached under the hashed id so Logout finds the entry.
		authorized, err = b.projects.List(ctx, projects.Query{
			Token:     unscopedToken.ID,
			UserID:    unscoped.UserID(),
			AuthURL:   authURL,
			Federated: unscoped.IsFederated(),
		})
		if err != nil {
			b.metrics.RecordLogin(observability.LoginError)
			return nil, wrapAuthError(ErrProjectsUnavailable, err)
		}
		if len(authorized) == 0 {
			b.metrics.RecordLogin(observability.LoginNoProjects)
			return nil, ErrNoProjects
		}

		for _, project := range authorized {
			scoped, err = b.client.Authenticate(ctx, authURL, identity.NewTokenAuth(unscoped.AuthToken(), project.ID))
			if err == nil {
				break
			}
			logger.WithError(err).WithField("project_id", project.ID).Debug("Unable to scope token to project")
		}
		if scoped == nil {
			b.metrics.RecordLogin(observability.LoginNoProjects)
			return nil, wrapAuthError(ErrNoProjectAuthorized, err)
		}
	}

	token := NewToken(scoped)
	if err := b.CheckAuthExpiry(token); err != nil {
		b.metrics.RecordLogin(observability.LoginExpired)
		return nil, err
	}

	user := CreateUserFromToken(token, authURL, "", b.userOptions()...)
	user.UnscopedToken = unscopedToken.ID
	if authorized != nil {
		user.SetAuthorizedProjects(authorized)
	}
	b.metrics.RecordLogin(observability.LoginSuccess)
	return user, nil
}

// GetUser rebuilds the user stored in sess when its user id matches
// userID. It returns nil when the session holds someone else or nothing.
func (b *Backend) GetUser(ctx context.Context, sess session.Session, userID string) (*User, error) {
	if sess == nil || userID == "" || session.GetString(sess, session.KeyUserID) != userID {
		return nil, nil
	}
	raw, ok := sess.Get(session.KeyToken)
	if !ok {
		return nil, nil
	}
	token, err := DecodeToken(raw)
	if err != nil {
		return nil, err
	}

	user := CreateUserFromToken(token,
		session.GetString(sess, session.KeyRegionEndpoint),
		session.GetString(sess, session.KeyServicesRegion),
		b.userOptions()...)
	user.UnscopedToken = session.GetString(sess, session.KeyUnscopedToken)
	return user, nil
}

// ResolveUser returns the user for the session, or an anonymous user when
// the session holds none or cannot be decoded.
func (b *Backend) ResolveUser(ctx context.Context, sess session.Session) *User {
	userID := session.GetString(sess, session.KeyUserID)
	if userID == "" {
		return AnonymousUser()
	}
	user, err := b.GetUser(ctx, sess, userID)
	if err != nil {
		b.logger.WithError(err).Warn("Discarding unreadable session token")
		return AnonymousUser()
	}
	if user == nil {
		return AnonymousUser()
	}
	return user
}

// SwitchProject rescopes user to projectID, preferring the unscoped token
// from login. On success the previous scoped token is revoked.
func (b *Backend) SwitchProject(ctx context.Context, user *User, projectID string) (*User, error) {
	if user == nil || user.Token == nil {
		return nil, ErrProjectSwitchFailure
	}
	ctx, span := observability.StartSpan(ctx, "auth.switch_project")
	defer span.End()

	logger := b.logger.WithFields(map[string]interface{}{
		"username":   user.Username,
		"project_id": projectID,
	})
	logger.Debug("Switching project")

	endpoint := b.authURL(user.Endpoint)
	source := user.UnscopedToken
	if source == "" {
		source = user.Token.ID
	}

	access, err := b.client.Authenticate(ctx, endpoint, identity.NewTokenAuth(source, projectID))
	if err == nil && !access.ProjectScoped() {
		err = errors.New("identity service returned an unscoped token")
	}
	if err != nil {
		span.RecordError(err)
		b.metrics.RecordProjectSwitch(false)
		logger.WithError(err).Warn("Project switch failed")
		return nil, wrapAuthError(ErrProjectSwitchFailure, err)
	}

	token := NewToken(access)
	if err := b.CheckAuthExpiry(token); err != nil {
		b.metrics.RecordProjectSwitch(false)
		return nil, err
	}

	// The old token was issued by the endpoint the user logged in at.
	if user.Token.ID != token.ID {
		b.RevokeToken(ctx, user.Endpoint, user.Token.ID)
	}

	next := CreateUserFromToken(token, endpoint, "", b.userOptions()...)
	next.UnscopedToken = user.UnscopedToken
	if preferred := user.ServicesRegion(); preferred != "" {
		next.SetServicesRegion(DefaultServicesRegion(next.ServiceCatalog, preferred, b.logger))
	}
	b.metrics.RecordProjectSwitch(true)
	logger.Info("Project switch successful")
	return next, nil
}

// RevokeToken deletes tokenID at the identity service. Failures are logged
// and otherwise ignored.
func (b *Backend) RevokeToken(ctx context.Context, endpoint, tokenID string) {
	if endpoint == "" || tokenID == "" {
		return
	}
	if err := b.client.RevokeToken(ctx, endpoint, tokenID); err != nil {
		b.metrics.RecordTokenRevocation(false)
		b.logger.WithError(err).Info("Could not delete token")
		return
	}
	b.metrics.RecordTokenRevocation(true)
	b.logger.Debug("Deleted token")
}

// Logout revokes the session's token, forgets its project list and
// flushes the session.
func (b *Backend) Logout(ctx context.Context, sess session.Session) {
	if sess == nil {
		return
	}
	endpoint := session.GetString(sess, session.KeyRegionEndpoint)
	if raw, ok := sess.Get(session.KeyToken); ok {
		if token, err := DecodeToken(raw); err == nil {
			b.RevokeToken(ctx, endpoint, token.ID)
			b.projects.Remove(ctx, token.ID)
		}
	}
	if unscoped := session.GetString(sess, session.KeyUnscopedToken); unscoped != "" {
		b.projects.Remove(ctx, unscoped)
	}
	sess.Flush()
	b.metrics.RecordLogout()
}

// SetSessionFromUser stores what GetUser needs to rebuild user
func SetSessionFromUser(sess session.Session, user *User) {
	sess.Set(session.KeyToken, user.Token)
	sess.Set(session.KeyUserID, user.ID)
	sess.Set(session.KeyRegionEndpoint, user.Endpoint)
	sess.Set(session.KeyServicesRegion, user.ServicesRegion())
	if user.UnscopedToken != "" {
		sess.Set(session.KeyUnscopedToken, user.UnscopedToken)
	}
}
