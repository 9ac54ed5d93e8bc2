package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/keystone-auth/pkg/auth"
	"github.com/platinummonkey/keystone-auth/pkg/config"
	"github.com/platinummonkey/keystone-auth/pkg/httputil"
	"github.com/platinummonkey/keystone-auth/pkg/middleware"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
	"github.com/platinummonkey/keystone-auth/pkg/session"
	"github.com/platinummonkey/keystone-auth/pkg/urlutil"
	"github.com/platinummonkey/keystone-auth/pkg/websso"
)

// RedirectFieldName is the query or form field carrying the post-login
// destination
const RedirectFieldName = "next"

// AuthBackend is the part of *auth.Backend the views drive
type AuthBackend interface {
	Authenticate(ctx context.Context, creds auth.Credentials) (*auth.User, error)
	AuthenticateWithToken(ctx context.Context, token, authURL string) (*auth.User, error)
	SwitchProject(ctx context.Context, user *auth.User, projectID string) (*auth.User, error)
	Logout(ctx context.Context, sess session.Session)
}

// AuthHandlers serves the login, logout, project switch, region switch and
// WebSSO callback views
type AuthHandlers struct {
	backend  AuthBackend
	cfg      *config.Config
	settings config.SettingsSource
	audit    *auth.AuditLogger
	metrics  *observability.AuthMetrics
	logger   *observability.Logger
	throttle middleware.Throttle
	proxies  httputil.TrustedProxies
	now      func() time.Time
}

// NewAuthHandlers creates the auth views. A nil settings source serves
// cfg.Settings.
func NewAuthHandlers(backend AuthBackend, cfg *config.Config, settings config.SettingsSource, logger *observability.Logger, metrics *observability.AuthMetrics) *AuthHandlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if settings == nil {
		settings = config.Static(cfg.Settings)
	}
	return &AuthHandlers{
		backend:  backend,
		cfg:      cfg,
		settings: settings,
		audit:    auth.NewAuditLogger(logger),
		metrics:  metrics,
		logger:   logger.WithComponent("auth_views"),
		now:      time.Now,
	}
}

// WithLoginThrottle limits login submissions per client address
func (h *AuthHandlers) WithLoginThrottle(throttle middleware.Throttle) *AuthHandlers {
	h.throttle = throttle
	return h
}

// WithTrustedProxies honors forwarding headers from proxies when keying
// the login throttle and recording audit addresses
func (h *AuthHandlers) WithTrustedProxies(proxies httputil.TrustedProxies) *AuthHandlers {
	h.proxies = proxies
	h.audit.WithTrustedProxies(proxies)
	return h
}

// RegisterRoutes registers the auth views. The switch views require a
// logged-in user; the WebSSO callback exists only when WebSSO is enabled.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	requireLogin := middleware.RequireLogin(h.cfg.Web.LoginURL)

	var login http.Handler = http.HandlerFunc(h.login)
	if h.throttle != nil {
		login = middleware.ThrottleLogins(h.throttle, h.proxies, h.audit, h.metrics)(login)
	}

	router.HandleFunc("/auth/login/", h.loginForm).Methods("GET")
	router.Handle("/auth/login/", login).Methods("POST")
	router.HandleFunc("/auth/logout/", h.logout).Methods("GET", "POST")
	router.Handle("/auth/switch/{project_id}/", requireLogin(http.HandlerFunc(h.switchProject))).Methods("GET", "POST")
	router.Handle("/auth/switch_services_region/{region}/", requireLogin(http.HandlerFunc(h.switchRegion))).Methods("GET", "POST")

	if h.cfg.WebSSOEnabled() {
		router.HandleFunc(websso.CallbackPath, h.webSSO).Methods("POST")
	}
}

// LoginForm describes the login form for the current request
type LoginForm struct {
	Regions        []config.Region `json:"regions"`
	InitialRegion  string          `json:"initial_region,omitempty"`
	ShowRegion     bool            `json:"show_region"`
	DomainRequired bool            `json:"domain_required"`
	WebSSOEnabled  bool            `json:"websso_enabled"`
	WebSSOChoices  []websso.Choice `json:"websso_choices,omitempty"`
	InitialChoice  string          `json:"initial_choice,omitempty"`
	Next           string          `json:"next,omitempty"`
	Authenticated  bool            `json:"authenticated"`
}

// LoginResponse is returned to JSON clients after a successful login
type LoginResponse struct {
	RedirectTo     string `json:"redirect_to"`
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	ProjectID      string `json:"project_id"`
	ProjectName    string `json:"project_name"`
	ServicesRegion string `json:"services_region"`
}

// loginForm handles GET /auth/login/
func (h *AuthHandlers) loginForm(w http.ResponseWriter, r *http.Request) {
	settings := h.settings.Settings()
	regions := settings.RegionChoices(h.cfg.Identity.AuthURL)

	form := LoginForm{
		Regions:        regions,
		ShowRegion:     len(regions) > 1,
		DomainRequired: h.cfg.Identity.MultiDomain,
		WebSSOEnabled:  h.cfg.WebSSOEnabled(),
		Next:           r.URL.Query().Get(RedirectFieldName),
		Authenticated:  middleware.CurrentUser(r).IsAuthenticated(),
	}
	if len(regions) == 1 {
		form.InitialRegion = regions[0].URL
	}

	current := ""
	if sess, ok := session.FromContext(r.Context()); ok {
		current = session.GetString(sess, session.KeyRegionEndpoint)
	}
	if requested := r.URL.Query().Get("region"); requested != "" && requested != current {
		if _, ok := settings.RegionName(h.cfg.Identity.AuthURL, requested); ok {
			form.InitialRegion = requested
		}
	}

	if form.WebSSOEnabled {
		form.WebSSOChoices = settings.WebSSOChoices
		form.InitialChoice = h.cfg.WebSSO.InitialChoice
	}

	httputil.WriteJSON(w, http.StatusOK, form)
}

// login handles POST /auth/login/
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	values, err := httputil.ParseValues(w, r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	settings := h.settings.Settings()

	region := values["region"]
	if region == "" {
		region = h.cfg.Identity.AuthURL
	} else if _, ok := settings.RegionName(h.cfg.Identity.AuthURL, region); !ok {
		httputil.WriteDetailedError(w, http.StatusBadRequest, "invalid login", map[string]string{
			"region": "select a valid region",
		})
		return
	}

	if choice := values["auth_type"]; h.cfg.WebSSOEnabled() && choice != "" && choice != websso.CredentialsChoice {
		target := websso.RequestURL(r, h.cfg.Web.Webroot, region, choice, settings.WebSSOMapping)
		h.metrics.RecordLogin(observability.LoginWebSSORedirect)
		h.logger.WithField("choice", choice).Debug("Redirecting to WebSSO provider")
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	required := []string{"username", "password"}
	if h.cfg.Identity.MultiDomain {
		required = append(required, "domain")
	}
	details := map[string]string{}
	if !httputil.RequireNonEmpty(values, details, required...) {
		httputil.WriteDetailedError(w, http.StatusBadRequest, "invalid login", details)
		return
	}

	logger := observability.FromContext(r.Context()).WithField("username", values["username"])
	user, err := h.backend.Authenticate(r.Context(), auth.Credentials{
		Username: values["username"],
		Password: values["password"],
		Domain:   values["domain"],
		AuthURL:  region,
	})
	if err != nil {
		logger.WithError(err).Warn(fmt.Sprintf("Login failed for user %q.", values["username"]))
		sess.Flush()
		failed := &auth.User{Username: values["username"]}
		h.audit.LogFromRequest(r, auth.ActionLogin, auth.StatusFailure, failed, err)
		writeAuthError(w, err)
		return
	}
	logger.Info(fmt.Sprintf("Login successful for user %q.", values["username"]))

	next := h.redirectTarget(r, values[RedirectFieldName])
	h.completeLogin(w, r, sess, user, auth.ActionLogin, next)
}

// webSSO handles POST /auth/websso/, the identity service's callback
// carrying a federated token
func (h *AuthHandlers) webSSO(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	values, err := httputil.ParseValues(w, r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	token := values["token"]
	if token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	user, err := h.backend.AuthenticateWithToken(r.Context(), token, h.cfg.Identity.AuthURL)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("WebSSO login failed")
		sess.Flush()
		h.audit.LogFromRequest(r, auth.ActionWebSSOLogin, auth.StatusFailure, nil, err)
		http.Redirect(w, r, h.cfg.Web.LoginURL, http.StatusFound)
		return
	}

	h.completeLogin(w, r, sess, user, auth.ActionWebSSOLogin, h.cfg.Web.LoginRedirectURL)
}

// completeLogin stores user in a fresh session under a new id and sends
// the client on
func (h *AuthHandlers) completeLogin(w http.ResponseWriter, r *http.Request, sess session.Session, user *auth.User, action, next string) {
	if c, err := r.Cookie(session.ServicesRegionCookie); err == nil && c.Value != "" {
		user.SetServicesRegion(auth.DefaultServicesRegion(user.ServiceCatalog, c.Value, h.logger))
	}

	sess.Flush()
	if err := session.CycleKey(r.Context(), sess); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to rotate session id at login")
		httputil.WriteServiceUnavailable(w, "Session storage is unavailable.")
		return
	}
	auth.SetSessionFromUser(sess, user)
	if name, ok := h.settings.Settings().RegionName(h.cfg.Identity.AuthURL, user.Endpoint); ok {
		sess.Set(session.KeyRegionName, name)
	}
	middleware.SetCurrentUser(r, user)
	h.audit.LogFromRequest(r, action, auth.StatusSuccess, user, nil)

	if httputil.IsJSON(r) {
		httputil.WriteJSON(w, http.StatusOK, LoginResponse{
			RedirectTo:     next,
			UserID:         user.ID,
			Username:       user.Username,
			ProjectID:      user.ProjectID,
			ProjectName:    user.ProjectName,
			ServicesRegion: user.ServicesRegion(),
		})
		return
	}
	http.Redirect(w, r, next, http.StatusFound)
}

// logout handles /auth/logout/ and sends the client back to the login page
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r)
	observability.FromContext(r.Context()).Info(fmt.Sprintf("Logging out user %q.", user.Username))

	if sess, ok := session.FromContext(r.Context()); ok {
		h.backend.Logout(r.Context(), sess)
	}
	middleware.SetCurrentUser(r, auth.AnonymousUser())
	if !user.IsAnonymous() {
		h.audit.LogFromRequest(r, auth.ActionLogout, auth.StatusSuccess, user, nil)
	}
	http.Redirect(w, r, h.cfg.Web.LoginURL, http.StatusFound)
}

// switchProject handles /auth/switch/{project_id}/
func (h *AuthHandlers) switchProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathStringOrError(w, r, "project_id")
	if !ok {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	user := middleware.CurrentUser(r)
	next := h.redirectTarget(r, httputil.ParseQueryString(r, RedirectFieldName, ""))

	switched, err := h.backend.SwitchProject(r.Context(), user, projectID)
	if err != nil {
		h.audit.LogFromRequest(r, auth.ActionProjectSwitch, auth.StatusFailure, user, err)
		http.Redirect(w, r, next, http.StatusFound)
		return
	}

	auth.SetSessionFromUser(sess, switched)
	middleware.SetCurrentUser(r, switched)
	h.audit.LogFromRequest(r, auth.ActionProjectSwitch, auth.StatusSuccess, switched, nil)
	http.Redirect(w, r, next, http.StatusFound)
}

// switchRegion handles /auth/switch_services_region/{region}/. Regions the
// user's catalog does not offer are ignored.
func (h *AuthHandlers) switchRegion(w http.ResponseWriter, r *http.Request) {
	region, ok := httputil.ParsePathStringOrError(w, r, "region")
	if !ok {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	user := middleware.CurrentUser(r)
	next := h.redirectTarget(r, httputil.ParseQueryString(r, RedirectFieldName, ""))

	for _, available := range user.AvailableServicesRegions() {
		if available != region {
			continue
		}
		sess.Set(session.KeyServicesRegion, region)
		user.SetServicesRegion(region)
		session.SetResponseCookie(w, session.ServicesRegionCookie, region, h.now())
		h.metrics.RecordRegionSwitch()
		h.logger.WithFields(map[string]interface{}{
			"region":   region,
			"username": user.Username,
		}).Debug("Switching services region")
		h.audit.LogFromRequest(r, auth.ActionRegionSwitch, auth.StatusSuccess, user, nil)
		break
	}

	http.Redirect(w, r, next, http.StatusFound)
}

// redirectTarget returns next when it stays on this host, else the
// configured post-login URL
func (h *AuthHandlers) redirectTarget(r *http.Request, next string) string {
	if urlutil.IsSafeURL(next, r.Host) {
		return next
	}
	return h.cfg.Web.LoginRedirectURL
}

func (h *AuthHandlers) session(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		observability.FromContext(r.Context()).Error("No session attached to request; is the session middleware installed?")
		httputil.WriteInternalError(w)
		return nil, false
	}
	return sess, true
}

// writeAuthError maps backend failures to responses carrying the
// user-facing message
func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, auth.ErrAuthServiceFailure) || errors.Is(err, auth.ErrProjectsUnavailable) {
		status = http.StatusServiceUnavailable
	}

	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		httputil.WriteErrorMessage(w, status, authErr.Message)
		return
	}
	httputil.WriteErrorMessage(w, status, auth.ErrAuthServiceFailure.Message)
}
