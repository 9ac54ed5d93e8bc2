package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/keystone-auth/pkg/httputil"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
)

// AuditEvent is a security audit record for an authentication action
type AuditEvent struct {
	Action       string    `json:"action"`
	Username     string    `json:"username,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	ProjectID    string    `json:"project_id,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditLogger writes audit events as structured log entries
type AuditLogger struct {
	logger  *observability.Logger
	proxies httputil.TrustedProxies
	now     func() time.Time
}

// NewAuditLogger creates an audit logger writing through logger
func NewAuditLogger(logger *observability.Logger) *AuditLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AuditLogger{
		logger: logger.WithComponent("audit"),
		now:    time.Now,
	}
}

// WithTrustedProxies makes recorded addresses honor forwarding headers
// from proxies
func (al *AuditLogger) WithTrustedProxies(proxies httputil.TrustedProxies) *AuditLogger {
	al.proxies = proxies
	return al
}

// LogEvent validates and records event
func (al *AuditLogger) LogEvent(event *AuditEvent) error {
	if event.Action == "" {
		return fmt.Errorf("action is required")
	}
	if event.Status == "" {
		return fmt.Errorf("status is required")
	}
	event.CreatedAt = al.now()

	entry := al.logger.WithFields(map[string]interface{}{
		"action":     event.Action,
		"status":     event.Status,
		"ip_address": event.IPAddress,
		"user_agent": event.UserAgent,
	})
	if event.Username != "" {
		entry = entry.WithField("username", event.Username)
	}
	if event.UserID != "" {
		entry = entry.WithField("user_id", event.UserID)
	}
	if event.ProjectID != "" {
		entry = entry.WithField("project_id", event.ProjectID)
	}
	if event.ErrorMessage != "" {
		entry = entry.WithField("error_message", event.ErrorMessage)
	}

	if event.Status == StatusSuccess {
		entry.Info("audit")
	} else {
		entry.Warn("audit")
	}
	return nil
}

// LogFromRequest records action for the client behind r. user may be nil.
func (al *AuditLogger) LogFromRequest(r *http.Request, action, status string, user *User, err error) error {
	event := &AuditEvent{
		Action:    action,
		IPAddress: al.proxies.ClientIP(r),
		UserAgent: r.UserAgent(),
		Status:    status,
	}
	if user != nil {
		event.Username = user.Username
		event.UserID = user.ID
		event.ProjectID = user.ProjectID
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return al.LogEvent(event)
}

// ClientIP returns the socket address of r. Use
// httputil.TrustedProxies.ClientIP to honor proxy headers.
func ClientIP(r *http.Request) string {
	return httputil.TrustedProxies(nil).ClientIP(r)
}

// Audit actions
const (
	ActionLogin          = "auth.login"
	ActionWebSSOLogin    = "auth.websso_login"
	ActionLogout         = "auth.logout"
	ActionProjectSwitch  = "auth.switch_project"
	ActionRegionSwitch   = "auth.switch_region"
	ActionLoginThrottled = "ratelimit.exceeded"
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)
