package auth

// AuthError is a login or session failure carrying a message that is safe
// to show to the user. errors.Is matches AuthErrors by message, so the
// package-level values below work as sentinels.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Message == e.Message
}

var (
	ErrInvalidCredentials   = &AuthError{Message: "Invalid user name or password."}
	ErrAuthServiceFailure   = &AuthError{Message: "An error occurred authenticating. Please try again later."}
	ErrTokenExpired         = &AuthError{Message: "The authentication token issued by the Identity service has expired."}
	ErrProjectsUnavailable  = &AuthError{Message: "Unable to retrieve authorized projects."}
	ErrNoProjects           = &AuthError{Message: "You are not authorized for any projects."}
	ErrNoProjectAuthorized  = &AuthError{Message: "Unable to authenticate to any available projects."}
	ErrProjectSwitchFailure = &AuthError{Message: "Project switch failed."}
)

func wrapAuthError(base *AuthError, cause error) *AuthError {
	return &AuthError{Message: base.Message, Err: cause}
}
