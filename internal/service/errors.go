package service

// Error is the typed failure the service layer returns for anything that
// isn't already a repository.Error or an auth.AuthError: permission denials,
// domain-rule violations (transfer-ownership by a non-owner, deleting
// @everyone), and malformed requests the repository never sees. The API
// layer and the gateway map Status straight to a response without
// inspecting the message.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string { return e.Message }

// Forbidden builds a 403 service Error.
func Forbidden(code, message string) error {
	return &Error{Code: code, Message: message, Status: 403}
}

// BadRequest builds a 400 service Error.
func BadRequest(code, message string) error {
	return &Error{Code: code, Message: message, Status: 400}
}

// Conflict builds a 409 service Error.
func Conflict(code, message string) error {
	return &Error{Code: code, Message: message, Status: 409}
}

// NotFound builds a 404 service Error, used where the repository taxonomy
// doesn't apply (e.g. a referenced message resolved but not in this channel).
func NotFound(code, message string) error {
	return &Error{Code: code, Message: message, Status: 404}
}

// Unauthorized builds a 401 service Error, used for login failures that
// never reach the token service (bad email, bad password).
func Unauthorized(code, message string) error {
	return &Error{Code: code, Message: message, Status: 401}
}

// ErrMissingPermissions is returned by requirePermission; handlers can
// errors.As against *Error to recover Code/Status instead of matching this
// value directly.
var ErrMissingPermissions = Forbidden("MISSING_PERMISSIONS", "you do not have permission to perform this action")
