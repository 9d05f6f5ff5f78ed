package httputil

// Machine-readable error codes. Clients branch on these, never on messages.
const (
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeCooldownActive     = "COOLDOWN_ACTIVE"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"

	// validation
	CodeNameRequired       = "NAME_REQUIRED"
	CodeEmailRequired      = "EMAIL_REQUIRED"
	CodeInvalidEmailFormat = "INVALID_EMAIL_FORMAT"
	CodePasswordRequired   = "PASSWORD_REQUIRED"
	CodePasswordTooShort   = "PASSWORD_TOO_SHORT"
	CodePasswordMismatch   = "PASSWORD_MISMATCH"
	CodeInvalidPurpose     = "INVALID_PURPOSE"
	CodeCodeRequired       = "CODE_REQUIRED"

	// auth taxonomy
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	CodeConflict            = "CONFLICT"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeTokenInvalid        = "TOKEN_INVALID"
	CodeOtpNotFound         = "OTP_NOT_FOUND"
	CodeOtpPurposeMismatch  = "OTP_PURPOSE_MISMATCH"
	CodeSessionInvalid      = "SESSION_INVALID"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"

	// transport
	CodeMissingAuth          = "MISSING_AUTH"
	CodeInvalidAuthHeader    = "INVALID_AUTH_HEADER"
	CodeRefreshTokenRequired = "REFRESH_TOKEN_REQUIRED"
	CodeUserNotFound         = "USER_NOT_FOUND"
)
