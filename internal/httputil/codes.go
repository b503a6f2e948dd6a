package httputil

// Machine-readable error codes returned alongside error messages
const (
	CodeInternalError      = "INTERNAL_ERROR"
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeCooldownActive     = "COOLDOWN_ACTIVE"

	CodeEmailRequired      = "EMAIL_REQUIRED"
	CodeInvalidEmailFormat = "INVALID_EMAIL_FORMAT"
	CodePasswordRequired   = "PASSWORD_REQUIRED"
	CodePasswordTooShort   = "PASSWORD_TOO_SHORT"
	CodePasswordTooLong    = "PASSWORD_TOO_LONG"
	CodeNameRequired       = "NAME_REQUIRED"
	CodeInvalidMobile      = "INVALID_MOBILE"
	CodeEmailAlreadyExists = "EMAIL_ALREADY_EXISTS"

	CodeInvalidPurpose      = "INVALID_PURPOSE"
	CodeOTPRequired         = "OTP_REQUIRED"
	CodeInvalidOTP          = "INVALID_OTP"
	CodeOTPAttemptsExceeded = "OTP_ATTEMPTS_EXCEEDED"
	CodeOTPDeliveryFailed   = "OTP_DELIVERY_FAILED"
	CodeInvalidResetToken   = "INVALID_RESET_TOKEN"
	CodeUserNotFound        = "USER_NOT_FOUND"

	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeInvalidLoginMethod   = "INVALID_LOGIN_METHOD"
	CodeRefreshTokenRequired = "REFRESH_TOKEN_REQUIRED"
	CodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"

	CodeMissingAuth        = "MISSING_AUTH"
	CodeInvalidAuthHeader  = "INVALID_AUTH_HEADER"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidTokenUserID = "INVALID_TOKEN_USER_ID"

	CodeOAuthDisabled      = "OAUTH_DISABLED"
	CodeOAuthStateMismatch = "OAUTH_STATE_MISMATCH"
	CodeOAuthFailed        = "OAUTH_FAILED"
)
