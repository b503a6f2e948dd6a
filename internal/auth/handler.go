package auth

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bharatgpt/identity-api/internal/httputil"
	"github.com/bharatgpt/identity-api/internal/logging"
	"github.com/bharatgpt/identity-api/internal/otp"
	"github.com/bharatgpt/identity-api/internal/ratelimit"
	"github.com/bharatgpt/identity-api/internal/user"
)

// Per-IP limiter buckets
const (
	limitOTPSend       = "otp_send"
	limitOTPVerify     = "otp_verify"
	limitLogin         = "login"
	limitPasswordReset = "password_reset"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service         *Service
	rateLimiter     *ratelimit.Limiter
	oauth           OAuthProvider
	logger          *logging.Logger
	isProduction    bool
	accessDuration  time.Duration
	refreshDuration time.Duration
}

// NewHandler wires the auth endpoints. oauth may be nil when Google sign-in is not configured.
func NewHandler(service *Service, rateLimiter *ratelimit.Limiter, oauth OAuthProvider, logger *logging.Logger, isProduction bool, accessDuration, refreshDuration time.Duration) *Handler {
	return &Handler{
		service:         service,
		rateLimiter:     rateLimiter,
		oauth:           oauth,
		logger:          logger,
		isProduction:    isProduction,
		accessDuration:  accessDuration,
		refreshDuration: refreshDuration,
	}
}

// SendOTPRequest asks for a code
type SendOTPRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose" enums:"registration,login,password_reset"`
}

// SendOTPResponse confirms a code request; ExpiresIn is in seconds
type SendOTPResponse struct {
	Message   string `json:"message"`
	Email     string `json:"email"`
	ExpiresIn int64  `json:"expiresIn"`
}

// VerifyOTPRequest submits a code. Name, password and mobile are read for registration only.
type VerifyOTPRequest struct {
	Email    string `json:"email"`
	OTP      string `json:"otp"`
	Purpose  string `json:"purpose" enums:"registration,login,password_reset"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
	Mobile   string `json:"mobile,omitempty"`
}

// VerifyOTPResponse carries the password reset hand-off token
type VerifyOTPResponse struct {
	Message           string `json:"message"`
	VerificationToken string `json:"verificationToken"`
	ExpiresIn         int64  `json:"expiresIn"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password,omitempty"`
	LoginMethod string `json:"loginMethod,omitempty" enums:"password,otp"`
	OTP         string `json:"otp,omitempty"`
}

// ResetPasswordRequest completes a password reset
type ResetPasswordRequest struct {
	Email             string `json:"email"`
	NewPassword       string `json:"newPassword"`
	VerificationToken string `json:"verificationToken"`
}

// RefreshRequest represents the token refresh request body
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse is returned whenever a session is issued. Token fields are
// omitted when they were set as cookies instead.
type AuthResponse struct {
	Message      string     `json:"message,omitempty"`
	User         *user.User `json:"user"`
	Token        string     `json:"token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	ExpiresIn    int64      `json:"expires_in,omitempty"`
}

// SendOTP handles code requests
// @Summary      Request a one-time code
// @Description  Send a 6-digit code for registration, login or password reset. Login and password reset answer unknown emails neutrally.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body SendOTPRequest true "Email and purpose"
// @Success      200 {object} SendOTPResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error or email already registered"
// @Failure      429 {object} httputil.ErrorResponse "Code requested too recently"
// @Failure      500 {object} httputil.ErrorResponse "Delivery failed"
// @Router       /auth/otp/send [post]
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req SendOTPRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid send otp request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if !h.allow(w, r, limitOTPSend) {
		return
	}

	logger = logger.WithFields(map[string]any{"purpose": req.Purpose})

	result, err := h.service.RequestOTP(r.Context(), req.Email, req.Purpose)
	if err != nil {
		h.respondServiceError(w, logger, "send otp", err)
		return
	}

	message := "OTP sent to your email"
	if result.Purpose != otp.PurposeRegistration {
		// Same answer whether or not the account exists
		message = "If this email exists, an OTP has been sent"
	}

	logger.Info("otp request handled", "delivered", result.Delivered)

	respondJSON(w, SendOTPResponse{
		Message:   message,
		Email:     result.Email,
		ExpiresIn: int64(result.ExpiresIn.Seconds()),
	}, http.StatusOK)
}

// VerifyOTP handles code submission
// @Summary      Verify a one-time code
// @Description  Registration codes create the account and sign in. Login codes sign in. Password reset codes return a verificationToken valid for 15 minutes.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body VerifyOTPRequest true "Code and, for registration, account details"
// @Success      200 {object} AuthResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Invalid or expired code"
// @Failure      429 {object} httputil.ErrorResponse "Too many failed attempts"
// @Router       /auth/otp/verify [post]
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req VerifyOTPRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid verify otp request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if !h.allow(w, r, limitOTPVerify) {
		return
	}

	logger = logger.WithFields(map[string]any{"purpose": req.Purpose})

	result, err := h.service.VerifyOTP(r.Context(), VerifyOTPInput{
		Email:    req.Email,
		Code:     strings.TrimSpace(req.OTP),
		Purpose:  req.Purpose,
		Name:     req.Name,
		Password: req.Password,
		Mobile:   req.Mobile,
	})
	if err != nil {
		h.respondServiceError(w, logger, "verify otp", err)
		return
	}

	if result.Session == nil {
		logger.Info("password reset code verified")
		respondJSON(w, VerifyOTPResponse{
			Message:           "OTP verified",
			VerificationToken: result.VerificationToken,
			ExpiresIn:         int64(time.Until(result.TokenExpiresAt).Round(time.Second).Seconds()),
		}, http.StatusOK)
		return
	}

	message := "Login successful"
	if result.Purpose == otp.PurposeRegistration {
		message = "Registration successful"
	}

	logger.Info("otp verified", "user_id", result.Session.User.ID)
	h.respondSession(w, r, result.Session, message)
}

// Login handles password and OTP login
// @Summary      User login
// @Description  Authenticate with a password, or with loginMethod "otp" and a login code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} AuthResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if !h.allow(w, r, limitLogin) {
		return
	}

	var (
		session *Session
		err     error
	)
	switch strings.ToLower(req.LoginMethod) {
	case "", MethodPassword:
		session, err = h.service.Login(r.Context(), req.Email, req.Password)
	case MethodOTP:
		session, err = h.service.LoginWithOTP(r.Context(), req.Email, strings.TrimSpace(req.OTP))
	default:
		err = ErrInvalidLoginMethod
	}
	if err != nil {
		h.respondServiceError(w, logger, "login", err)
		return
	}

	logger.Info("user logged in successfully", "user_id", session.User.ID)
	h.respondSession(w, r, session, "Login successful")
}

// ResetPassword completes a password reset
// @Summary      Reset password
// @Description  Set a new password using the verificationToken returned by a verified password reset code
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResetPasswordRequest true "Email, new password and verification token"
// @Success      200 {object} map[string]string
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Invalid or expired verification token"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/password/reset [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if !h.allow(w, r, limitPasswordReset) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.NewPassword, strings.TrimSpace(req.VerificationToken)); err != nil {
		h.respondServiceError(w, logger, "reset password", err)
		return
	}

	logger.Info("password reset successfully")

	respondJSON(w, map[string]string{
		"message": "Password reset successful. You can now login with your new password.",
		"email":   user.NormalizeEmail(req.Email),
	}, http.StatusOK)
}

// Refresh handles access token refresh
// @Summary      Refresh access token
// @Description  Use a refresh token to get a new token pair. The old refresh token is revoked.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshRequest false "Refresh token, read from the cookie when omitted"
// @Success      200 {object} AuthTokens
// @Failure      400 {object} httputil.ErrorResponse "Refresh token missing"
// @Failure      401 {object} httputil.ErrorResponse "Invalid or expired refresh token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	refreshToken := readRefreshToken(r)
	if refreshToken == "" {
		logger.Warn("refresh token missing from both body and cookie")
		respondError(w, "refresh token required", httputil.CodeRefreshTokenRequired, http.StatusBadRequest)
		return
	}

	tokens, err := h.service.RefreshAccessToken(r.Context(), refreshToken)
	if err != nil {
		h.respondServiceError(w, logger, "refresh token", err)
		return
	}

	logger.Info("access token refreshed successfully")

	if ShouldUseCookies(r) {
		SetAuthCookies(w, tokens.AccessToken, tokens.RefreshToken, h.isProduction, h.accessDuration, h.refreshDuration)
		respondJSON(w, map[string]string{"message": "token refreshed successfully"}, http.StatusOK)
		return
	}

	respondJSON(w, tokens, http.StatusOK)
}

// Logout handles user logout
// @Summary      User logout
// @Description  Revoke the refresh token and clear auth cookies
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshRequest false "Optional refresh token"
// @Success      200 {object} map[string]string
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if refreshToken := readRefreshToken(r); refreshToken != "" {
		if err := h.service.RevokeRefreshToken(r.Context(), refreshToken); err != nil && !errors.Is(err, ErrRefreshTokenNotFound) && !errors.Is(err, ErrRefreshTokenRevoked) {
			logger.Warn("failed to revoke refresh token", "error", err)
		}
	}

	ClearAuthCookies(w)

	logger.Info("user logged out successfully")
	respondJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

// GoogleLogin starts the Google authorization code flow
// @Summary      Google sign-in
// @Description  Redirect to Google's consent screen
// @Tags         auth
// @Success      302
// @Failure      404 {object} httputil.ErrorResponse "Google sign-in not configured"
// @Router       /auth/google/login [get]
func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.oauth == nil {
		respondError(w, "google sign-in is not enabled", httputil.CodeOAuthDisabled, http.StatusNotFound)
		return
	}

	state, err := generateRandomToken()
	if err != nil {
		logger.Error("failed to generate oauth state", "error", err)
		respondError(w, "Something went wrong, please try again", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	setStateCookie(w, state, h.isProduction)
	http.Redirect(w, r, h.oauth.GetLoginURL(state), http.StatusFound)
}

// GoogleCallback finishes the Google authorization code flow
// @Summary      Google sign-in callback
// @Description  Exchange the authorization code, create or update the account and sign in
// @Tags         auth
// @Produce      json
// @Param        code  query string true "Authorization code"
// @Param        state query string true "State issued by /auth/google/login"
// @Success      200 {object} AuthResponse
// @Failure      400 {object} httputil.ErrorResponse "State mismatch"
// @Failure      401 {object} httputil.ErrorResponse "Provider rejected the sign-in"
// @Router       /auth/google/callback [get]
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.oauth == nil {
		respondError(w, "google sign-in is not enabled", httputil.CodeOAuthDisabled, http.StatusNotFound)
		return
	}

	query := r.URL.Query()
	expected, err := r.Cookie(oauthStateCookie)
	clearStateCookie(w)
	if err != nil || expected.Value == "" || subtle.ConstantTimeCompare([]byte(expected.Value), []byte(query.Get("state"))) != 1 {
		logger.Warn("oauth state mismatch")
		respondError(w, "invalid oauth state", httputil.CodeOAuthStateMismatch, http.StatusBadRequest)
		return
	}

	if providerErr := query.Get("error"); providerErr != "" {
		logger.Warn("oauth provider returned an error", "error", providerErr)
		respondError(w, "google sign-in was cancelled or failed", httputil.CodeOAuthFailed, http.StatusUnauthorized)
		return
	}

	code := query.Get("code")
	if code == "" {
		respondError(w, "authorization code is required", httputil.CodeOAuthFailed, http.StatusBadRequest)
		return
	}

	info, err := h.oauth.ExchangeCode(r.Context(), code)
	if err != nil {
		logger.Warn("oauth code exchange failed", "error", err)
		respondError(w, "google sign-in failed", httputil.CodeOAuthFailed, http.StatusUnauthorized)
		return
	}

	session, err := h.service.SignInWithOAuth(r.Context(), info)
	if err != nil {
		h.respondServiceError(w, logger, "oauth sign-in", err)
		return
	}

	logger.Info("user signed in with google", "user_id", session.User.ID, "created", session.Created)

	message := "Login successful"
	if session.Created {
		message = "Account created"
	}
	h.respondSession(w, r, session, message)
}

// allow applies the per-IP limit for bucket. Limiter failures let the request through.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, bucket string) bool {
	if h.rateLimiter == nil {
		return true
	}

	logger := logging.GetLoggerFromContext(r.Context())
	ip := getClientIP(r)

	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, bucket)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "bucket", bucket)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return false
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, bucket); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	return true
}

func (h *Handler) respondSession(w http.ResponseWriter, r *http.Request, session *Session, message string) {
	if ShouldUseCookies(r) {
		SetAuthCookies(w, session.Tokens.AccessToken, session.Tokens.RefreshToken, h.isProduction, h.accessDuration, h.refreshDuration)
		respondJSON(w, AuthResponse{Message: message, User: session.User}, http.StatusOK)
		return
	}

	respondJSON(w, AuthResponse{
		Message:      message,
		User:         session.User,
		Token:        session.Tokens.AccessToken,
		RefreshToken: session.Tokens.RefreshToken,
		TokenType:    session.Tokens.TokenType,
		ExpiresIn:    session.Tokens.ExpiresIn,
	}, http.StatusOK)
}

// respondServiceError maps service errors to status codes. Unknown errors are
// logged and reported as a generic 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, logger *logging.Logger, op string, err error) {
	var rateLimited *otp.RateLimitError

	switch {
	case errors.Is(err, ErrEmailRequired):
		respondError(w, err.Error(), httputil.CodeEmailRequired, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidEmailFormat):
		respondError(w, err.Error(), httputil.CodeInvalidEmailFormat, http.StatusBadRequest)
	case errors.Is(err, ErrNameRequired):
		respondError(w, err.Error(), httputil.CodeNameRequired, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidMobile):
		respondError(w, err.Error(), httputil.CodeInvalidMobile, http.StatusBadRequest)
	case errors.Is(err, ErrPasswordRequired):
		respondError(w, err.Error(), httputil.CodePasswordRequired, http.StatusBadRequest)
	case errors.Is(err, ErrPasswordTooShort):
		respondError(w, err.Error(), httputil.CodePasswordTooShort, http.StatusBadRequest)
	case errors.Is(err, ErrPasswordTooLong):
		respondError(w, err.Error(), httputil.CodePasswordTooLong, http.StatusBadRequest)
	case errors.Is(err, ErrOTPRequired):
		respondError(w, err.Error(), httputil.CodeOTPRequired, http.StatusBadRequest)
	case errors.Is(err, otp.ErrInvalidPurpose):
		respondError(w, err.Error(), httputil.CodeInvalidPurpose, http.StatusBadRequest)
	case errors.Is(err, ErrEmailAlreadyRegistered):
		respondError(w, "Email already registered", httputil.CodeEmailAlreadyExists, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidLoginMethod):
		respondError(w, err.Error(), httputil.CodeInvalidLoginMethod, http.StatusBadRequest)

	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(rateLimited.RetryAfter.Round(time.Second).Seconds())))
		respondError(w, otp.ErrRateLimited.Error(), httputil.CodeCooldownActive, http.StatusTooManyRequests)
	case errors.Is(err, otp.ErrTooManyAttempts):
		respondError(w, err.Error(), httputil.CodeOTPAttemptsExceeded, http.StatusTooManyRequests)

	case errors.Is(err, otp.ErrInvalidCode):
		respondError(w, "Invalid or expired OTP", httputil.CodeInvalidOTP, http.StatusUnauthorized)
	case errors.Is(err, otp.ErrInvalidVerificationToken):
		respondError(w, "Invalid or expired verification token", httputil.CodeInvalidResetToken, http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidCredentials):
		respondError(w, "Invalid email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrRefreshTokenRevoked), errors.Is(err, ErrRefreshTokenExpired):
		respondError(w, "invalid or expired refresh token", httputil.CodeInvalidRefreshToken, http.StatusUnauthorized)

	case errors.Is(err, ErrUserNotFound):
		respondError(w, "User not found", httputil.CodeUserNotFound, http.StatusNotFound)

	case errors.Is(err, otp.ErrDeliveryFailed):
		logger.Error(op+" failed: otp delivery", "error", err.Error())
		respondError(w, "Failed to send OTP, please try again", httputil.CodeOTPDeliveryFailed, http.StatusInternalServerError)
		return
	default:
		logger.Error(op+" failed: internal error", "error", err.Error())
		respondError(w, "Something went wrong, please try again", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Warn(op+" rejected", "error", err.Error())
}

func readRefreshToken(r *http.Request) string {
	var req RefreshRequest
	if err := httputil.DecodeJSON(r, &req); err == nil && req.RefreshToken != "" {
		return strings.TrimSpace(req.RefreshToken)
	}

	token, err := GetRefreshTokenFromCookie(r)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(token)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}

// getClientIP returns the request's remote IP. chi's RealIP middleware has
// already replaced RemoteAddr with the forwarded address when one was sent.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
