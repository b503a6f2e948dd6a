package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bharatgpt/identity-api/internal/httputil"
	"github.com/bharatgpt/identity-api/internal/logging"
	"github.com/bharatgpt/identity-api/internal/otp"
	"github.com/bharatgpt/identity-api/internal/ratelimit"
)

type fakeOAuth struct {
	info *OAuthUserInfo
	err  error
}

func (p *fakeOAuth) GetLoginURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (p *fakeOAuth) ExchangeCode(_ context.Context, code string) (*OAuthUserInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.info, nil
}

type handlerFixture struct {
	*authFixture
	handler *Handler
	oauth   *fakeOAuth
}

func newHandlerFixture(t *testing.T, ipLimit int) *handlerFixture {
	t.Helper()
	f := newAuthFixture(t)
	oauth := &fakeOAuth{}
	limiter := ratelimit.NewLimiterWithWindow(f.client, ipLimit, time.Minute)
	h := NewHandler(f.svc, limiter, oauth, logging.Discard(), false, time.Hour, 24*time.Hour)
	return &handlerFixture{authFixture: f, handler: h, oauth: oauth}
}

func doJSON(t *testing.T, handler http.HandlerFunc, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:51000"
	for _, m := range mutate {
		m(req)
	}

	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func otpKeys(mr *miniredis.Miniredis) []string {
	var keys []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "otp:") {
			keys = append(keys, k)
		}
	}
	return keys
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandler_SendOTPCooldown(t *testing.T) {
	f := newHandlerFixture(t, 100)
	body := SendOTPRequest{Email: "user@example.in", Purpose: "registration"}

	rec := doJSON(t, f.handler.SendOTP, body)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[SendOTPResponse](t, rec)
	assert.Equal(t, "user@example.in", resp.Email)
	assert.Equal(t, int64(300), resp.ExpiresIn)

	rec = doJSON(t, f.handler.SendOTP, body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httputil.CodeCooldownActive, decodeBody[httputil.ErrorResponse](t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHandler_SendOTPValidation(t *testing.T) {
	f := newHandlerFixture(t, 100)

	rec := doJSON(t, f.handler.SendOTP, SendOTPRequest{Email: "user@example.in", Purpose: "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidPurpose, decodeBody[httputil.ErrorResponse](t, rec).Code)

	f.seedUser(t, "taken@example.in", "password-1")
	rec = doJSON(t, f.handler.SendOTP, SendOTPRequest{Email: "taken@example.in", Purpose: "registration"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeEmailAlreadyExists, decodeBody[httputil.ErrorResponse](t, rec).Code)
}

func TestHandler_SendOTPDeliveryFailure(t *testing.T) {
	f := newHandlerFixture(t, 100)
	f.codes.err = errors.New("smtp down")

	rec := doJSON(t, f.handler.SendOTP, SendOTPRequest{Email: "user@example.in", Purpose: "registration"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, httputil.CodeOTPDeliveryFailed, decodeBody[httputil.ErrorResponse](t, rec).Code)
	assert.Empty(t, otpKeys(f.redis))
}

func TestHandler_ResetForUnknownEmailIsNeutral(t *testing.T) {
	f := newHandlerFixture(t, 100)

	rec := doJSON(t, f.handler.SendOTP, SendOTPRequest{Email: "ghost@example.in", Purpose: "password_reset"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody[SendOTPResponse](t, rec).Message, "If this email exists")
	assert.Empty(t, otpKeys(f.redis))
}

func TestHandler_VerifyWrongCode(t *testing.T) {
	f := newHandlerFixture(t, 100)
	f.seedUser(t, "user@example.in", "password-1")

	rec := doJSON(t, f.handler.SendOTP, SendOTPRequest{Email: "user@example.in", Purpose: "login"})
	require.Equal(t, http.StatusOK, rec.Code)
	code := f.codes.code(t, "user@example.in", otp.PurposeLogin)

	wrong := "123456"
	if code == wrong {
		wrong = "654321"
	}
	rec = doJSON(t, f.handler.VerifyOTP, VerifyOTPRequest{Email: "user@example.in", OTP: wrong, Purpose: "login"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httputil.CodeInvalidOTP, decodeBody[httputil.ErrorResponse](t, rec).Code)

	rec = doJSON(t, f.handler.VerifyOTP, VerifyOTPRequest{Email: "user@example.in", OTP: code, Purpose: "login"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[AuthResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "user@example.in", resp.User.Email)
}

func TestHandler_PasswordResetOverHTTP(t *testing.T) {
	f := newHandlerFixture(t, 100)
	f.seedUser(t, "reset@example.in", "old-password")

	rec := doJSON(t, f.handler.SendOTP, SendOTPRequest{Email: "reset@example.in", Purpose: "password_reset"})
	require.Equal(t, http.StatusOK, rec.Code)
	code := f.codes.code(t, "reset@example.in", otp.PurposePasswordReset)

	rec = doJSON(t, f.handler.VerifyOTP, VerifyOTPRequest{Email: "reset@example.in", OTP: code, Purpose: "password_reset"})
	require.Equal(t, http.StatusOK, rec.Code)
	verified := decodeBody[VerifyOTPResponse](t, rec)
	require.NotEmpty(t, verified.VerificationToken)
	assert.InDelta(t, 900, verified.ExpiresIn, 2)

	reset := ResetPasswordRequest{Email: "reset@example.in", NewPassword: "new-password", VerificationToken: verified.VerificationToken}
	rec = doJSON(t, f.handler.ResetPassword, reset)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, f.handler.ResetPassword, reset)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httputil.CodeInvalidResetToken, decodeBody[httputil.ErrorResponse](t, rec).Code)

	rec = doJSON(t, f.handler.Login, LoginRequest{Email: "reset@example.in", Password: "new-password"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_Login(t *testing.T) {
	f := newHandlerFixture(t, 100)
	f.seedUser(t, "login@example.in", "password-1")

	rec := doJSON(t, f.handler.Login, LoginRequest{Email: "login@example.in", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httputil.CodeInvalidCredentials, decodeBody[httputil.ErrorResponse](t, rec).Code)

	rec = doJSON(t, f.handler.Login, LoginRequest{Email: "login@example.in", LoginMethod: "magic"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidLoginMethod, decodeBody[httputil.ErrorResponse](t, rec).Code)

	rec = doJSON(t, f.handler.Login, LoginRequest{Email: "login@example.in", Password: "password-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[AuthResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
}

func TestHandler_LoginSetsCookiesForBrowsers(t *testing.T) {
	f := newHandlerFixture(t, 100)
	f.seedUser(t, "browser@example.in", "password-1")

	rec := doJSON(t, f.handler.Login, LoginRequest{Email: "browser@example.in", Password: "password-1"}, func(r *http.Request) {
		r.Header.Set("Origin", "http://localhost:3000")
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[AuthResponse](t, rec)
	assert.Empty(t, resp.Token)

	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = c.HttpOnly
	}
	assert.True(t, names[accessTokenCookie])
	assert.True(t, names[refreshTokenCookie])
}

func TestHandler_IPRateLimit(t *testing.T) {
	f := newHandlerFixture(t, 2)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, f.handler.Login, LoginRequest{Email: "x@example.in", Password: "whatever1"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := doJSON(t, f.handler.Login, LoginRequest{Email: "x@example.in", Password: "whatever1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httputil.CodeTooManyRequests, decodeBody[httputil.ErrorResponse](t, rec).Code)

	// Other buckets are unaffected
	rec = doJSON(t, f.handler.SendOTP, SendOTPRequest{Email: "x@example.in", Purpose: "login"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_RefreshAndLogout(t *testing.T) {
	f := newHandlerFixture(t, 100)
	f.seedUser(t, "refresh@example.in", "password-1")

	rec := doJSON(t, f.handler.Login, LoginRequest{Email: "refresh@example.in", Password: "password-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decodeBody[AuthResponse](t, rec)

	rec = doJSON(t, f.handler.Refresh, RefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	tokens := decodeBody[AuthTokens](t, rec)
	assert.NotEqual(t, login.RefreshToken, tokens.RefreshToken)

	rec = doJSON(t, f.handler.Refresh, RefreshRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, f.handler.Refresh, RefreshRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, f.handler.Logout, RefreshRequest{RefreshToken: tokens.RefreshToken})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, f.handler.Refresh, RefreshRequest{RefreshToken: tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_ProfileBehindMiddleware(t *testing.T) {
	f := newHandlerFixture(t, 100)
	seeded := f.seedUser(t, "me@example.in", "password-1")

	token, err := f.tokens.CreateToken(seeded.ID, seeded.Email, time.Hour)
	require.NoError(t, err)

	mw := NewMiddleware(NewChainVerifier(f.tokens))
	protected := mw.RequireAuth(http.HandlerFunc(f.handler.GetProfile))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httputil.CodeMissingAuth, decodeBody[httputil.ErrorResponse](t, rec).Code)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Token abc")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, httputil.CodeInvalidAuthHeader, decodeBody[httputil.ErrorResponse](t, rec).Code)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"me@example.in"`)
	assert.NotContains(t, rec.Body.String(), "password")

	update := mw.RequireAuth(http.HandlerFunc(f.handler.UpdateProfile))
	req = httptest.NewRequest(http.MethodPatch, "/users/me", bytes.NewBufferString(`{"name":"Renamed"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	update.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Renamed"`)
}

func TestHandler_GoogleFlow(t *testing.T) {
	f := newHandlerFixture(t, 100)
	f.oauth.info = &OAuthUserInfo{ProviderUserID: "g-1", Email: "g@example.in", EmailVerified: true, Name: "G"}

	rec := httptest.NewRecorder()
	f.handler.GoogleLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == oauthStateCookie {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.Contains(t, rec.Header().Get("Location"), "state="+state.Value)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state=forged", nil)
	req.AddCookie(state)
	rec = httptest.NewRecorder()
	f.handler.GoogleCallback(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeOAuthStateMismatch, decodeBody[httputil.ErrorResponse](t, rec).Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+state.Value, nil)
	req.AddCookie(state)
	rec = httptest.NewRecorder()
	f.handler.GoogleCallback(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[AuthResponse](t, rec)
	assert.Equal(t, "Account created", resp.Message)
	assert.Equal(t, "g@example.in", resp.User.Email)
}

func TestHandler_GoogleDisabled(t *testing.T) {
	f := newAuthFixture(t)
	h := NewHandler(f.svc, nil, nil, logging.Discard(), false, time.Hour, time.Hour)

	rec := httptest.NewRecorder()
	h.GoogleLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, httputil.CodeOAuthDisabled, decodeBody[httputil.ErrorResponse](t, rec).Code)
}

func TestHandler_OverlongPasswordIsBadRequest(t *testing.T) {
	f := newHandlerFixture(t, 100)
	overlong := strings.Repeat("x", 73)

	rec := doJSON(t, f.handler.SendOTP, SendOTPRequest{Email: "new@example.in", Purpose: "registration"})
	require.Equal(t, http.StatusOK, rec.Code)
	code := f.codes.code(t, "new@example.in", otp.PurposeRegistration)

	verify := VerifyOTPRequest{Email: "new@example.in", OTP: code, Purpose: "registration", Name: "New", Password: overlong}
	rec = doJSON(t, f.handler.VerifyOTP, verify)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodePasswordTooLong, decodeBody[httputil.ErrorResponse](t, rec).Code)

	verify.Password = "seventy-two-is-plenty"
	rec = doJSON(t, f.handler.VerifyOTP, verify)
	assert.Equal(t, http.StatusOK, rec.Code)
}
