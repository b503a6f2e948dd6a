package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/gomail.v2"
	_ "modernc.org/sqlite"

	"github.com/bharatgpt/identity-api/internal/auth"
	"github.com/bharatgpt/identity-api/internal/config"
	"github.com/bharatgpt/identity-api/internal/database"
	"github.com/bharatgpt/identity-api/internal/email"
	"github.com/bharatgpt/identity-api/internal/logging"
	"github.com/bharatgpt/identity-api/internal/metrics"
	"github.com/bharatgpt/identity-api/internal/otp"
	"github.com/bharatgpt/identity-api/internal/ratelimit"
	"github.com/bharatgpt/identity-api/internal/user"
)

type codeRecorder struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeRecorder) SendOTP(_ context.Context, to, purpose, code string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[purpose+":"+to] = code
	return nil
}

func (c *codeRecorder) code(purpose, to string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[purpose+":"+to]
}

type discardSender struct{}

func (discardSender) DialAndSend(...*gomail.Message) error { return nil }

type routerFixture struct {
	router http.Handler
	codes  *codeRecorder
}

func newRouterFixture(t *testing.T, env string, requestsPerMin int) *routerFixture {
	t.Helper()
	ctx := context.Background()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.CreateSchema(ctx, db))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	codes := &codeRecorder{codes: map[string]string{}}
	otps := otp.NewService(otp.NewRedisStore(client), codes, otp.DefaultConfig(), logging.Discard(), collector)

	tokens, err := auth.NewJWTService([]byte("router-test-secret"))
	require.NoError(t, err)

	svc := auth.NewService(
		user.NewRepository(db),
		auth.NewRedisRepository(client),
		otps,
		tokens,
		auth.NewPasswordHasher(bcrypt.MinCost),
		email.NewServiceWithSender(discardSender{}, "noreply@bharatgpt.ai", "http://localhost:3000"),
		logging.Discard(),
		collector,
		time.Hour,
		24*time.Hour,
	)

	cfg := &config.Config{Server: config.ServerConfig{
		Env:            env,
		TrustedOrigins: []string{"http://localhost:3000"},
	}}

	limiter := NewIPRateLimiter(requestsPerMin)
	t.Cleanup(limiter.Stop)

	router := NewRouter(cfg, RouterDeps{
		AuthHandler:    auth.NewHandler(svc, ratelimit.NewLimiter(client), nil, logging.Discard(), false, time.Hour, 24*time.Hour),
		AuthMiddleware: auth.NewMiddleware(auth.NewChainVerifier(tokens)),
		RateLimiter:    limiter,
		Metrics:        metrics.Handler(registry),
		Logger:         logging.Discard(),
	})

	return &routerFixture{router: router, codes: codes}
}

func (f *routerFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t, "prod", 0)

	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'none'", rec.Header().Get("Content-Security-Policy"))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestRouter_SwaggerOnlyInDevelopment(t *testing.T) {
	f := newRouterFixture(t, "prod", 0)
	rec := f.do(t, http.MethodGet, "/swagger/index.html", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f = newRouterFixture(t, "dev", 0)
	rec = f.do(t, http.MethodGet, "/swagger/index.html", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RegistrationThroughProfile(t *testing.T) {
	f := newRouterFixture(t, "prod", 0)
	const addr = "asha@example.com"

	rec := f.do(t, http.MethodPost, "/auth/otp/send", map[string]string{"email": addr, "purpose": "registration"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	code := f.codes.code("registration", addr)
	require.Len(t, code, 6)

	rec = f.do(t, http.MethodPost, "/auth/otp/verify", map[string]string{
		"email":    addr,
		"otp":      code,
		"purpose":  "registration",
		"name":     "Asha",
		"password": "correct-horse",
		"mobile":   "9876543210",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session auth.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	assert.Equal(t, "Registration successful", session.Message)

	bearer := map[string]string{"Authorization": "Bearer " + session.Token}

	rec = f.do(t, http.MethodGet, "/users/me", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me user.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, addr, me.Email)
	assert.Equal(t, "Asha", me.Name)

	rec = f.do(t, http.MethodPatch, "/users/me", map[string]string{"name": "Asha Rao"}, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "Asha Rao", me.Name)

	rec = f.do(t, http.MethodPost, "/auth/login", map[string]string{"email": addr, "password": "correct-horse"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouter_ProfileRequiresAuth(t *testing.T) {
	f := newRouterFixture(t, "prod", 0)

	rec := f.do(t, http.MethodGet, "/users/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/users/me", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_GoogleDisabled(t *testing.T) {
	f := newRouterFixture(t, "prod", 0)

	rec := f.do(t, http.MethodGet, "/auth/google/login", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_MetricsExposeFlowCounters(t *testing.T) {
	f := newRouterFixture(t, "prod", 0)

	rec := f.do(t, http.MethodPost, "/auth/otp/send", map[string]string{"email": "new@example.com", "purpose": "registration"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bharatgpt_otp_issued_total{purpose="registration"} 1`)
}

func TestRouter_GlobalRateLimit(t *testing.T) {
	f := newRouterFixture(t, "prod", 2)

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/auth/refresh", map[string]string{}, nil)
		assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/auth/refresh", map[string]string{}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	// health checks stay outside the limiter
	rec = f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newRouterFixture(t, "prod", 0)

	rec := f.do(t, http.MethodOptions, "/auth/login", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = f.do(t, http.MethodOptions, "/auth/login", nil, map[string]string{
		"Origin":                        "https://evil.example.com",
		"Access-Control-Request-Method": "POST",
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
