package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-hris/pkg/account"
	"github.com/tendant/simple-hris/pkg/client"
	"github.com/tendant/simple-hris/pkg/device"
	"github.com/tendant/simple-hris/pkg/loginflow"
	"github.com/tendant/simple-hris/pkg/pin"
	"github.com/tendant/simple-hris/pkg/session"
	"github.com/tendant/simple-hris/pkg/trust"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword    = "correct-horse"
	testPin         = "111222"
	testFingerprint = "fp-front-desk"
)

type manualScheduler struct {
	mu    sync.Mutex
	funcs []func()
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs = append(s.funcs, f)
}

func (s *manualScheduler) fire() {
	s.mu.Lock()
	funcs := s.funcs
	s.funcs = nil
	s.mu.Unlock()
	for _, f := range funcs {
		f()
	}
}

type apiFixture struct {
	router    http.Handler
	accounts  *account.AccountService
	devices   *device.DeviceService
	pins      *pin.PinService
	scheduler *manualScheduler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		accounts: account.NewAccountService(account.NewInMemAccountRepository(),
			account.WithPasswordHasher(&account.BcryptHasher{Cost: bcrypt.MinCost})),
		devices: device.NewDeviceService(device.NewInMemDeviceRepository()),
		pins: pin.NewPinService(pin.NewInMemPinRepository(),
			pin.WithHasher(pin.NewArgon2HasherWithParams(1024, 1, 1))),
		scheduler: &manualScheduler{},
	}

	cookies := trust.NewCookieWriter(true, false)
	manager, err := session.NewManager(session.Config{Secret: "test-secret", Issuer: "hris-test"}, nil,
		session.WithCookieWriter(cookies))
	require.NoError(t, err)
	verifications := trust.NewMemoryVerificationCache(time.Hour)

	service := loginflow.NewService(loginflow.Dependencies{
		Accounts:      f.accounts,
		Devices:       f.devices,
		Pins:          f.pins,
		Sessions:      manager,
		Verifications: verifications,
	}, loginflow.DefaultConfig(), loginflow.WithScheduler(f.scheduler))
	h := NewLoginFlowHandler(service, loginflow.NewRegistry(0), manager,
		WithCookieWriter(cookies), WithVerificationCache(verifications))

	r := chi.NewRouter()
	r.Use(manager.Authenticator)
	r.Mount("/api/auth", Handler(h))
	r.With(trust.Guard(f.devices, verifications)).Get("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	f.router = r
	return f
}

func (f *apiFixture) createAccount(t *testing.T, withPin bool) account.Account {
	t.Helper()
	acc, err := f.accounts.CreateAccount(context.Background(), account.NewAccount{
		Email:    "jamie@example.com",
		Password: testPassword,
		Roles:    []string{"employee"},
	})
	require.NoError(t, err)
	if withPin {
		require.NoError(t, f.pins.CreatePin(context.Background(), acc.ID, testPin))
	}
	return acc
}

// browser keeps cookies between requests.
type browser struct {
	f       *apiFixture
	cookies map[string]string
}

func (f *apiFixture) browser() *browser {
	return &browser{f: f, cookies: make(map[string]string)}
}

func (b *browser) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Device-Fingerprint", testFingerprint)
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	rr := httptest.NewRecorder()
	b.f.router.ServeHTTP(rr, req)

	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c.Value
	}
	return rr
}

func decodeFlow(t *testing.T, rr *httptest.ResponseRecorder) FlowResponse {
	t.Helper()
	var resp FlowResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func TestLoginWithPin(t *testing.T) {
	f := newAPIFixture(t)
	f.createAccount(t, true)
	b := f.browser()

	rr := b.do(http.MethodGet, "/dashboard", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = b.do(http.MethodPost, "/api/auth/login", `{"email":"jamie@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeFlow(t, rr)
	assert.Equal(t, loginflow.StatePinVerify, resp.State)
	assert.Equal(t, 3, resp.Remaining)
	assert.Contains(t, b.cookies, FlowCookieName)
	assert.Equal(t, testFingerprint, b.cookies[trust.DeviceMarker])

	rr = b.do(http.MethodPost, "/api/auth/pin/verify", `{"pin":"111222"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp = decodeFlow(t, rr)
	assert.Equal(t, loginflow.StateComplete, resp.State)
	assert.Equal(t, "/dashboard", resp.Redirect)
	assert.Contains(t, b.cookies, client.ACCESS_TOKEN_NAME)
	assert.Equal(t, "true", b.cookies[trust.PinVerifiedMarker])

	rr = b.do(http.MethodGet, "/dashboard", "")
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = b.do(http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, rr.Code)
	resp = decodeFlow(t, rr)
	assert.True(t, resp.SignedOut)
	assert.Equal(t, "/login", resp.Redirect)
	assert.NotContains(t, b.cookies, client.ACCESS_TOKEN_NAME)
	assert.NotContains(t, b.cookies, trust.PinVerifiedMarker)
}

func TestRevokedSessionCannotReachDashboard(t *testing.T) {
	f := newAPIFixture(t)
	f.createAccount(t, true)
	b := f.browser()

	b.do(http.MethodPost, "/api/auth/login", `{"email":"jamie@example.com","password":"correct-horse"}`)
	b.do(http.MethodPost, "/api/auth/pin/verify", `{"pin":"111222"}`)
	token := b.cookies[client.ACCESS_TOKEN_NAME]
	marker := b.cookies[trust.PinVerifiedMarker]
	require.NotEmpty(t, token)

	b.do(http.MethodPost, "/api/auth/logout", "")

	// replaying the old cookies after logout
	b.cookies[client.ACCESS_TOKEN_NAME] = token
	b.cookies[trust.PinVerifiedMarker] = marker
	rr := b.do(http.MethodGet, "/dashboard", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLockoutOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.createAccount(t, true)
	b := f.browser()

	b.do(http.MethodPost, "/api/auth/login", `{"email":"jamie@example.com","password":"correct-horse"}`)

	rr := b.do(http.MethodPost, "/api/auth/pin/verify", `{"pin":"000001"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decodeFlow(t, rr).Remaining)
	b.do(http.MethodPost, "/api/auth/pin/verify", `{"pin":"000002"}`)

	rr = b.do(http.MethodPost, "/api/auth/pin/verify", `{"pin":"000003"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	resp := decodeFlow(t, rr)
	assert.Equal(t, loginflow.StateBlocked, resp.State)
	assert.Equal(t, loginflow.ErrorKindBlocking, resp.ErrorKind)

	blocked, err := f.devices.IsBlocked(context.Background(), testFingerprint)
	require.NoError(t, err)
	assert.True(t, blocked)

	rr = b.do(http.MethodPost, "/api/auth/pin/verify", `{"pin":"111222"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = b.do(http.MethodGet, "/api/auth/state", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decodeFlow(t, rr).SignedOut)

	f.scheduler.fire()

	rr = b.do(http.MethodGet, "/api/auth/state", "")
	require.Equal(t, http.StatusOK, rr.Code)
	resp = decodeFlow(t, rr)
	assert.True(t, resp.SignedOut)
	assert.Equal(t, "/login", resp.Redirect)
	assert.NotContains(t, b.cookies, FlowCookieName)

	rr = b.do(http.MethodGet, "/api/auth/state", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// a new login from the blocked device is refused
	rr = b.do(http.MethodPost, "/api/auth/login", `{"email":"jamie@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, loginflow.StateIdle, decodeFlow(t, rr).State)
}

func TestPinSetupOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	acc := f.createAccount(t, false)
	b := f.browser()

	rr := b.do(http.MethodPost, "/api/auth/login", `{"email":"jamie@example.com","password":"correct-horse"}`)
	resp := decodeFlow(t, rr)
	require.Equal(t, loginflow.StatePinSetup, resp.State)
	assert.Equal(t, loginflow.SetupEntry, resp.SetupStep)

	rr = b.do(http.MethodPost, "/api/auth/pin/setup", `{"pin":"482916"}`)
	assert.Equal(t, loginflow.SetupConfirm, decodeFlow(t, rr).SetupStep)

	rr = b.do(http.MethodPost, "/api/auth/pin/back", "")
	assert.Equal(t, loginflow.SetupEntry, decodeFlow(t, rr).SetupStep)

	b.do(http.MethodPost, "/api/auth/pin/setup", `{"pin":"482916"}`)
	rr = b.do(http.MethodPost, "/api/auth/pin/confirm", `{"pin":"482916"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, loginflow.StateComplete, decodeFlow(t, rr).State)

	hasPin, err := f.pins.HasPin(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.True(t, hasPin)
}

func TestRequestsWithoutFlow(t *testing.T) {
	f := newAPIFixture(t)
	b := f.browser()

	rr := b.do(http.MethodPost, "/api/auth/pin/verify", `{"pin":"111222"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = b.do(http.MethodPost, "/api/auth/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = b.do(http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeFlow(t, rr).SignedOut)
}

func TestInvalidCredentialsOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.createAccount(t, true)
	b := f.browser()

	rr := b.do(http.MethodPost, "/api/auth/login", `{"email":"jamie@example.com","password":"wrong-password"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeFlow(t, rr)
	assert.Equal(t, loginflow.StateIdle, resp.State)
	assert.Equal(t, loginflow.ErrorKindInline, resp.ErrorKind)

	rr = b.do(http.MethodPost, "/api/auth/pin/verify", `{"pin":"111222"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}
