package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizdesk/pkg/approval"
	"bizdesk/pkg/auth"
	"bizdesk/pkg/catalog"
	"bizdesk/pkg/model"
	"bizdesk/pkg/opportunity"
	"bizdesk/pkg/store"
)

type testEnv struct {
	t       *testing.T
	srv     *Server
	handler http.Handler
	admin   tokenResponse
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newEmptyEnv(t)
	code := env.do(http.MethodPost, "/api/v1/auth/register", "", authRequest{Username: "root", Password: "pw"}, &env.admin)
	require.Equal(t, http.StatusOK, code)
	return env
}

// newEmptyEnv has no users yet.
func newEmptyEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()
	st := store.NewMemory()
	hub := NewHub(log)
	svc := approval.NewService(st, hub, log)
	srv := NewServer(st, svc, catalog.NewHolder(opportunity.DefaultCatalog()), auth.NewIssuer("test-secret", time.Hour), hub, log)
	srv.BootToken = "boot"
	return &testEnv{t: t, srv: srv, handler: srv.Handler()}
}

// do sends body as JSON and decodes the response into out when non-nil.
func (e *testEnv) do(method, path, token string, body, out interface{}) int {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

// user creates an account through the admin endpoint and logs it in.
func (e *testEnv) user(name string) tokenResponse {
	e.t.Helper()
	req := authRequest{Username: name, Password: name + "-pw", DisplayName: name}
	require.Equal(e.t, http.StatusCreated, e.do(http.MethodPost, "/api/v1/users", e.admin.Token, req, nil))
	var tok tokenResponse
	require.Equal(e.t, http.StatusOK, e.do(http.MethodPost, "/api/v1/auth/login", "", authRequest{Username: name, Password: name + "-pw"}, &tok))
	return tok
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "bizdesk", body["service"])
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestPanicRecovered(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/explode", nil)
	req.Header.Set(requestIDHeader, "req-7")
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(rec, req) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-7", rec.Header().Get(requestIDHeader))

	// the server keeps serving afterwards
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "", nil, nil))
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)
	assert.True(t, env.admin.User.IsAdmin)
	assert.NotEmpty(t, env.admin.Token)

	t.Run("registration closes after first user", func(t *testing.T) {
		code := env.do(http.MethodPost, "/api/v1/auth/register", "", authRequest{Username: "eve", Password: "x"}, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("bad credentials", func(t *testing.T) {
		var body errorBody
		code := env.do(http.MethodPost, "/api/v1/auth/login", "", authRequest{Username: "root", Password: "nope"}, &body)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "invalid credentials", body.Error)
		code = env.do(http.MethodPost, "/api/v1/auth/login", "", authRequest{Username: "ghost", Password: "pw"}, nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("missing fields", func(t *testing.T) {
		code := env.do(http.MethodPost, "/api/v1/auth/login", "", authRequest{Username: "root"}, nil)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("token required", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/v1/me", "", nil, nil))
		assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/v1/me", "garbage", nil, nil))
	})

	t.Run("me", func(t *testing.T) {
		var me actorView
		require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/me", env.admin.Token, nil, &me))
		assert.Equal(t, env.admin.User.ID, me.ID)
		assert.True(t, me.Admin)
	})

	t.Run("boot token is admin", func(t *testing.T) {
		var me actorView
		require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/me", "boot", nil, &me))
		assert.Equal(t, "system", me.ID)
		assert.True(t, me.Admin)
	})

	t.Run("only admins create users", func(t *testing.T) {
		bob := env.user("bob")
		assert.False(t, bob.User.IsAdmin)
		code := env.do(http.MethodPost, "/api/v1/users", bob.Token, authRequest{Username: "x", Password: "y"}, nil)
		assert.Equal(t, http.StatusForbidden, code)
		code = env.do(http.MethodPost, "/api/v1/users", env.admin.Token, authRequest{Username: "BOB", Password: "y"}, nil)
		assert.Equal(t, http.StatusConflict, code)

		var users []model.User
		require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/users", bob.Token, nil, &users))
		assert.Len(t, users, 2)
	})
}

func TestConcurrentRegisterCreatesOneAdmin(t *testing.T) {
	env := newEmptyEnv(t)

	const n = 5
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(authRequest{Username: fmt.Sprintf("root%d", i), Password: "pw"})
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body)))
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
			continue
		}
		assert.Equal(t, http.StatusForbidden, code)
	}
	assert.Equal(t, 1, ok)

	users, err := env.srv.Store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsAdmin)
}

func TestAuditHugeLimit(t *testing.T) {
	env := newTestEnv(t)
	var entries []model.AuditEntry
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/audit?limit=9000000000000000000", "boot", nil, &entries))
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodGet, "/api/v1/auth/login", "", nil, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodDelete, "/api/v1/instances", env.admin.Token, nil, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodGet, "/api/v1/tasks/x/approve", env.admin.Token, nil, nil))
}

func TestLabels(t *testing.T) {
	env := newTestEnv(t)
	tok := env.admin.Token

	var all map[string]map[string]labelView
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/labels", tok, nil, &all))
	assert.Equal(t, "Pending", all["approval"]["PENDING"].Label)

	var one labelView
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/labels/approval?code=APPROVED", tok, nil, &one))
	assert.Equal(t, labelView{Label: "Approved", Color: "success"}, one)

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/labels/approval?code=MYSTERY", tok, nil, &one))
	assert.Equal(t, labelView{Label: "MYSTERY", Color: "default"}, one)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/labels/payroll", tok, nil, nil))
}

type labelView struct {
	Label string `json:"label"`
	Color string `json:"color"`
}
