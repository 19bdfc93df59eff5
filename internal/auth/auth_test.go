package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxrelay/internal/account"
)

func TestJWT_RoundTrip(t *testing.T) {
	j := NewJWT("s3cret")
	id := uuid.New()

	tok, err := j.Sign(id)
	require.NoError(t, err)

	got, err := j.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = NewJWT("other").Verify(tok)
	require.Error(t, err)
}

func TestJWT_Expired(t *testing.T) {
	j := NewJWT("s3cret")
	j.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	tok, err := j.Sign(uuid.New())
	require.NoError(t, err)

	_, err = NewJWT("s3cret").Verify(tok)
	require.Error(t, err)
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, ComparePassword(h, "correct horse"))
	assert.False(t, ComparePassword(h, "wrong"))
}

type fakeAccounts map[uuid.UUID]account.Status

func (f fakeAccounts) Active(_ context.Context, id uuid.UUID) (*account.Account, error) {
	status, ok := f[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	a := &account.Account{ID: id, Status: status}
	if status != account.StatusActive {
		return a, account.ErrInactive
	}
	return a, nil
}

func TestRequireAuth(t *testing.T) {
	j := NewJWT("s3cret")
	id := uuid.New()
	tok, err := j.Sign(id)
	require.NoError(t, err)

	var seen uuid.UUID
	h := RequireAuth(j, fakeAccounts{id: account.StatusActive})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AccountIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Not authorized, no token"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, seen)
}

func TestRequireAuth_RejectsUnusableAccounts(t *testing.T) {
	j := NewJWT("s3cret")
	suspended, deleted := uuid.New(), uuid.New()
	accounts := fakeAccounts{suspended: account.StatusSuspended}

	called := false
	h := RequireAuth(j, accounts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	cases := []struct {
		name string
		id   uuid.UUID
		want int
		body string
	}{
		{"suspended", suspended, http.StatusForbidden, `{"success":false,"message":"Account is not active"}`},
		{"deleted", deleted, http.StatusUnauthorized, `{"success":false,"message":"Not authorized, account not found"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := j.Sign(tc.id)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/api/operator/actions", nil)
			req.Header.Set("Authorization", "Bearer "+tok)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}
	assert.False(t, called)
}

func TestRequireExtensionKey(t *testing.T) {
	h := RequireExtensionKey("ext-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "ext-kez", http.StatusUnauthorized},
		{"prefix", "ext-key-and-more", http.StatusUnauthorized},
		{"match", "ext-key", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/actions/pending", nil)
			if tc.header != "" {
				req.Header.Set(ExtensionKeyHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	RequireExtensionKey("")(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "empty key never matches")
}
