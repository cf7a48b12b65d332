package broker

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundtrip(t *testing.T) {
	tok := NewToken("secret")
	signed, err := tok.Sign("job-1")
	require.NoError(t, err)

	jobID, err := tok.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
}

func TestTokenWrongSecret(t *testing.T) {
	signed, err := NewToken("secret-a").Sign("job-1")
	require.NoError(t, err)

	_, err = NewToken("secret-b").Verify(signed)
	assert.Error(t, err)
}

func TestTokenGarbage(t *testing.T) {
	_, err := NewToken("secret").Verify("not-a-jwt")
	assert.Error(t, err)
}

func TestRequireToken(t *testing.T) {
	tok := NewToken("secret")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireToken(tok)(next)

	// no header
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// bad token
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// valid token
	signed, err := tok.Sign("job-1")
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/internal/dispatch", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
