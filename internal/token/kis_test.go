package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKISIssuer_AccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/tokenP", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "key", body["appkey"])
		assert.Equal(t, "secret", body["appsecret"])
		w.Write([]byte(`{"access_token":"abc","token_type":"Bearer","expires_in":86400}`))
	}))
	defer srv.Close()

	tok, err := NewKISIssuer(srv.URL, "key", "secret", nil).AccessToken().Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.Value)
	assert.Equal(t, 24*time.Hour, tok.TTL)
}

func TestKISIssuer_RateLimitSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error_code":"EGW00133","error_description":"접근토큰 발급 잠시 후 다시 시도하세요(1분당 1회)"}`))
	}))
	defer srv.Close()

	_, err := NewKISIssuer(srv.URL, "key", "secret", nil).AccessToken().Issue(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestKISIssuer_OtherErrorIsNotRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error_code":"EGW00103","error_description":"유효하지 않은 AppKey입니다."}`))
	}))
	defer srv.Close()

	_, err := NewKISIssuer(srv.URL, "key", "secret", nil).AccessToken().Issue(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestKISIssuer_ApprovalKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/Approval", r.URL.Path)
		w.Write([]byte(`{"approval_key":"ws-key"}`))
	}))
	defer srv.Close()

	tok, err := NewKISIssuer(srv.URL, "key", "secret", nil).ApprovalKey().Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws-key", tok.Value)
	assert.Zero(t, tok.TTL)
}

func TestKISIssuer_MissingCredentials(t *testing.T) {
	_, err := NewKISIssuer("http://unused", "", "", nil).AccessToken().Issue(context.Background())
	assert.Error(t, err)
}
