package handler

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/infrastructure/auth"
	"github.com/cardhub/connectors/internal/infrastructure/config"
	"github.com/cardhub/connectors/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

var (
	signingKeyOnce sync.Once
	signingKey     *rsa.PrivateKey
)

func identityToken(t *testing.T, email string) string {
	t.Helper()
	signingKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		signingKey = key
	})
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"eml": email}).SignedString(signingKey)
	require.NoError(t, err)
	return "Bearer " + token
}

func newBase(t *testing.T) BaseHandler {
	t.Helper()
	tokens, err := auth.NewTokenParser(config.AuthConfig{})
	require.NoError(t, err)
	return NewBaseHandler(hub.NewResolver(tokens, nil))
}

// hubRequest builds a request carrying the headers the hub sends.
func hubRequest(t *testing.T, method, target string, body *string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(*body))
	}
	req.Header.Set(hub.HeaderAuthorization, identityToken(t, "admin@acme.com"))
	req.Header.Set(hub.HeaderBaseURL, "https://acme.example.com")
	req.Header.Set(hub.HeaderConnectorAuth, "Basic abc")
	req.Header.Set(hub.HeaderRoutingTemplate, "https://hub.example.com/connectors/c1/INSERT_OBJECT_TYPE/")
	return req
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}
