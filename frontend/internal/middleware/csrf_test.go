package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCSRFToken(t *testing.T) {
	var seen string
	handler := GenerateCSRFToken(CSRFConfig{SecureCookies: true})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetCSRFTokenFromContext(r)
			w.WriteHeader(http.StatusOK)
		}),
	)

	t.Run("new visitor gets a cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))

		require.NotEmpty(t, seen)
		var cookie *http.Cookie
		for _, c := range w.Result().Cookies() {
			if c.Name == csrfCookieName {
				cookie = c
			}
		}
		require.NotNil(t, cookie)
		assert.Equal(t, seen, cookie.Value)
		assert.True(t, cookie.Secure)
		assert.True(t, cookie.HttpOnly)
	})

	t.Run("existing cookie is reused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "kept"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "kept", seen)
		assert.Empty(t, w.Result().Cookies())
	})
}

func TestValidateCSRFToken(t *testing.T) {
	const token = "test-token-123"

	tests := []struct {
		name           string
		method         string
		cookie         string
		header         string
		formToken      string
		expectedStatus int
	}{
		{name: "header matches", method: http.MethodPost, cookie: token, header: token, expectedStatus: http.StatusOK},
		{name: "form field matches", method: http.MethodPost, cookie: token, formToken: token, expectedStatus: http.StatusOK},
		{name: "GET is not checked", method: http.MethodGet, expectedStatus: http.StatusOK},
		{name: "missing cookie", method: http.MethodPost, header: token, expectedStatus: http.StatusForbidden},
		{name: "missing token", method: http.MethodDelete, cookie: token, expectedStatus: http.StatusForbidden},
		{name: "mismatched tokens", method: http.MethodPost, cookie: token, header: "different-token", expectedStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := ValidateCSRFToken()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			var req *http.Request
			if tt.formToken != "" {
				form := url.Values{csrfFormField: {tt.formToken}}
				req = httptest.NewRequest(tt.method, "/", strings.NewReader(form.Encode()))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			} else {
				req = httptest.NewRequest(tt.method, "/", strings.NewReader(`{}`))
				req.Header.Set("Content-Type", "application/json")
			}
			if tt.header != "" {
				req.Header.Set(csrfHeader, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
