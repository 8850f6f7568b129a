package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"

	"github.com/username/briefingdesk/backend/src/logger"
	"github.com/username/briefingdesk/backend/src/utils"
)

const csrfCookieName = "_briefingdesk_csrf"

// GetCSRFToken issues a double-submit token: the same value goes into an
// HttpOnly cookie and the response body, and mutating requests must echo it
// in the X-CSRF-Token header.
func GetCSRFToken(authKey []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := generateCSRFToken(authKey)
		if err != nil {
			logger.L.Error("Failed to generate CSRF token", "error", err)
			utils.SendJSONError(w, "Failed to generate CSRF token", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     csrfCookieName,
			Value:    token,
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
			HttpOnly: true,
			Secure:   false, // behind TLS termination in production
			MaxAge:   3600,
		})

		w.Header().Set("X-CSRF-Token", token)
		utils.SendJSON(w, map[string]string{"csrfToken": token}, http.StatusOK)
	}
}

// CSRFMiddleware compares the header token against the cookie token and checks
// the HMAC signature so a token from a different deployment is rejected.
func CSRFMiddleware(authKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get("X-CSRF-Token")
			cookie, err := r.Cookie(csrfCookieName)
			if headerToken == "" || err != nil || headerToken != cookie.Value || !validateCSRFToken(authKey, headerToken) {
				logger.L.Warn("CSRF validation failed",
					"method", r.Method, "path", r.URL.Path, "hasHeader", headerToken != "", "cookieErr", err)
				utils.SendJSONError(w, "CSRF token validation failed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Token format: base64(nonce) + "." + base64(HMAC(authKey, nonce)).
func generateCSRFToken(authKey []byte) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, authKey)
	mac.Write(nonce)
	return base64.RawURLEncoding.EncodeToString(nonce) + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func validateCSRFToken(authKey []byte, token string) bool {
	for i := range token {
		if token[i] != '.' {
			continue
		}
		nonce, err := base64.RawURLEncoding.DecodeString(token[:i])
		if err != nil {
			return false
		}
		sig, err := base64.RawURLEncoding.DecodeString(token[i+1:])
		if err != nil {
			return false
		}
		mac := hmac.New(sha256.New, authKey)
		mac.Write(nonce)
		return hmac.Equal(sig, mac.Sum(nil))
	}
	return false
}
